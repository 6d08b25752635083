package coordinator

import (
	"encoding/binary"
	"errors"

	"github.com/psyche-network/psyche/committee"
	"github.com/psyche-network/psyche/fixed"
	"github.com/psyche-network/psyche/types"
)

// Witness summarizes, via two Bloom filters, which (signer, batch_id) and
// (signer, batch_id, sequence_number) tuples a witnessing client observed
// during a round.
type Witness struct {
	Index           uint64
	Proof           committee.WitnessProof
	ParticipantBits []byte // serialized ParticipantBloom bitset
	OrderBits       []byte // serialized OrderBloom bitset
}

// Marshal flattens Witness for the centralized wire protocol's
// Witness(Witness) frame: index(8) || len(proof)(4) || proof ||
// len(participant_bits)(4) || participant_bits || len(order_bits)(4) ||
// order_bits.
func (w Witness) Marshal() []byte {
	proof := w.Proof.Marshal()
	out := make([]byte, 0, 16+len(proof)+8+len(w.ParticipantBits)+len(w.OrderBits))
	out = binary.BigEndian.AppendUint64(out, w.Index)
	out = binary.BigEndian.AppendUint32(out, uint32(len(proof)))
	out = append(out, proof...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(w.ParticipantBits)))
	out = append(out, w.ParticipantBits...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(w.OrderBits)))
	out = append(out, w.OrderBits...)
	return out
}

// ErrMalformedWitness is returned when a marshaled Witness is truncated.
var ErrMalformedWitness = errors.New("coordinator: malformed witness")

// UnmarshalWitness is the inverse of Witness.Marshal.
func UnmarshalWitness(b []byte) (Witness, error) {
	if len(b) < 12 {
		return Witness{}, ErrMalformedWitness
	}
	var w Witness
	w.Index = binary.BigEndian.Uint64(b[0:8])
	proofLen := binary.BigEndian.Uint32(b[8:12])
	rest := b[12:]
	if uint32(len(rest)) < proofLen {
		return Witness{}, ErrMalformedWitness
	}
	proof, err := committee.UnmarshalProof(rest[:proofLen])
	if err != nil {
		return Witness{}, err
	}
	w.Proof = proof
	rest = rest[proofLen:]

	if len(rest) < 4 {
		return Witness{}, ErrMalformedWitness
	}
	pLen := binary.BigEndian.Uint32(rest[0:4])
	rest = rest[4:]
	if uint32(len(rest)) < pLen {
		return Witness{}, ErrMalformedWitness
	}
	w.ParticipantBits = append([]byte(nil), rest[:pLen]...)
	rest = rest[pLen:]

	if len(rest) < 4 {
		return Witness{}, ErrMalformedWitness
	}
	oLen := binary.BigEndian.Uint32(rest[0:4])
	rest = rest[4:]
	if uint32(len(rest)) < oLen {
		return Witness{}, ErrMalformedWitness
	}
	w.OrderBits = append([]byte(nil), rest[:oLen]...)
	return w, nil
}

// WitnessEntry pairs a retained Witness with the signer that submitted it.
type WitnessEntry struct {
	Signer  types.ClientId
	Witness Witness
}

// Round is one round's bookkeeping: its committee seed, data assignment
// window, and retained witnesses.
type Round struct {
	Height          uint32
	TieBreakerTasks uint16
	DataIndex       uint64
	RandomSeed      uint64
	Witnesses       *fixed.Vec[WitnessEntry]
	ClientsLen      uint32
}

// ExitReason records why a client was removed from the current epoch's
// healthy set.
type ExitReason int

const (
	ExitDropped ExitReason = iota // fell out of the host's active set
	ExitEjected                   // failed epoch-end scoring
)

func (r ExitReason) String() string {
	switch r {
	case ExitDropped:
		return "Dropped"
	case ExitEjected:
		return "Ejected"
	default:
		return "Unknown"
	}
}

// ExitedClient records a client's departure from the current epoch.
type ExitedClient struct {
	Client types.ClientId
	Reason ExitReason
}

// EpochState is the ring buffer of the last RoundsPerEpoch rounds plus the
// client set frozen for the current epoch and the clients that have left
// it.
type EpochState struct {
	Rounds        []Round
	RoundsHead    int
	Clients       []types.ClientId
	ExitedClients []ExitedClient
}

func newEpochState(roundsPerEpoch int) EpochState {
	return EpochState{
		Rounds: make([]Round, 0, roundsPerEpoch),
	}
}

// CurrentRound returns the most recently pushed round. Callers must only
// invoke this once at least one round has been pushed.
func (e *EpochState) CurrentRound() *Round {
	return &e.Rounds[e.RoundsHead]
}

func (e *EpochState) pushRound(r Round, ringSize int) {
	if len(e.Rounds) < ringSize {
		e.Rounds = append(e.Rounds, r)
		e.RoundsHead = len(e.Rounds) - 1
		return
	}
	e.RoundsHead = (e.RoundsHead + 1) % ringSize
	e.Rounds[e.RoundsHead] = r
}
