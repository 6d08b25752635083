package client

import (
	"errors"
	"sync"

	"github.com/psyche-network/psyche/committee"
	"github.com/psyche-network/psyche/coordinator"
	"github.com/psyche-network/psyche/crypto"
	"github.com/psyche-network/psyche/fixed"
	"github.com/psyche-network/psyche/types"
)

// ErrAlreadyTrained is returned by RoundState.MarkTrained when batch has
// already been recorded trained for this round.
var ErrAlreadyTrained = errors.New("client: batch already trained this round")

// ErrWitnessAlreadySubmitted guards a round's witness submission against
// being sent twice.
var ErrWitnessAlreadySubmitted = errors.New("client: witness already submitted this round")

// ErrUnknownBatch is returned when a batch outside this round's assignment
// is marked trained.
var ErrUnknownBatch = errors.New("client: batch not assigned this round")

// RoundState tracks one round's local bookkeeping: which batches this
// client was assigned, which slices of the round's data window have been
// trained, and the Participant/Order Bloom filters a witness-eligible
// client accumulates from observed TrainingResult gossip. One RoundState
// is created per round height and discarded once the round closes.
type RoundState struct {
	Height   uint32
	Seed     uint64
	Assigned []types.BatchId

	mu      sync.Mutex
	trained fixed.Intervals

	witnessSubmitted bool

	participantBloom *crypto.Bloom
	orderBloom       *crypto.Bloom
	seqCounter       uint64
}

// NewRoundState creates the bookkeeping for a round at height, seeded with
// seed, assigned the given batches. bloomBits sizes the witness Bloom
// filters; pass 0 if this client is not witness-eligible for the round.
func NewRoundState(height uint32, seed uint64, assigned []types.BatchId, bloomBits uint32) *RoundState {
	rs := &RoundState{
		Height:   height,
		Seed:     seed,
		Assigned: assigned,
	}
	if bloomBits > 0 {
		rs.participantBloom = crypto.NewBloom(int(bloomBits), seed)
		rs.orderBloom = crypto.NewBloom(int(bloomBits), seed)
	}
	return rs
}

// MarkTrained records batch as trained. It is an error to mark a batch not
// in Assigned, or to mark the same batch twice.
func (rs *RoundState) MarkTrained(batch types.BatchId) error {
	found := false
	for _, b := range rs.Assigned {
		if b == batch {
			found = true
			break
		}
	}
	if !found {
		return ErrUnknownBatch
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.trained.Overlaps(batch.Start, batch.End) {
		return ErrAlreadyTrained
	}
	return rs.trained.Add(batch.Start, batch.End)
}

// AllTrained reports whether every assigned batch has been marked trained.
func (rs *RoundState) AllTrained() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, b := range rs.Assigned {
		if !rs.trained.Covers(b.Start, b.End) {
			return false
		}
	}
	return true
}

// Remaining returns the assigned batches not yet marked trained.
func (rs *RoundState) Remaining() []types.BatchId {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var out []types.BatchId
	for _, b := range rs.Assigned {
		if !rs.trained.Overlaps(b.Start, b.End) {
			out = append(out, b)
		}
	}
	return out
}

// ObserveResult folds an observed TrainingResult into this round's witness
// Bloom filters: (signer, batch_id) into the Participant filter, and
// (signer, batch_id, sequence_number) -- keyed by local observation order,
// matching a witness's obligation to attest order as seen locally -- into
// the Order filter. A no-op if this client isn't witness-eligible (the
// filters are nil).
func (rs *RoundState) ObserveResult(signer types.ClientId, batch types.BatchId) {
	if rs.participantBloom == nil {
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	participantKey := append(append([]byte{}, signer.Bytes()...), batch.Bytes()...)
	rs.participantBloom.Add(participantKey)

	seq := rs.seqCounter
	rs.seqCounter++
	orderKey := append(participantKey, seqBytes(seq)...)
	rs.orderBloom.Add(orderKey)
}

func seqBytes(seq uint64) []byte {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[7-i] = byte(seq)
		seq >>= 8
	}
	return b[:]
}

// ParticipantObserved reports whether this round's Participant filter has
// seen (signer, batch).
func (rs *RoundState) ParticipantObserved(signer types.ClientId, batch types.BatchId) bool {
	if rs.participantBloom == nil {
		return false
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	key := append(append([]byte{}, signer.Bytes()...), batch.Bytes()...)
	return rs.participantBloom.Contains(key)
}

// ErrNoWitnessBlooms is returned by BuildWitness when this RoundState was
// created with bloomBits == 0, i.e. this client was not witness-eligible
// for the round.
var ErrNoWitnessBlooms = errors.New("client: round state has no witness bloom filters")

// BuildWitness assembles the coordinator.Witness frame from this round's
// accumulated Bloom filters and proof, the client's proof of witness-
// ordering membership. It returns ErrWitnessAlreadySubmitted if called more
// than once for the same RoundState, enforcing the submit-once invariant
// locally before the server's own duplicate check is ever reached.
func (rs *RoundState) BuildWitness(index uint64, proof committee.WitnessProof) (coordinator.Witness, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.witnessSubmitted {
		return coordinator.Witness{}, ErrWitnessAlreadySubmitted
	}
	if rs.participantBloom == nil || rs.orderBloom == nil {
		return coordinator.Witness{}, ErrNoWitnessBlooms
	}
	rs.witnessSubmitted = true
	return coordinator.Witness{
		Index:           index,
		Proof:           proof,
		ParticipantBits: rs.participantBloom.Bytes(),
		OrderBits:       rs.orderBloom.Bytes(),
	}, nil
}

// WitnessSubmitted reports whether a witness has already been submitted
// for this round.
func (rs *RoundState) WitnessSubmitted() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.witnessSubmitted
}
