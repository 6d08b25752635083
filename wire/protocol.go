package wire

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/psyche-network/psyche/coordinator"
	"github.com/psyche-network/psyche/types"
)

// clientTag discriminates the Client -> Server message set.
type clientTag uint8

const (
	clientTagJoin clientTag = iota
	clientTagWitness
	clientTagHealthCheck
	clientTagCheckpoint
)

// serverTag discriminates the Server -> Client message set.
type serverTag uint8

const (
	serverTagP2PConnect serverTag = iota
	serverTagCoordinator
)

// ErrUnknownTag is returned when a frame's discriminant byte does not match
// any known client or server message.
var ErrUnknownTag = errors.New("wire: unknown message tag")

// ClientMessage is a tagged union over the four frames a client may send.
// Exactly one field is set, mirroring the pointer-tag pattern used by
// coordinator.Model.
type ClientMessage struct {
	Join        *JoinMessage
	Witness     *WitnessMessage
	HealthCheck *HealthCheckMessage
	Checkpoint  *CheckpointMessage
}

// JoinMessage is the Client -> Server Join{run_id} frame.
type JoinMessage struct {
	RunID string
}

// WitnessMessage is the Client -> Server Witness(Witness) frame.
type WitnessMessage struct {
	Signer  types.ClientId
	Witness coordinator.Witness
}

// HealthCheckMessage is the Client -> Server HealthCheck(HealthChecks) frame.
type HealthCheckMessage struct {
	Checks coordinator.HealthChecks
}

// CheckpointMessage is the Client -> Server Checkpoint(model::Checkpoint)
// frame.
type CheckpointMessage struct {
	Checkpoint coordinator.Checkpoint
}

// Marshal encodes m as tag(1) || payload.
func (m ClientMessage) Marshal() []byte {
	var e encoder
	switch {
	case m.Join != nil:
		e.putUint8(uint8(clientTagJoin))
		e.putString(m.Join.RunID)
	case m.Witness != nil:
		e.putUint8(uint8(clientTagWitness))
		e.putFixed(m.Witness.Signer.Wallet[:])
		e.putFixed(m.Witness.Signer.P2P[:])
		e.putBytes(m.Witness.Witness.Marshal())
	case m.HealthCheck != nil:
		e.putUint8(uint8(clientTagHealthCheck))
		e.putBytes(m.HealthCheck.Checks.Marshal())
	case m.Checkpoint != nil:
		e.putUint8(uint8(clientTagCheckpoint))
		e.putBytes(m.Checkpoint.Checkpoint.Marshal())
	}
	return e.bytes()
}

// UnmarshalClientMessage is the inverse of ClientMessage.Marshal.
func UnmarshalClientMessage(b []byte) (ClientMessage, error) {
	d := decoder{buf: b}
	tag, err := d.uint8()
	if err != nil {
		return ClientMessage{}, err
	}
	switch clientTag(tag) {
	case clientTagJoin:
		runID, err := d.string()
		if err != nil {
			return ClientMessage{}, err
		}
		return ClientMessage{Join: &JoinMessage{RunID: runID}}, nil

	case clientTagWitness:
		wallet, err := d.fixed(len(types.ClientId{}.Wallet))
		if err != nil {
			return ClientMessage{}, err
		}
		p2p, err := d.fixed(len(types.ClientId{}.P2P))
		if err != nil {
			return ClientMessage{}, err
		}
		witnessBytes, err := d.bytes()
		if err != nil {
			return ClientMessage{}, err
		}
		w, err := coordinator.UnmarshalWitness(witnessBytes)
		if err != nil {
			return ClientMessage{}, err
		}
		var signer types.ClientId
		copy(signer.Wallet[:], wallet)
		copy(signer.P2P[:], p2p)
		return ClientMessage{Witness: &WitnessMessage{Signer: signer, Witness: w}}, nil

	case clientTagHealthCheck:
		checksBytes, err := d.bytes()
		if err != nil {
			return ClientMessage{}, err
		}
		checks, err := coordinator.UnmarshalHealthChecks(checksBytes)
		if err != nil {
			return ClientMessage{}, err
		}
		return ClientMessage{HealthCheck: &HealthCheckMessage{Checks: checks}}, nil

	case clientTagCheckpoint:
		cpBytes, err := d.bytes()
		if err != nil {
			return ClientMessage{}, err
		}
		cp, err := coordinator.UnmarshalCheckpoint(cpBytes)
		if err != nil {
			return ClientMessage{}, err
		}
		return ClientMessage{Checkpoint: &CheckpointMessage{Checkpoint: cp}}, nil

	default:
		return ClientMessage{}, fmt.Errorf("%w: %d", ErrUnknownTag, tag)
	}
}

// PeerAddr is one bootstrap peer entry in a PeerList.
type PeerAddr struct {
	Id      types.ClientId
	Address string
}

// PeerList is the payload of the Server -> Client P2PConnect frame.
type PeerList struct {
	Peers []PeerAddr
}

// CoordinatorSnapshot is the wire-facing projection of the authoritative
// Coordinator pushed on every change (the Server -> Client Coordinator
// frame). It carries the fields a client's watcher needs to drive its
// RoundState machine, rather than the kernel's full in-memory layout
// (which includes the unexported selection memoization cache that has no
// wire meaning).
type CoordinatorSnapshot struct {
	RunID      string
	RunState   coordinator.RunState
	Progress   coordinator.Progress
	TickUnix   int64
	Height     uint32
	RandomSeed uint64
	DataIndex  uint64

	// TieBreakerTasks is the current round's tie-breaker slot count; the
	// remaining fields mirror coordinator.Config's committee-sizing knobs.
	// Together with Clients, they are everything committee.New and
	// coordinator.AssignDataForState need, so a client can derive its own
	// role and assignment locally instead of trusting a server-computed one.
	TieBreakerTasks      uint16
	WitnessNodes         uint16
	VerificationPercent  uint8
	BatchesPerRound      uint16
	DataIndiciesPerBatch uint32
	WitnessBloomSize     uint32
	// DataShuffleSeed mirrors Config.DataShuffleSeed, the extra entropy
	// AssignDataForState XORs into the round seed for the batch-permutation
	// step only.
	DataShuffleSeed uint64

	// Checkpoint is the model's current checkpoint location, so a freshly
	// connected client can tell whether to pull weights from the hub, a
	// peer, or local disk.
	Checkpoint coordinator.Checkpoint

	// Clients is the frozen epoch client set committee.New partitions into
	// roles. It is only meaningful once the run has left WaitingForMembers.
	Clients []types.ClientId
}

// FromCoordinator projects c into its wire-facing snapshot.
func FromCoordinator(c *coordinator.Coordinator) CoordinatorSnapshot {
	snap := CoordinatorSnapshot{
		RunID:                c.RunID,
		RunState:             c.RunState,
		Progress:             c.Progress,
		TickUnix:             c.LastTickUnix,
		WitnessNodes:         c.Config.WitnessNodes,
		VerificationPercent:  c.Config.VerificationPercent,
		BatchesPerRound:      c.Config.BatchesPerRound,
		DataIndiciesPerBatch: c.Config.DataIndiciesPerBatch,
		WitnessBloomSize:     c.Config.WitnessBloomSize,
		DataShuffleSeed:      c.Config.DataShuffleSeed,
		Clients:              append([]types.ClientId(nil), c.EpochState.Clients...),
	}
	if c.Model.LLM != nil {
		snap.Checkpoint = c.Model.LLM.Checkpoint
	}
	if len(c.EpochState.Rounds) > 0 {
		round := c.EpochState.CurrentRound()
		snap.Height = round.Height
		snap.RandomSeed = round.RandomSeed
		snap.DataIndex = round.DataIndex
		snap.TieBreakerTasks = round.TieBreakerTasks
	}
	return snap
}

// ServerMessage is a tagged union over the two frames a server may send.
type ServerMessage struct {
	P2PConnect  *PeerList
	Coordinator *CoordinatorSnapshot
}

// Marshal encodes m as tag(1) || payload.
func (m ServerMessage) Marshal() []byte {
	var e encoder
	switch {
	case m.P2PConnect != nil:
		e.putUint8(uint8(serverTagP2PConnect))
		e.putUint32(uint32(len(m.P2PConnect.Peers)))
		for _, p := range m.P2PConnect.Peers {
			e.putFixed(p.Id.Wallet[:])
			e.putFixed(p.Id.P2P[:])
			e.putString(p.Address)
		}
	case m.Coordinator != nil:
		e.putUint8(uint8(serverTagCoordinator))
		e.putString(m.Coordinator.RunID)
		e.putUint8(uint8(m.Coordinator.RunState))
		e.putUint32(uint32(m.Coordinator.Progress.Epoch))
		e.putUint32(m.Coordinator.Progress.Step)
		e.putUint64(uint64(m.Coordinator.TickUnix))
		e.putUint32(m.Coordinator.Height)
		e.putUint64(m.Coordinator.RandomSeed)
		e.putUint64(m.Coordinator.DataIndex)
		e.putUint16(m.Coordinator.TieBreakerTasks)
		e.putUint16(m.Coordinator.WitnessNodes)
		e.putUint8(m.Coordinator.VerificationPercent)
		e.putUint16(m.Coordinator.BatchesPerRound)
		e.putUint32(m.Coordinator.DataIndiciesPerBatch)
		e.putUint32(m.Coordinator.WitnessBloomSize)
		e.putUint64(m.Coordinator.DataShuffleSeed)
		e.putBytes(m.Coordinator.Checkpoint.Marshal())
		e.putUint32(uint32(len(m.Coordinator.Clients)))
		for _, c := range m.Coordinator.Clients {
			e.putFixed(c.Wallet[:])
			e.putFixed(c.P2P[:])
		}
	}
	return e.bytes()
}

// UnmarshalServerMessage is the inverse of ServerMessage.Marshal.
func UnmarshalServerMessage(b []byte) (ServerMessage, error) {
	d := decoder{buf: b}
	tag, err := d.uint8()
	if err != nil {
		return ServerMessage{}, err
	}
	switch serverTag(tag) {
	case serverTagP2PConnect:
		n, err := d.uint32()
		if err != nil {
			return ServerMessage{}, err
		}
		peers := make([]PeerAddr, n)
		for i := range peers {
			wallet, err := d.fixed(len(peers[i].Id.Wallet))
			if err != nil {
				return ServerMessage{}, err
			}
			p2p, err := d.fixed(len(peers[i].Id.P2P))
			if err != nil {
				return ServerMessage{}, err
			}
			addr, err := d.string()
			if err != nil {
				return ServerMessage{}, err
			}
			copy(peers[i].Id.Wallet[:], wallet)
			copy(peers[i].Id.P2P[:], p2p)
			peers[i].Address = addr
		}
		return ServerMessage{P2PConnect: &PeerList{Peers: peers}}, nil

	case serverTagCoordinator:
		runID, err := d.string()
		if err != nil {
			return ServerMessage{}, err
		}
		runState, err := d.uint8()
		if err != nil {
			return ServerMessage{}, err
		}
		epoch, err := d.uint32()
		if err != nil {
			return ServerMessage{}, err
		}
		step, err := d.uint32()
		if err != nil {
			return ServerMessage{}, err
		}
		tickUnix, err := d.uint64()
		if err != nil {
			return ServerMessage{}, err
		}
		height, err := d.uint32()
		if err != nil {
			return ServerMessage{}, err
		}
		seed, err := d.uint64()
		if err != nil {
			return ServerMessage{}, err
		}
		dataIndex, err := d.uint64()
		if err != nil {
			return ServerMessage{}, err
		}
		tieBreakerTasks, err := d.uint16()
		if err != nil {
			return ServerMessage{}, err
		}
		witnessNodes, err := d.uint16()
		if err != nil {
			return ServerMessage{}, err
		}
		verificationPercent, err := d.uint8()
		if err != nil {
			return ServerMessage{}, err
		}
		batchesPerRound, err := d.uint16()
		if err != nil {
			return ServerMessage{}, err
		}
		dataIndiciesPerBatch, err := d.uint32()
		if err != nil {
			return ServerMessage{}, err
		}
		witnessBloomSize, err := d.uint32()
		if err != nil {
			return ServerMessage{}, err
		}
		dataShuffleSeed, err := d.uint64()
		if err != nil {
			return ServerMessage{}, err
		}
		checkpointBytes, err := d.bytes()
		if err != nil {
			return ServerMessage{}, err
		}
		checkpoint, err := coordinator.UnmarshalCheckpoint(checkpointBytes)
		if err != nil {
			return ServerMessage{}, err
		}
		numClients, err := d.uint32()
		if err != nil {
			return ServerMessage{}, err
		}
		clients := make([]types.ClientId, numClients)
		for i := range clients {
			wallet, err := d.fixed(len(clients[i].Wallet))
			if err != nil {
				return ServerMessage{}, err
			}
			p2p, err := d.fixed(len(clients[i].P2P))
			if err != nil {
				return ServerMessage{}, err
			}
			copy(clients[i].Wallet[:], wallet)
			copy(clients[i].P2P[:], p2p)
		}
		return ServerMessage{Coordinator: &CoordinatorSnapshot{
			RunID:                runID,
			RunState:             coordinator.RunState(runState),
			Progress:             coordinator.Progress{Epoch: uint16(epoch), Step: step},
			TickUnix:             int64(tickUnix),
			Height:               height,
			RandomSeed:           seed,
			DataIndex:            dataIndex,
			TieBreakerTasks:      tieBreakerTasks,
			WitnessNodes:         witnessNodes,
			VerificationPercent:  verificationPercent,
			BatchesPerRound:      batchesPerRound,
			DataIndiciesPerBatch: dataIndiciesPerBatch,
			WitnessBloomSize:     witnessBloomSize,
			DataShuffleSeed:      dataShuffleSeed,
			Checkpoint:           checkpoint,
			Clients:              clients,
		}}, nil

	default:
		return ServerMessage{}, fmt.Errorf("%w: %d", ErrUnknownTag, tag)
	}
}

// NewChallenge generates a fresh 32-byte handshake challenge; the server
// issues one per connection and the client responds with its signed-bytes
// proof over it.
func NewChallenge() ([32]byte, error) {
	var c [32]byte
	if _, err := rand.Read(c[:]); err != nil {
		return c, fmt.Errorf("wire: challenge generation: %w", err)
	}
	return c, nil
}
