package coordinator

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// CheckpointSource distinguishes where a client should load model weights
// from. The centralized protocol's Checkpoint frame carries one, and a
// client joining mid-run uses it to decide whether weights come from the
// hub, a peer, or local disk.
type CheckpointSource int

const (
	CheckpointHub CheckpointSource = iota
	CheckpointP2P
	CheckpointDisk
)

func (s CheckpointSource) String() string {
	switch s {
	case CheckpointHub:
		return "Hub"
	case CheckpointP2P:
		return "P2P"
	case CheckpointDisk:
		return "Disk"
	default:
		return "Unknown"
	}
}

// Checkpoint names a concrete checkpoint location. Ref is a hub repo id,
// a disk path, or empty for P2P (peers are discovered via the gossip
// fabric, not addressed by name).
type Checkpoint struct {
	Source CheckpointSource
	Ref    string
}

// Marshal flattens Checkpoint as source(1) || len(ref)(4) || ref, for the
// centralized wire protocol's Checkpoint(model::Checkpoint) frame.
func (c Checkpoint) Marshal() []byte {
	out := make([]byte, 0, 5+len(c.Ref))
	out = append(out, byte(c.Source))
	var refLen [4]byte
	binary.BigEndian.PutUint32(refLen[:], uint32(len(c.Ref)))
	out = append(out, refLen[:]...)
	out = append(out, []byte(c.Ref)...)
	return out
}

// ErrMalformedCheckpoint is returned when a marshaled Checkpoint is
// truncated relative to its declared Ref length.
var ErrMalformedCheckpoint = errors.New("coordinator: malformed checkpoint")

// UnmarshalCheckpoint is the inverse of Checkpoint.Marshal.
func UnmarshalCheckpoint(b []byte) (Checkpoint, error) {
	if len(b) < 5 {
		return Checkpoint{}, ErrMalformedCheckpoint
	}
	source := CheckpointSource(b[0])
	refLen := binary.BigEndian.Uint32(b[1:5])
	rest := b[5:]
	if uint32(len(rest)) != refLen {
		return Checkpoint{}, ErrMalformedCheckpoint
	}
	return Checkpoint{Source: source, Ref: string(rest)}, nil
}

// LLMModel is the only Model variant currently defined.
type LLMModel struct {
	Architecture string
	Checkpoint   Checkpoint
	MaxSeqLen    uint32
	DataType     string
	DataLocation string
	LRSchedule   string
	Optimizer    string
}

// Model is a sum type; LLM is the only populated variant today, but the
// pointer-tag shape leaves room for future model kinds without breaking
// existing callers.
type Model struct {
	LLM *LLMModel
}

// Check performs shape/range sanity checks Resume requires.
func (m Model) Check() error {
	if m.LLM == nil {
		return fmt.Errorf("%w: no model variant set", errModelInvalid)
	}
	l := m.LLM
	if l.Architecture == "" {
		return fmt.Errorf("%w: architecture must be set", errModelInvalid)
	}
	if l.MaxSeqLen == 0 {
		return fmt.Errorf("%w: max_seq_len must be > 0", errModelInvalid)
	}
	if l.DataType == "" {
		return fmt.Errorf("%w: data_type must be set", errModelInvalid)
	}
	return nil
}

var errModelInvalid = errors.New("coordinator: model")
