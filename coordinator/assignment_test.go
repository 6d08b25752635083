package coordinator

import (
	"testing"

	"github.com/psyche-network/psyche/committee"
	"github.com/psyche-network/psyche/types"
)

func TestBatchIdsForStateCoversWindowContiguously(t *testing.T) {
	batches := BatchIdsForState(100, 4, 8)
	if len(batches) != 4 {
		t.Fatalf("expected 4 batches, got %d", len(batches))
	}
	cursor := uint64(100)
	for i, b := range batches {
		if b.Start != cursor {
			t.Fatalf("batch %d starts at %d, want %d", i, b.Start, cursor)
		}
		if b.Len() != 8 {
			t.Fatalf("batch %d spans %d indices, want 8", i, b.Len())
		}
		cursor = b.End + 1
	}
	if cursor != 100+4*8 {
		t.Fatalf("window ends at %d, want %d", cursor, 100+4*8)
	}
}

// The assignment invariant of the round data window: the union of every
// assignee's batches is exactly [dataIndex, dataIndex + batches*indices),
// and no index is assigned twice.
func TestAssignDataForStatePartitionsWindow(t *testing.T) {
	clients := make([]types.ClientId, 7)
	for i := range clients {
		clients[i] = makeClient(byte(i + 1))
	}

	for _, seed := range []uint64{0, 1, 42, 1 << 33} {
		sel, err := committee.New(1, 4, 50, clients, seed)
		if err != nil {
			t.Fatalf("committee.New: %v", err)
		}
		const (
			dataIndex       = uint64(512)
			batchesPerRound = uint16(6)
			indicesPerBatch = uint32(16)
		)
		assignments := AssignDataForState(sel, seed, 0, dataIndex, batchesPerRound, indicesPerBatch)

		covered := make(map[uint64]types.ClientId)
		for assignee, batches := range assignments {
			if role, err := sel.RoleOf(assignee); err != nil || role == committee.RoleTieBreaker {
				t.Fatalf("seed %d: tie breaker %s received an assignment", seed, assignee)
			}
			for _, b := range batches {
				for idx := b.Start; idx <= b.End; idx++ {
					if prev, dup := covered[idx]; dup {
						t.Fatalf("seed %d: index %d assigned to both %s and %s", seed, idx, prev, assignee)
					}
					covered[idx] = assignee
				}
			}
		}

		want := uint64(batchesPerRound) * uint64(indicesPerBatch)
		if uint64(len(covered)) != want {
			t.Fatalf("seed %d: covered %d indices, want %d", seed, len(covered), want)
		}
		for idx := dataIndex; idx < dataIndex+want; idx++ {
			if _, ok := covered[idx]; !ok {
				t.Fatalf("seed %d: index %d not assigned to any client", seed, idx)
			}
		}
	}
}

func TestAssignDataForStateDeterministic(t *testing.T) {
	clients := make([]types.ClientId, 5)
	for i := range clients {
		clients[i] = makeClient(byte(i + 1))
	}
	sel, err := committee.New(1, 3, 40, clients, 77)
	if err != nil {
		t.Fatalf("committee.New: %v", err)
	}
	a := AssignDataForState(sel, 77, 9, 0, 4, 8)
	b := AssignDataForState(sel, 77, 9, 0, 4, 8)
	if len(a) != len(b) {
		t.Fatalf("assignee counts differ: %d != %d", len(a), len(b))
	}
	for id, batches := range a {
		other := b[id]
		if len(batches) != len(other) {
			t.Fatalf("batch counts differ for %s", id)
		}
		for i := range batches {
			if batches[i] != other[i] {
				t.Fatalf("batch %d differs for %s: %s != %s", i, id, batches[i], other[i])
			}
		}
	}
}
