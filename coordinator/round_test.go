package coordinator

import (
	"testing"

	"github.com/psyche-network/psyche/types"
)

func TestWitnessMarshalRoundTrip(t *testing.T) {
	c := newTestCoordinator(t)
	clients := []types.ClientId{makeClient(1), makeClient(2)}
	for _, cl := range clients {
		c.JoinRun(cl)
	}
	c.Tick(clients, 0, 3)
	c.Tick(clients, int64(c.Config.WarmupTime), 3)

	sel, err := c.CurrentSelection()
	if err != nil {
		t.Fatalf("CurrentSelection: %v", err)
	}
	var id types.ClientId
	for _, candidate := range sel.WitnessOrder() {
		if _, ok := sel.IsWitnessEligible(candidate); ok {
			id = candidate
			break
		}
	}
	pos, _ := sel.IsWitnessEligible(id)
	proof, err := sel.WitnessProofFor(id)
	if err != nil {
		t.Fatalf("WitnessProofFor: %v", err)
	}

	w := Witness{
		Index:           uint64(pos),
		Proof:           proof,
		ParticipantBits: []byte{0xde, 0xad, 0xbe, 0xef},
		OrderBits:       []byte{0x01},
	}

	encoded := w.Marshal()
	got, err := UnmarshalWitness(encoded)
	if err != nil {
		t.Fatalf("UnmarshalWitness: %v", err)
	}
	if got.Index != w.Index {
		t.Fatalf("index mismatch: got %d, want %d", got.Index, w.Index)
	}
	if got.Proof.MerkleProof.Position != w.Proof.MerkleProof.Position {
		t.Fatalf("proof position mismatch")
	}
	if string(got.ParticipantBits) != string(w.ParticipantBits) {
		t.Fatalf("participant bits mismatch: got %x, want %x", got.ParticipantBits, w.ParticipantBits)
	}
	if string(got.OrderBits) != string(w.OrderBits) {
		t.Fatalf("order bits mismatch: got %x, want %x", got.OrderBits, w.OrderBits)
	}
}

func TestUnmarshalWitnessRejectsTruncated(t *testing.T) {
	if _, err := UnmarshalWitness([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated witness bytes")
	}
}
