package committee

import (
	"testing"

	"github.com/psyche-network/psyche/crypto"
	"github.com/psyche-network/psyche/types"
)

func makeClients(n int) []types.ClientId {
	clients := make([]types.ClientId, n)
	for i := range clients {
		var wallet, p2p crypto.PublicKey
		wallet[0] = byte(i)
		wallet[1] = byte(i >> 8)
		p2p[0] = byte(i + 1)
		clients[i] = types.ClientId{Wallet: wallet, P2P: p2p}
	}
	return clients
}

func TestSelectionDeterministic(t *testing.T) {
	clients := makeClients(20)
	a, err := New(2, 5, 50, clients, 12345)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New(2, 5, 50, clients, 12345)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.CommitteeRoot() != b.CommitteeRoot() {
		t.Fatal("committee roots differ for identical inputs")
	}
	if a.WitnessRoot() != b.WitnessRoot() {
		t.Fatal("witness roots differ for identical inputs")
	}
	for _, c := range clients {
		ra, _ := a.RoleOf(c)
		rb, _ := b.RoleOf(c)
		if ra != rb {
			t.Fatalf("role mismatch for %s: %v != %v", c, ra, rb)
		}
	}
}

func TestSelectionCountsSumToTotal(t *testing.T) {
	clients := makeClients(37)
	s, err := New(3, 10, 40, clients, 999)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tb, v, tr := s.Counts()
	if tb+v+tr != len(clients) {
		t.Fatalf("counts %d+%d+%d != %d", tb, v, tr, len(clients))
	}
	if tb != 3 {
		t.Fatalf("expected 3 tie breakers, got %d", tb)
	}
	wantVerifier := ((len(clients) - 3) * 40) / 100
	if v != wantVerifier {
		t.Fatalf("expected %d verifiers, got %d", wantVerifier, v)
	}
}

func TestCommitteeProofRoundTrip(t *testing.T) {
	clients := makeClients(15)
	s, err := New(2, 4, 50, clients, 42)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, c := range clients {
		proof, err := s.CommitteeProofFor(c)
		if err != nil {
			t.Fatalf("CommitteeProofFor: %v", err)
		}
		if !VerifyCommitteeProof(s.CommitteeRoot(), 42, proof) {
			t.Fatalf("proof failed to verify for %s", c)
		}
		// Mutating the position must falsify verification.
		mutated := proof
		mutated.MerkleProof.Position++
		if VerifyCommitteeProof(s.CommitteeRoot(), 42, mutated) {
			t.Fatal("mutated proof unexpectedly verified")
		}
	}
}

func TestWitnessEligibility(t *testing.T) {
	clients := makeClients(10)
	s, err := New(1, 4, 50, clients, 7)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	eligible := 0
	for _, c := range clients {
		if _, ok := s.IsWitnessEligible(c); ok {
			eligible++
		}
	}
	if eligible != 4 {
		t.Fatalf("expected 4 witness-eligible clients, got %d", eligible)
	}
}
