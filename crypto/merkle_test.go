package crypto

import "testing"

func TestMerkleSoundness(t *testing.T) {
	leaves := make([]Hash, 7)
	for i := range leaves {
		leaves[i] = Sha256([]byte{byte(i)})
	}
	tree, err := NewMerkleTree(leaves)
	if err != nil {
		t.Fatalf("NewMerkleTree: %v", err)
	}
	root := tree.Root()
	for i, leaf := range leaves {
		proof, err := tree.FindPath(i)
		if err != nil {
			t.Fatalf("FindPath(%d): %v", i, err)
		}
		if !Verify(root, leaf, proof) {
			t.Fatalf("proof for leaf %d failed to verify", i)
		}
		// Mutating the leaf must falsify verification.
		mutatedLeaf := Sha256([]byte{byte(i), 0xff})
		if Verify(root, mutatedLeaf, proof) {
			t.Fatalf("mutated leaf %d unexpectedly verified", i)
		}
		// Mutating a sibling must falsify verification.
		if len(proof.Siblings) > 0 {
			mutated := proof
			mutated.Siblings = append([]Hash{}, proof.Siblings...)
			mutated.Siblings[0] = Sha256([]byte{0xde, 0xad})
			if Verify(root, leaf, mutated) {
				t.Fatalf("mutated sibling for leaf %d unexpectedly verified", i)
			}
		}
	}
}

func TestMerkleOutOfRange(t *testing.T) {
	tree, err := NewMerkleTree([]Hash{Sha256([]byte("a"))})
	if err != nil {
		t.Fatalf("NewMerkleTree: %v", err)
	}
	if _, err := tree.FindPath(1); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestMerkleEmpty(t *testing.T) {
	if _, err := NewMerkleTree(nil); err == nil {
		t.Fatal("expected error for empty tree")
	}
}

func TestProofMarshalRoundTrip(t *testing.T) {
	leaves := make([]Hash, 5)
	for i := range leaves {
		leaves[i] = Sha256([]byte{byte(i)})
	}
	tree, err := NewMerkleTree(leaves)
	if err != nil {
		t.Fatalf("NewMerkleTree: %v", err)
	}
	for i := range leaves {
		proof, err := tree.FindPath(i)
		if err != nil {
			t.Fatalf("FindPath(%d): %v", i, err)
		}
		got, err := UnmarshalProof(proof.Marshal())
		if err != nil {
			t.Fatalf("UnmarshalProof(%d): %v", i, err)
		}
		if got.Position != proof.Position || got.RightMask != proof.RightMask {
			t.Fatalf("round-trip mismatch for leaf %d: got %+v, want %+v", i, got, proof)
		}
		if len(got.Siblings) != len(proof.Siblings) {
			t.Fatalf("sibling count mismatch for leaf %d", i)
		}
		for j := range got.Siblings {
			if got.Siblings[j] != proof.Siblings[j] {
				t.Fatalf("sibling %d mismatch for leaf %d", j, i)
			}
		}
		if !Verify(tree.Root(), leaves[i], got) {
			t.Fatalf("round-tripped proof for leaf %d failed to verify", i)
		}
	}
}

func TestUnmarshalProofRejectsTruncated(t *testing.T) {
	if _, err := UnmarshalProof([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated proof bytes")
	}
}
