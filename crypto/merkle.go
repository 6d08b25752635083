package crypto

import (
	"encoding/binary"
	"errors"
)

// ErrEmptyTree is returned when a Merkle tree is built from zero leaves.
var ErrEmptyTree = errors.New("crypto: merkle tree needs at least one leaf")

// ErrIndexOutOfRange is returned by FindPath when the requested leaf index
// exceeds the number of leaves the tree was built from.
var ErrIndexOutOfRange = errors.New("crypto: merkle leaf index out of range")

// MerkleTree is a balanced binary tree over an explicit leaf slice. The
// leaf slice is padded with a duplicate of the last leaf up to the next
// power of two; every interior node is H(left || right).
type MerkleTree struct {
	numLeaves int
	levels    [][]Hash // levels[0] is the padded leaf row, levels[len-1] is the root row
}

// NewMerkleTree builds a tree from leaves. leaves must be non-empty.
func NewMerkleTree(leaves []Hash) (*MerkleTree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	padded := make([]Hash, len(leaves))
	copy(padded, leaves)
	for !isPowerOfTwo(len(padded)) {
		padded = append(padded, padded[len(leaves)-1])
	}

	levels := [][]Hash{padded}
	cur := padded
	for len(cur) > 1 {
		next := make([]Hash, len(cur)/2)
		for i := range next {
			next[i] = Sha256v(cur[2*i][:], cur[2*i+1][:])
		}
		levels = append(levels, next)
		cur = next
	}
	return &MerkleTree{numLeaves: len(leaves), levels: levels}, nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Root returns the Merkle root.
func (t *MerkleTree) Root() Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Proof is a sibling path bottom-up plus a bitmask of left/right positions,
// as required to reconstruct the root from a leaf.
type Proof struct {
	// Position is the leaf's index in the original (unpadded) leaf slice.
	Position uint64
	// Siblings is the sibling hash at each level, bottom-up.
	Siblings []Hash
	// RightMask has bit i set when, at level i, the node on the path is the
	// right child (so the sibling sits on the left).
	RightMask uint64
}

// FindPath returns the sibling path for leaf i.
func (t *MerkleTree) FindPath(i int) (Proof, error) {
	if i < 0 || i >= t.numLeaves {
		return Proof{}, ErrIndexOutOfRange
	}
	proof := Proof{Position: uint64(i)}
	idx := i
	for level := 0; level < len(t.levels)-1; level++ {
		row := t.levels[level]
		siblingIdx := idx ^ 1
		proof.Siblings = append(proof.Siblings, row[siblingIdx])
		if idx%2 == 1 {
			proof.RightMask |= 1 << uint(level)
		}
		idx /= 2
	}
	return proof, nil
}

// Marshal flattens proof as position(8) || right_mask(8) || num_siblings(4)
// || siblings(32 each), for transport over the wire or inclusion in an
// on-chain witness instruction.
func (p Proof) Marshal() []byte {
	out := make([]byte, 0, 20+32*len(p.Siblings))
	out = binary.BigEndian.AppendUint64(out, p.Position)
	out = binary.BigEndian.AppendUint64(out, p.RightMask)
	out = binary.BigEndian.AppendUint32(out, uint32(len(p.Siblings)))
	for _, s := range p.Siblings {
		out = append(out, s[:]...)
	}
	return out
}

// ErrMalformedProof is returned when a marshaled Proof is truncated or its
// declared sibling count doesn't match the remaining bytes.
var ErrMalformedProof = errors.New("crypto: malformed merkle proof")

// UnmarshalProof is the inverse of Proof.Marshal.
func UnmarshalProof(b []byte) (Proof, error) {
	if len(b) < 20 {
		return Proof{}, ErrMalformedProof
	}
	var p Proof
	p.Position = binary.BigEndian.Uint64(b[0:8])
	p.RightMask = binary.BigEndian.Uint64(b[8:16])
	n := binary.BigEndian.Uint32(b[16:20])
	b = b[20:]
	if uint32(len(b)) != n*32 {
		return Proof{}, ErrMalformedProof
	}
	p.Siblings = make([]Hash, n)
	for i := range p.Siblings {
		copy(p.Siblings[i][:], b[i*32:(i+1)*32])
	}
	return p, nil
}

// Verify recomputes the root along proof's sibling path starting from leaf
// and compares it against root.
func Verify(root Hash, leaf Hash, proof Proof) bool {
	cur := leaf
	for level, sibling := range proof.Siblings {
		isRight := proof.RightMask&(1<<uint(level)) != 0
		if isRight {
			cur = Sha256v(sibling[:], cur[:])
		} else {
			cur = Sha256v(cur[:], sibling[:])
		}
	}
	return cur == root
}
