package committee

import (
	"errors"

	"github.com/psyche-network/psyche/crypto"
	"github.com/psyche-network/psyche/types"
)

// Proof carries a client's position and sibling Merkle path within one of
// the two orderings, so a verifier can reconstruct the leaf and confirm it
// against a root without holding the full client set.
type Proof struct {
	ClientId    types.ClientId
	MerkleProof crypto.Proof
}

// CommitteeProof is the shape TrainingResult.Proof carries: a proof of
// position within the committee ordering.
type CommitteeProof = Proof

// WitnessProof is the shape Witness.Proof carries: a proof of position
// within the witness ordering.
type WitnessProof = Proof

// VerifyCommitteeProof reconstructs proof's leaf under the committee salt
// and confirms it against root.
func VerifyCommitteeProof(root crypto.Hash, seed uint64, proof CommitteeProof) bool {
	return verifyProof(root, saltCommittee, seed, proof)
}

// VerifyWitnessProof reconstructs proof's leaf under the witness salt and
// confirms it against root.
func VerifyWitnessProof(root crypto.Hash, seed uint64, proof WitnessProof) bool {
	return verifyProof(root, saltWitness, seed, proof)
}

func verifyProof(root crypto.Hash, salt string, seed uint64, proof Proof) bool {
	l := leaf(salt, seed, proof.ClientId, int(proof.MerkleProof.Position))
	return crypto.Verify(root, l, proof.MerkleProof)
}

// Marshal flattens Proof as client_id.wallet(32) || client_id.p2p(32) ||
// merkle_proof, for inclusion in a Witness frame or an on-chain witness
// instruction's proof argument.
func (p Proof) Marshal() []byte {
	out := make([]byte, 0, 64+len(p.MerkleProof.Siblings)*32+20)
	out = append(out, p.ClientId.Wallet[:]...)
	out = append(out, p.ClientId.P2P[:]...)
	out = append(out, p.MerkleProof.Marshal()...)
	return out
}

// ErrMalformedProof is returned when a marshaled Proof is too short to
// contain its ClientId.
var ErrMalformedProof = errors.New("committee: malformed proof")

// UnmarshalProof is the inverse of Proof.Marshal.
func UnmarshalProof(b []byte) (Proof, error) {
	if len(b) < 64 {
		return Proof{}, ErrMalformedProof
	}
	var p Proof
	copy(p.ClientId.Wallet[:], b[0:32])
	copy(p.ClientId.P2P[:], b[32:64])
	mp, err := crypto.UnmarshalProof(b[64:])
	if err != nil {
		return Proof{}, err
	}
	p.MerkleProof = mp
	return p, nil
}
