package types

import "github.com/psyche-network/psyche/crypto"

// Commitment identifies a gradient blob and its author: the SHA-256 hash
// of the serialized compressed gradient, signed over with the author's
// wallet key.
type Commitment struct {
	DataHash  crypto.Hash
	Signature crypto.Signature
}

// SignCommitment hashes blob and signs the hash with priv.
func SignCommitment(priv crypto.PrivateKey, blob []byte) Commitment {
	h := crypto.Sha256(blob)
	return Commitment{
		DataHash:  h,
		Signature: crypto.Sign(priv, h[:]),
	}
}

// Verify reports whether the commitment's signature validates against pub.
func (c Commitment) Verify(pub crypto.PublicKey) bool {
	return crypto.VerifySignature(pub, c.DataHash[:], c.Signature)
}

// VerifyBlob additionally checks that blob actually hashes to DataHash,
// guarding against a signer who signed one hash but shipped a different
// blob.
func (c Commitment) VerifyBlob(pub crypto.PublicKey, blob []byte) bool {
	if crypto.Sha256(blob) != c.DataHash {
		return false
	}
	return c.Verify(pub)
}
