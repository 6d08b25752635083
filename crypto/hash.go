// Package crypto holds the deterministic primitives the coordinator kernel
// and committee selection build on: hashing, Merkle trees, the seeded
// shuffle, the witness Bloom filter, and client signing keys. Everything
// here is pure and side-effect free so that both the centralized and the
// decentralized host compute byte-identical results from the same inputs.
package crypto

import "crypto/sha256"

// Hash is a 32-byte SHA-256 digest.
type Hash [32]byte

// Sha256 hashes a single byte slice.
func Sha256(data []byte) Hash {
	return sha256.Sum256(data)
}

// Sha256v concatenates its arguments and hashes the result, mirroring the
// variadic sha256v(&[&[u8]]) helper the kernel uses throughout committee
// selection, round seeding, and commitment hashing.
func Sha256v(parts ...[]byte) Hash {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Bytes returns the hash as a byte slice.
func (h Hash) Bytes() []byte { return h[:] }

// IsZero reports whether the hash is all-zero.
func (h Hash) IsZero() bool {
	for _, b := range h {
		if b != 0 {
			return false
		}
	}
	return true
}
