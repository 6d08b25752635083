package crypto

import (
	"encoding/binary"
	"hash/fnv"
)

// bloomNumKeys is the number of independent FNV-1a hash keys a Bloom filter
// uses. Contains reports a positive only when every key's indexed bit is
// set, so more keys trade a lower false-positive rate for more bits
// touched per Add/Contains call.
const bloomNumKeys = 4

// Bloom is a fixed-size Bloom filter keyed by a per-filter set of u64 keys
// derived from a round seed, using FNV-1a as the underlying hash. It is
// used by witnessing clients to summarize which (signer, batch_id) and
// (signer, batch_id, sequence_number) tuples they observed during a round.
type Bloom struct {
	bits       []byte
	numBits    int
	keys       [bloomNumKeys]uint64
	numBitsSet int
}

// NewBloom creates an empty Bloom filter with numBits storage bits, whose
// hash keys are derived deterministically from seed so that two clients
// computing a filter for the same round produce comparable filters.
func NewBloom(numBits int, seed uint64) *Bloom {
	if numBits <= 0 {
		numBits = 1
	}
	b := &Bloom{
		bits:    make([]byte, (numBits+7)/8),
		numBits: numBits,
	}
	g := NewLCG(seed)
	for i := range b.keys {
		b.keys[i] = g.Next()
	}
	return b
}

func (b *Bloom) indices(data []byte) [bloomNumKeys]int {
	var out [bloomNumKeys]int
	var keyBytes [8]byte
	for i, key := range b.keys {
		binary.LittleEndian.PutUint64(keyBytes[:], key)
		h := fnv.New64a()
		h.Write(keyBytes[:])
		h.Write(data)
		out[i] = int(h.Sum64() % uint64(b.numBits))
	}
	return out
}

// Add marks data as observed.
func (b *Bloom) Add(data []byte) {
	for _, idx := range b.indices(data) {
		byteIdx, bit := idx/8, uint(idx%8)
		if b.bits[byteIdx]&(1<<bit) == 0 {
			b.bits[byteIdx] |= 1 << bit
			b.numBitsSet++
		}
	}
}

// Contains returns false iff any indexed bit for data is zero.
func (b *Bloom) Contains(data []byte) bool {
	for _, idx := range b.indices(data) {
		byteIdx, bit := idx/8, uint(idx%8)
		if b.bits[byteIdx]&(1<<bit) == 0 {
			return false
		}
	}
	return true
}

// NumBitsSet returns how many storage bits are currently set, for
// debugging and fill-ratio diagnostics.
func (b *Bloom) NumBitsSet() int { return b.numBitsSet }

// Bytes returns the filter's backing bitset, for serialization over the
// wire or into an on-chain account layout.
func (b *Bloom) Bytes() []byte { return b.bits }

// LoadBloom reconstructs a Bloom filter from its serialized bitset, seed
// and bit count, e.g. after deserializing a Witness off the wire.
func LoadBloom(numBits int, seed uint64, bits []byte) *Bloom {
	b := NewBloom(numBits, seed)
	copy(b.bits, bits)
	set := 0
	for _, byt := range b.bits {
		for i := 0; i < 8; i++ {
			if byt&(1<<uint(i)) != 0 {
				set++
			}
		}
	}
	b.numBitsSet = set
	return b
}
