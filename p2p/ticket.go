// Package p2p implements the gradient exchange fabric: an authenticated
// gossip broadcast plane for TrainingResult commitments, a
// content-addressed blob transfer plane keyed by BlobTicket, an allowlist
// gating which identities may connect, and a download manager that
// multiplexes concurrent blob fetches with per-stream error tolerance.
package p2p

import (
	"encoding/binary"
	"errors"

	"github.com/psyche-network/psyche/crypto"
)

// BlobTicket is a self-describing content-addressed blob locator: the
// blob's hash plus the node addresses that can provide it.
type BlobTicket struct {
	Hash      crypto.Hash
	Providers []string
}

// Marshal flattens a BlobTicket as hash(32) || num_providers(2) ||
// (len(provider)(2) || provider) for each provider.
func (t BlobTicket) Marshal() []byte {
	size := 32 + 2
	for _, p := range t.Providers {
		size += 2 + len(p)
	}
	out := make([]byte, 0, size)
	out = append(out, t.Hash[:]...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(t.Providers)))
	for _, p := range t.Providers {
		out = binary.BigEndian.AppendUint16(out, uint16(len(p)))
		out = append(out, p...)
	}
	return out
}

// ErrMalformedTicket is returned when a marshaled BlobTicket is truncated.
var ErrMalformedTicket = errors.New("p2p: malformed blob ticket")

// UnmarshalBlobTicket is the inverse of BlobTicket.Marshal.
func UnmarshalBlobTicket(b []byte) (BlobTicket, error) {
	if len(b) < 34 {
		return BlobTicket{}, ErrMalformedTicket
	}
	var t BlobTicket
	copy(t.Hash[:], b[0:32])
	n := int(binary.BigEndian.Uint16(b[32:34]))
	rest := b[34:]
	t.Providers = make([]string, n)
	for i := 0; i < n; i++ {
		if len(rest) < 2 {
			return BlobTicket{}, ErrMalformedTicket
		}
		l := int(binary.BigEndian.Uint16(rest[0:2]))
		rest = rest[2:]
		if len(rest) < l {
			return BlobTicket{}, ErrMalformedTicket
		}
		t.Providers[i] = string(rest[:l])
		rest = rest[l:]
	}
	return t, nil
}
