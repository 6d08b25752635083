// Package types holds the coordinator's core data-model value types:
// client identifiers, batch ranges, and commitments. These are plain
// value types shared by the committee, coordinator, wire, and p2p
// packages.
package types

import (
	"encoding/hex"

	"github.com/psyche-network/psyche/crypto"
)

// WalletKey is a client's persistent identity key.
type WalletKey = crypto.PublicKey

// P2PKey is a client's ephemeral session-addressing key.
type P2PKey = crypto.PublicKey

// ClientId is a pair (wallet key, P2P public key). Equality is by wallet
// key, the persistent identity; the P2P key is an ephemeral session
// addressing datum and does not participate in equality or hashing for
// committee purposes.
type ClientId struct {
	Wallet WalletKey
	P2P    P2PKey
}

// Equal compares two ClientIds by wallet key only.
func (c ClientId) Equal(o ClientId) bool {
	return c.Wallet == o.Wallet
}

// Bytes returns the byte representation used when hashing a ClientId into
// a committee rank or Merkle leaf: the wallet key followed by the P2P key.
func (c ClientId) Bytes() []byte {
	out := make([]byte, 0, len(c.Wallet)+len(c.P2P))
	out = append(out, c.Wallet[:]...)
	out = append(out, c.P2P[:]...)
	return out
}

// String renders the ClientId's wallet key as a hex string, for logging.
func (c ClientId) String() string {
	return hex.EncodeToString(c.Wallet[:])
}

// NewClientIdFromSignedBytes parses a signed challenge response (as
// produced by ToSignedBytes) and extracts the wallet key and P2P key,
// verifying that the presenter holds both private keys.
func NewClientIdFromSignedBytes(signed []byte, challenge []byte) (ClientId, error) {
	wallet, p2p, err := crypto.FromSignedBytes(signed, challenge)
	if err != nil {
		return ClientId{}, err
	}
	return ClientId{Wallet: wallet, P2P: p2p}, nil
}

// ToSignedBytes produces the inverse of NewClientIdFromSignedBytes: proof,
// over a fresh challenge, of possession of both the wallet and P2P keys.
func ToSignedBytes(walletPriv, p2pPriv crypto.PrivateKey, challenge []byte) []byte {
	return crypto.ToSignedBytes(walletPriv, p2pPriv, challenge).Marshal()
}
