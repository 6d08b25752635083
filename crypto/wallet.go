package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
)

// PublicKey is a fixed-size ed25519 public key, used for both the
// persistent wallet identity and the ephemeral P2P session identity.
// ed25519's native 64-byte signature is what Commitment.Signature is
// sized to.
type PublicKey [ed25519.PublicKeySize]byte

// PrivateKey is a fixed-size ed25519 private key.
type PrivateKey [ed25519.PrivateKeySize]byte

// Signature is a fixed-size ed25519 signature.
type Signature [ed25519.SignatureSize]byte

// ErrInvalidSignature is returned when a signature fails verification.
var ErrInvalidSignature = errors.New("crypto: invalid signature")

// GenerateKey creates a new ed25519 key pair.
func GenerateKey() (PublicKey, PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return PublicKey{}, PrivateKey{}, err
	}
	var pk PublicKey
	var sk PrivateKey
	copy(pk[:], pub)
	copy(sk[:], priv)
	return pk, sk, nil
}

// Public returns the public key embedded in priv.
func (priv PrivateKey) Public() PublicKey {
	var pub PublicKey
	copy(pub[:], ed25519.PrivateKey(priv[:]).Public().(ed25519.PublicKey))
	return pub
}

// Sign signs message with priv.
func Sign(priv PrivateKey, message []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(ed25519.PrivateKey(priv[:]), message))
	return sig
}

// VerifySignature reports whether sig is a valid signature by pub over
// message.
func VerifySignature(pub PublicKey, message []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), message, sig[:])
}

// ChallengeSize is the length in bytes of the random challenge used during
// the P2P handshake.
const ChallengeSize = 32

// SignedBytes is the wire layout produced by ToSignedBytes: both public
// keys followed by both signatures over the challenge, proving possession
// of the wallet key and the P2P key in one message.
type SignedBytes struct {
	WalletPub PublicKey
	P2PPub    PublicKey
	WalletSig Signature
	P2PSig    Signature
}

// ToSignedBytes signs challenge with both the wallet and P2P private keys;
// its Marshal form is what FromSignedBytes parses and verifies.
func ToSignedBytes(walletPriv, p2pPriv PrivateKey, challenge []byte) SignedBytes {
	return SignedBytes{
		WalletPub: walletPriv.Public(),
		P2PPub:    p2pPriv.Public(),
		WalletSig: Sign(walletPriv, challenge),
		P2PSig:    Sign(p2pPriv, challenge),
	}
}

// Marshal flattens SignedBytes into a single byte slice: walletPub(32) ||
// p2pPub(32) || walletSig(64) || p2pSig(64).
func (s SignedBytes) Marshal() []byte {
	out := make([]byte, 0, 2*ed25519.PublicKeySize+2*ed25519.SignatureSize)
	out = append(out, s.WalletPub[:]...)
	out = append(out, s.P2PPub[:]...)
	out = append(out, s.WalletSig[:]...)
	out = append(out, s.P2PSig[:]...)
	return out
}

// ErrMalformedSignedBytes is returned when the wire encoding of SignedBytes
// is the wrong length.
var ErrMalformedSignedBytes = errors.New("crypto: malformed signed-bytes challenge response")

// ParseSignedBytes is the inverse of Marshal.
func ParseSignedBytes(b []byte) (SignedBytes, error) {
	want := 2*ed25519.PublicKeySize + 2*ed25519.SignatureSize
	if len(b) != want {
		return SignedBytes{}, ErrMalformedSignedBytes
	}
	var s SignedBytes
	off := 0
	copy(s.WalletPub[:], b[off:off+ed25519.PublicKeySize])
	off += ed25519.PublicKeySize
	copy(s.P2PPub[:], b[off:off+ed25519.PublicKeySize])
	off += ed25519.PublicKeySize
	copy(s.WalletSig[:], b[off:off+ed25519.SignatureSize])
	off += ed25519.SignatureSize
	copy(s.P2PSig[:], b[off:off+ed25519.SignatureSize])
	return s, nil
}

// FromSignedBytes parses a marshaled SignedBytes and verifies both
// signatures were made over challenge, returning the verified key pair.
func FromSignedBytes(b []byte, challenge []byte) (walletPub, p2pPub PublicKey, err error) {
	s, err := ParseSignedBytes(b)
	if err != nil {
		return PublicKey{}, PublicKey{}, err
	}
	if !VerifySignature(s.WalletPub, challenge, s.WalletSig) {
		return PublicKey{}, PublicKey{}, ErrInvalidSignature
	}
	if !VerifySignature(s.P2PPub, challenge, s.P2PSig) {
		return PublicKey{}, PublicKey{}, ErrInvalidSignature
	}
	return s.WalletPub, s.P2PPub, nil
}
