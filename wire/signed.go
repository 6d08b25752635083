package wire

import (
	"errors"

	"github.com/psyche-network/psyche/crypto"
)

// SignedMessage is the authenticated envelope gossip messages travel in:
// from (the signer's public key), data (the encoded message), and a
// signature over data by from's private key. The centralized TCP protocol
// does not wrap its frames in it: ClientMessage and ServerMessage frames
// are sent unsigned, and that connection is authenticated once, by the
// handshake.
type SignedMessage struct {
	From      crypto.PublicKey
	Data      []byte
	Signature crypto.Signature
}

// Sign produces a SignedMessage over data, signed by priv.
func Sign(priv crypto.PrivateKey, data []byte) SignedMessage {
	return SignedMessage{
		From:      priv.Public(),
		Data:      data,
		Signature: crypto.Sign(priv, data),
	}
}

// Verify reports whether m.Signature is a valid signature by m.From over
// m.Data.
func (m SignedMessage) Verify() bool {
	return crypto.VerifySignature(m.From, m.Data, m.Signature)
}

// ErrMalformedSignedMessage is returned when a marshaled SignedMessage is
// too short to contain its fixed-size fields.
var ErrMalformedSignedMessage = errors.New("wire: malformed signed message")

const signedMessageFixedLen = 32 + 64 // From + Signature; Data is variable-length

// Marshal flattens m as from(32) || signature(64) || data.
func (m SignedMessage) Marshal() []byte {
	out := make([]byte, 0, signedMessageFixedLen+len(m.Data))
	out = append(out, m.From[:]...)
	out = append(out, m.Signature[:]...)
	out = append(out, m.Data...)
	return out
}

// ParseSignedMessage is the inverse of Marshal. It does not verify the
// signature; callers must call Verify explicitly.
func ParseSignedMessage(b []byte) (SignedMessage, error) {
	if len(b) < signedMessageFixedLen {
		return SignedMessage{}, ErrMalformedSignedMessage
	}
	var m SignedMessage
	copy(m.From[:], b[0:32])
	copy(m.Signature[:], b[32:96])
	m.Data = append([]byte(nil), b[96:]...)
	return m, nil
}

// Marshaler is implemented by message payloads that can be flattened to
// bytes for signing and framing.
type Marshaler interface {
	Marshal() []byte
}

// Unmarshaler is implemented by message payloads that can be parsed back
// out of their Marshal encoding.
type Unmarshaler interface {
	Unmarshal([]byte) error
}

// SignValue marshals v and wraps the result in a SignedMessage signed by
// priv.
func SignValue[T Marshaler](priv crypto.PrivateKey, v T) SignedMessage {
	return Sign(priv, v.Marshal())
}

// DecodeVerified verifies m's signature and unmarshals its data into out.
func DecodeVerified[T Unmarshaler](m SignedMessage, out T) error {
	if !m.Verify() {
		return crypto.ErrInvalidSignature
	}
	return out.Unmarshal(m.Data)
}
