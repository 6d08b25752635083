package server

import "errors"

// ErrHandshakeFailed is returned when a session's challenge-response
// handshake fails signature verification or is malformed.
var ErrHandshakeFailed = errors.New("server: handshake failed")

// ErrSignerMismatch is returned when a Witness frame's Signer does not
// match the wallet key established during handshake for that connection.
var ErrSignerMismatch = errors.New("server: frame signer does not match session identity")

// ErrSessionClosed is returned from session writes attempted after the
// session's connection has been torn down.
var ErrSessionClosed = errors.New("server: session closed")
