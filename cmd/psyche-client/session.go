package main

import (
	"context"
	"fmt"
	"net"

	"github.com/psyche-network/psyche/coordinator"
	"github.com/psyche-network/psyche/crypto"
	"github.com/psyche-network/psyche/types"
	"github.com/psyche-network/psyche/wire"
)

// serverSession is the client side of the centralized TCP protocol's
// handshake and frame exchange, the counterpart to the server package's
// session type.
type serverSession struct {
	conn net.Conn
}

// dialServer connects to addr and completes the challenge-response
// handshake, proving possession of both walletPriv and p2pPriv.
func dialServer(addr string, walletPriv, p2pPriv crypto.PrivateKey) (*serverSession, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	challenge, err := wire.ReadFrame(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read challenge: %w", err)
	}
	resp := types.ToSignedBytes(walletPriv, p2pPriv, challenge)
	if err := wire.WriteFrame(conn, resp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send handshake response: %w", err)
	}
	return &serverSession{conn: conn}, nil
}

// Send writes msg as a single length-prefixed frame.
func (s *serverSession) Send(msg wire.ClientMessage) error {
	return wire.WriteFrame(s.conn, msg.Marshal())
}

// Recv blocks for the next server frame and decodes it.
func (s *serverSession) Recv() (wire.ServerMessage, error) {
	payload, err := wire.ReadFrame(s.conn)
	if err != nil {
		return wire.ServerMessage{}, err
	}
	return wire.UnmarshalServerMessage(payload)
}

func (s *serverSession) Close() error {
	return s.conn.Close()
}

// sessionWitnessSink adapts a serverSession into a client.WitnessSink,
// submitting a completed Witness as the Client -> Server Witness frame.
type sessionWitnessSink struct {
	sess *serverSession
}

func (w sessionWitnessSink) SubmitWitness(ctx context.Context, signer types.ClientId, witness coordinator.Witness) error {
	return w.sess.Send(wire.ClientMessage{Witness: &wire.WitnessMessage{Signer: signer, Witness: witness}})
}
