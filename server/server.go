// Package server implements the centralized TCP host: a length-prefixed
// frame protocol, challenge-response handshake, and the client<->server
// message set, driving a single coordinator.Coordinator.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/psyche-network/psyche/coordinator"
	"github.com/psyche-network/psyche/log"
	"github.com/psyche-network/psyche/types"
	"github.com/psyche-network/psyche/wire"
)

var errConfigInvalid = errors.New("server: config")

// Config bounds the server's tick cadence.
type Config struct {
	// TickInterval is how often the server drives coordinator.Tick.
	TickInterval time.Duration
}

// Check validates Config.
func (c Config) Check() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick_interval must be > 0", errConfigInvalid)
	}
	return nil
}

// Server hosts one coordinator.Coordinator over TCP. The kernel documents
// itself as single-owner with no internal locking (coordinator/kernel.go);
// Server honors that contract by holding mu around every coordinator call,
// serializing the tick loop against concurrent session dispatches rather
// than letting the kernel synchronize itself.
type Server struct {
	cfg Config
	log *log.Logger

	mu       sync.Mutex
	coord    *coordinator.Coordinator
	sessions map[types.ClientId]*session
}

// New creates a Server hosting coord.
func New(cfg Config, coord *coordinator.Coordinator) (*Server, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return &Server{
		cfg:      cfg,
		coord:    coord,
		sessions: make(map[types.ClientId]*session),
		log:      log.Module("server"),
	}, nil
}

// Serve accepts connections on ln and drives the tick loop until ctx is
// cancelled. randomSeed supplies each tick's protocol-level random seed (a
// real source in production; a fixed generator in tests for determinism).
func (s *Server) Serve(ctx context.Context, ln net.Listener, randomSeed func() uint64) error {
	go s.tickLoop(ctx, randomSeed)
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) tickLoop(ctx context.Context, randomSeed func() uint64) {
	t := time.NewTicker(s.cfg.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.tick(now.Unix(), randomSeed())
		}
	}
}

func (s *Server) tick(nowUnix int64, seed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make([]types.ClientId, 0, len(s.sessions))
	for id := range s.sessions {
		active = append(active, id)
	}
	outcome, err := s.coord.Tick(active, nowUnix, seed)
	if err != nil {
		s.log.Warn("tick failed", "err", err)
		return
	}
	if outcome.EpochSummary != nil {
		s.log.Info("epoch closed", "epoch", s.coord.Progress.Epoch, "step", s.coord.Progress.Step)
	}
	s.broadcastSnapshotLocked()
}

// broadcastSnapshotLocked pushes the current CoordinatorSnapshot to every
// registered session. Callers must hold mu.
func (s *Server) broadcastSnapshotLocked() {
	snap := wire.FromCoordinator(s.coord)
	msg := wire.ServerMessage{Coordinator: &snap}
	for _, sess := range s.sessions {
		if err := sess.send(msg); err != nil {
			s.log.Warn("snapshot push failed", "client", sess.id.String(), "err", err)
		}
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	id, err := handshake(conn)
	if err != nil {
		s.log.Warn("handshake failed", "remote", conn.RemoteAddr(), "err", err)
		return
	}

	sess := newSession(id, conn)
	if err := s.welcome(sess); err != nil {
		s.log.Warn("welcome failed", "client", id.String(), "err", err)
		return
	}
	defer s.unregister(sess)

	for {
		payload, readErr := wire.ReadFrame(conn)
		if readErr != nil {
			if readErr != io.EOF {
				s.log.Debug("session closed", "client", id.String(), "err", readErr)
			}
			return
		}
		msg, parseErr := wire.UnmarshalClientMessage(payload)
		if parseErr != nil {
			s.log.Warn("malformed client frame", "client", id.String(), "err", parseErr)
			continue
		}
		if dispatchErr := s.dispatch(sess, msg); dispatchErr != nil {
			s.log.Warn("dispatch failed", "client", id.String(), "err", dispatchErr)
		}
	}
}

// handshake issues a fresh challenge and validates the client's signed
// response.
func handshake(conn net.Conn) (types.ClientId, error) {
	challenge, err := wire.NewChallenge()
	if err != nil {
		return types.ClientId{}, err
	}
	if err := wire.WriteFrame(conn, challenge[:]); err != nil {
		return types.ClientId{}, err
	}
	resp, err := wire.ReadFrame(conn)
	if err != nil {
		return types.ClientId{}, err
	}
	id, err := types.NewClientIdFromSignedBytes(resp, challenge[:])
	if err != nil {
		return types.ClientId{}, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	return id, nil
}

// welcome registers sess and sends its initial peer list and coordinator
// snapshot, all under mu so a concurrent tick cannot observe a
// half-registered session.
func (s *Server) welcome(sess *session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	peers := make([]wire.PeerAddr, 0, len(s.sessions))
	for id, other := range s.sessions {
		peers = append(peers, wire.PeerAddr{Id: id, Address: other.conn.RemoteAddr().String()})
	}
	s.sessions[sess.id] = sess

	if err := sess.send(wire.ServerMessage{P2PConnect: &wire.PeerList{Peers: peers}}); err != nil {
		delete(s.sessions, sess.id)
		return err
	}
	snap := wire.FromCoordinator(s.coord)
	if err := sess.send(wire.ServerMessage{Coordinator: &snap}); err != nil {
		delete(s.sessions, sess.id)
		return err
	}
	return nil
}

func (s *Server) unregister(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
}

// dispatch applies msg to the coordinator on behalf of sess.
func (s *Server) dispatch(sess *session, msg wire.ClientMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case msg.Join != nil:
		if msg.Join.RunID != s.coord.RunID {
			return fmt.Errorf("server: join for unknown run %q", msg.Join.RunID)
		}
		if _, err := s.coord.JoinRun(sess.id); err != nil {
			return err
		}
		s.broadcastSnapshotLocked()
		return nil

	case msg.Witness != nil:
		if !msg.Witness.Signer.Equal(sess.id) {
			return ErrSignerMismatch
		}
		return s.coord.Witness(msg.Witness.Signer, msg.Witness.Witness, time.Now().Unix())

	case msg.HealthCheck != nil:
		s.coord.RecordHealthChecks(msg.HealthCheck.Checks)
		return nil

	case msg.Checkpoint != nil:
		if s.coord.Model.LLM == nil {
			return nil
		}
		updated := *s.coord.Model.LLM
		updated.Checkpoint = msg.Checkpoint.Checkpoint
		newModel := coordinator.Model{LLM: &updated}
		if err := s.coord.UpdateConfigModel(nil, &newModel); err != nil {
			return err
		}
		s.broadcastSnapshotLocked()
		return nil
	}
	return nil
}
