package server

import (
	"fmt"
	"net"
	"sync"

	"github.com/psyche-network/psyche/log"
	"github.com/psyche-network/psyche/types"
	"github.com/psyche-network/psyche/wire"
)

// session is one authenticated client connection. Its identity is fixed at
// handshake time and never re-verified per frame: the TCP connection itself
// is the authenticated channel, so admission is a one-time handshake, not a
// per-frame signature.
type session struct {
	id   types.ClientId
	conn net.Conn
	log  *log.Logger

	writeMu sync.Mutex
}

func newSession(id types.ClientId, conn net.Conn) *session {
	return &session{
		id:   id,
		conn: conn,
		log:  log.Module("server").With("client", id.String()),
	}
}

// send frames and writes msg to the connection, serialized against
// concurrent writers (the tick loop and the per-session read loop may both
// push frames to the same session).
func (s *session) send(msg wire.ServerMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := wire.WriteFrame(s.conn, msg.Marshal()); err != nil {
		return fmt.Errorf("%w: %w", ErrSessionClosed, err)
	}
	return nil
}

func (s *session) close() {
	_ = s.conn.Close()
}
