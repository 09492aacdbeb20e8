package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the slice of a websocket connection the hub needs. Tests swap in
// an in-memory implementation so lifecycle behavior is checkable without a
// socket.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// subscriber pairs a connection with a write mutex so the tick broadcast
// and point events never interleave a frame.
type subscriber struct {
	playerID string
	conn     Conn

	mu     sync.Mutex
	closed bool
}

func newSubscriber(conn Conn) *subscriber {
	return &subscriber{conn: conn}
}

// write sends one prepared frame under the write deadline.
func (s *subscriber) write(data []byte, wait time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeReserved(data, wait)
}

// reserve holds the write mutex open across registration so broadcast
// frames aimed at this connection queue behind the handshake. Every
// reserve must be paired with a release.
func (s *subscriber) reserve() { s.mu.Lock() }

func (s *subscriber) release() { s.mu.Unlock() }

// writeReserved sends one frame while the caller holds the write mutex
// via reserve.
func (s *subscriber) writeReserved(data []byte, wait time.Duration) error {
	if s.closed {
		return websocket.ErrCloseSent
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(wait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// close shuts the transport down; the read pump unblocks with an error.
func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.Close()
}
