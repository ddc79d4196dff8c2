package signal

import (
	"errors"
	"sync"

	"github.com/dkeye/meet/internal/domain"
	"github.com/gorilla/websocket"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// wsConn is one accepted websocket and its outbound queue.
type wsConn struct {
	id   domain.ConnID
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newWSConn(id domain.ConnID, ws *websocket.Conn, buffer int) *wsConn {
	return &wsConn{
		id:   id,
		conn: ws,
		send: make(chan []byte, buffer),
	}
}

// TrySend queues data without blocking.
func (c *wsConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close is safe to call more than once and from any goroutine.
func (c *wsConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}
