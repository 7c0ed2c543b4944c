package service

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	textMessage          = websocket.TextMessage
	wsWriteTimeout       = 5 * time.Second
	presenceWriteTimeout = 3 * time.Second
)

// wsConn wraps a gorilla connection with a write mutex and deadline so
// hub publishes and handler replies never interleave writes.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWSConn(conn *websocket.Conn) Conn {
	return &wsConn{conn: conn}
}

func (c *wsConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(messageType, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
