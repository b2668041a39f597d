package websocket

import (
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
)

// conn serializes writes to one client. gorilla connections allow a single
// concurrent writer only.
type conn struct {
	ws           *gorilla.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func newConn(ws *gorilla.Conn, writeTimeout time.Duration) *conn {
	return &conn{ws: ws, writeTimeout: writeTimeout}
}

func (c *conn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteJSON(v)
}

func (c *conn) WriteBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(gorilla.BinaryMessage, data)
}

func (c *conn) closeWith(code int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := gorilla.FormatCloseMessage(code, text)
	_ = c.ws.WriteControl(gorilla.CloseMessage, msg, time.Now().Add(time.Second))
	_ = c.ws.Close()
}
