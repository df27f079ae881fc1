// Package link wraps a websocket connection as a full-duplex message link
// owned by exactly one bridging session per side.
package link

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type wsConn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (int, []byte, error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Conn is a send-safe wrapper around one websocket peer. Sends are
// fire-and-forget from the session's perspective; a failed send surfaces as
// an error to the caller but carries no retry semantics.
type Conn struct {
	mu           sync.Mutex
	ws           wsConn
	writeTimeout time.Duration
	closed       bool
}

func New(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	return newConn(ws, writeTimeout)
}

func newConn(ws wsConn, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Conn{ws: ws, writeTimeout: writeTimeout}
}

// SendJSON marshals v and writes it as one text message.
func (c *Conn) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close sends a best-effort close frame and tears down the socket. Safe to
// call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	deadline := time.Now().Add(c.writeTimeout)
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.ws.Close()
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ReadLoop delivers inbound messages to handle until the socket errors or
// closes, then returns the terminal error.
func (c *Conn) ReadLoop(handle func(data []byte)) error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		handle(data)
	}
}
