// Package wsconn wraps a gorilla websocket connection with a write
// mutex. Reads stay single-goroutine (the connection's serve loop), but
// writes come from both message handlers and per-room broadcast
// schedulers, which gorilla does not allow concurrently.
package wsconn

import (
	"sync"

	"github.com/gorilla/websocket"
)

type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func New(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

func (c *Conn) ReadJSON(v any) error {
	return c.ws.ReadJSON(v)
}

func (c *Conn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ws.WriteJSON(v)
}

func (c *Conn) WriteCloseMessage(code int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}

func (c *Conn) Close() error {
	return c.ws.Close()
}
