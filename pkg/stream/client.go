package stream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// client is one websocket subscriber. Events flow through a buffered send
// queue consumed by writePump; readPump only watches for disconnects.
type client struct {
	conn *websocket.Conn
	send chan Event

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		if c.closed != nil {
			close(c.closed)
		}
		c.conn.Close()
	})
}

func (c *client) writePump(log *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				log.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// readPump consumes inbound frames until the connection drops. The stream
// is one-way; client frames are discarded.
func (c *client) readPump() {
	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
