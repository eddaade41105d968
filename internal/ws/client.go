// Package ws streams live chat snapshots to screens over websockets.
// Each connection owns at most one subscription (messages or
// directory); closing the connection tears the subscription down,
// which is the resource-leak contract screens rely on.
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second    // time allowed to write a frame to the peer
	pongWait       = 60 * time.Second    // time allowed to read the next pong
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 4096                // limit on inbound frames
)

// client pairs a websocket connection with its outbound frame queue.
type client struct {
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:   conn,
		send:   make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

// enqueue hands a frame to the write pump. A peer too slow to drain its
// queue is disconnected rather than allowed to block snapshot fan-out.
func (c *client) enqueue(frame []byte) {
	select {
	case <-c.closed:
	case c.send <- frame:
	default:
		log.Warn().Msg("slow websocket peer, dropping connection")
		c.close()
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

// writePump drains the outbound queue onto the connection and keeps
// the peer alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.closed:
			return
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop consumes inbound frames until the connection dies, passing
// each to handle. It blocks the caller, keeping the HTTP handler (and
// its request context) alive for the connection's lifetime.
func (c *client) readLoop(handle func(payload []byte)) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
		if handle != nil {
			handle(payload)
		}
	}
}
