package stream

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chartstream/internal/heikinashi"
	"chartstream/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// viewKey identifies one resampled view of an instrument. Clients
// sharing a view share the group's resampler for it.
type viewKey struct {
	Interval string
	Timezone string
}

// Client represents a single WebSocket peer subscribed to one
// instrument view.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	manager *Manager

	instrument string
	interval   model.Interval
	timezone   string
	loc        *time.Location

	// Heikin-Ashi clients carry their own recurrence state, seeded
	// during backfill and advanced only by completed bars.
	heikin bool
	ha     *heikinashi.Transformer

	closed atomic.Bool
	live   atomic.Bool
}

// NewClient wraps an upgraded connection. Run must be called to start
// the pumps.
func NewClient(m *Manager, conn *websocket.Conn, instrument string, iv model.Interval, timezone string, loc *time.Location, heikin bool) *Client {
	return &Client{
		id:         uuid.NewString(),
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		manager:    m,
		instrument: instrument,
		interval:   iv,
		timezone:   timezone,
		loc:        loc,
		heikin:     heikin,
	}
}

func (c *Client) key() viewKey {
	return viewKey{Interval: c.interval.String(), Timezone: c.timezone}
}

// Run starts the read and write pumps and blocks until the peer goes
// away.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// enqueue hands a message to the write pump without blocking. A full
// buffer means the client cannot keep up; the message is dropped.
func (c *Client) enqueue(msg []byte) {
	if c.closed.Load() {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.manager.met.DroppedSends.Inc()
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Write coalescing: batch queued messages into a single
			// frame with newline separators
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// readPump drains inbound frames. This endpoint has no client
// protocol; anything received is treated as a keepalive.
func (c *Client) readPump() {
	defer func() {
		c.closed.Store(true)
		c.manager.Detach(c)
		c.conn.Close()
		log.Printf("[stream] client %s disconnected from %s/%s", c.id, c.instrument, c.interval)
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}
