package livereg

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// Subscription describes one client's regression request, already
// validated and percent-decoded.
type Subscription struct {
	Instrument string
	Exchange   string
	Timeframes []string
	Timezone   string
	Length     int
	Lookbacks  []int
}

// Client is a websocket peer on the live regression endpoint.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	svc *Service
	sub Subscription

	sendMu     sync.Mutex
	sendClosed bool

	closed atomic.Bool
}

func NewClient(svc *Service, conn *websocket.Conn, sub Subscription) *Client {
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		svc:  svc,
		sub:  sub,
	}
}

// Run starts the pumps and blocks until the peer goes away.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) enqueue(msg []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed || c.closed.Load() {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.svc.met.DroppedSends.Inc()
	}
}

// Fail reports a terminal error in-band and closes the send channel,
// so the write pump flushes everything queued before it and then shuts
// the connection down. Later sends become no-ops.
func (c *Client) Fail(message string) {
	c.SendJSON(map[string]any{"type": "error", "message": message})
	c.sendMu.Lock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
	c.sendMu.Unlock()
}

// SendJSON marshals and enqueues a frame.
func (c *Client) SendJSON(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		log.Printf("[livereg] encoding frame for client %s: %v", c.id, err)
		return
	}
	c.enqueue(msg)
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

// readPump echoes every inbound text frame as a heartbeat so thin
// clients can measure liveness without a protocol.
func (c *Client) readPump() {
	defer func() {
		c.closed.Store(true)
		c.svc.RemoveSubscription(c)
		c.conn.Close()
		log.Printf("[livereg] client %s disconnected from %s", c.id, c.sub.Instrument)
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.SendJSON(map[string]any{
			"type":      "heartbeat",
			"received":  string(msg),
			"timestamp": time.Now().Format(time.RFC3339Nano),
		})
	}
}
