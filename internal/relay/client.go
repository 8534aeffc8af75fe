package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/peercall/peercall/internal/metrics"
	"github.com/peercall/peercall/internal/protocol"
	"github.com/peercall/peercall/internal/ratelimit"
)

// client wraps one websocket connection. All reads happen on the readPump
// goroutine and all writes on the writePump goroutine, per gorilla's
// one-reader/one-writer contract.
type client struct {
	id   string
	srv  *Server
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(s *Server, id string, conn *websocket.Conn) *client {
	return &client{
		id:   id,
		srv:  s,
		conn: conn,
		send: make(chan []byte, s.cfg.SendQueueSize),
	}
}

// enqueue queues a pre-marshaled event for delivery. Delivery is best-effort:
// a full queue drops the event rather than blocking room bookkeeping on a
// slow reader, and events enqueued after disconnect are discarded.
func (c *client) enqueue(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.srv.metrics.Inc(metrics.DropReasonSendQueueFull)
		c.srv.log.Warn("send queue full, dropping event", "conn_id", c.id)
	}
}

func (c *client) readPump() {
	cfg := c.srv.cfg

	c.conn.SetReadLimit(cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	limiter := ratelimit.NewTokenBucket(nil, cfg.MaxMessagesPerSecond, cfg.MaxMessagesPerSecond)

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.srv.log.Debug("read failed", "conn_id", c.id, "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			c.writeClose(websocket.CloseUnsupportedData, "expected text message")
			return
		}

		if !limiter.Allow(1) {
			c.srv.metrics.Inc(metrics.DropReasonRateLimited)
			c.writeClose(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		ev, err := protocol.Parse(data)
		if err != nil {
			c.srv.metrics.Inc(metrics.DropReasonMalformed)
			c.srv.log.Debug("dropping malformed event", "conn_id", c.id, "err", err)
			continue
		}

		c.srv.handleEvent(c, ev)
	}
}

func (c *client) writePump() {
	cfg := c.srv.cfg
	ticker := time.NewTicker(cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// shutdown closes the send queue, which lets writePump flush queued events
// and then close the underlying connection.
func (c *client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// close sends a close frame immediately and drops the connection. Used for
// protocol violations and server shutdown.
func (c *client) close(code int, reason string) {
	c.writeClose(code, reason)
	_ = c.conn.Close()
}

func (c *client) writeClose(code int, reason string) {
	deadline := time.Now().Add(c.srv.cfg.WriteWait)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}
