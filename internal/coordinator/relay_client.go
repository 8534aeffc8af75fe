package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/peercall/peercall/internal/protocol"
)

const (
	relayWriteWait      = 10 * time.Second
	relayPongWait       = 60 * time.Second
	relayPingPeriod     = relayPongWait * 9 / 10
	relayMaxMessageSize = 64 * 1024
)

var errRelayClosed = errors.New("coordinator: relay connection closed")

// RelayClient is one websocket connection to the relay. Inbound events are
// decoded and validated on the read pump and surfaced on Events; the channel
// closes when the connection dies.
type RelayClient struct {
	conn *websocket.Conn
	log  *slog.Logger
	id   string

	incoming chan protocol.Event
	outgoing chan []byte
	done     chan struct{}

	closeOnce sync.Once
}

// DialRelay connects and consumes the initial welcome event, which carries
// the relay-assigned connection ID.
func DialRelay(ctx context.Context, rawURL string, logger *slog.Logger) (*RelayClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect relay (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("connect relay: %w", err)
	}
	conn.SetReadLimit(relayMaxMessageSize)

	_ = conn.SetReadDeadline(time.Now().Add(relayPongWait))
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	welcome, err := protocol.Parse(data)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("parse welcome: %w", err)
	}
	if welcome.Type != protocol.EventWelcome {
		_ = conn.Close()
		return nil, fmt.Errorf("expected welcome event, got %q", welcome.Type)
	}

	c := &RelayClient{
		conn:     conn,
		log:      logger.With("conn_id", welcome.Member),
		id:       welcome.Member,
		incoming: make(chan protocol.Event, 16),
		outgoing: make(chan []byte, 16),
		done:     make(chan struct{}),
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(relayPongWait))
	})

	go c.readPump()
	go c.writePump()

	return c, nil
}

// ID returns the relay-assigned connection identifier.
func (c *RelayClient) ID() string { return c.id }

// Events returns the inbound event stream. The channel closes when the
// connection is gone.
func (c *RelayClient) Events() <-chan protocol.Event { return c.incoming }

// JoinRoom asks the relay to place this connection in a room.
func (c *RelayClient) JoinRoom(room string) error {
	return c.send(protocol.Event{Type: protocol.EventJoinRoom, Room: room})
}

// SendSignal forwards a signaling envelope through the relay.
func (c *RelayClient) SendSignal(env protocol.SignalEnvelope) error {
	return c.send(protocol.Event{Type: protocol.EventSignal, Signal: &env})
}

func (c *RelayClient) send(ev protocol.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	select {
	case c.outgoing <- data:
		return nil
	case <-c.done:
		return errRelayClosed
	}
}

// Close tears the connection down. Safe to call multiple times and
// concurrently with pump shutdown.
func (c *RelayClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *RelayClient) readPump() {
	defer func() {
		c.Close()
		_ = c.conn.Close()
		close(c.incoming)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(relayPongWait))
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("relay read failed", "err", err)
			}
			return
		}
		ev, err := protocol.Parse(data)
		if err != nil {
			c.log.Warn("dropping malformed relay event", "err", err)
			continue
		}
		select {
		case c.incoming <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *RelayClient) writePump() {
	ticker := time.NewTicker(relayPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(relayWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(relayWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(relayWriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
