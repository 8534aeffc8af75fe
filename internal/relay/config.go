package relay

import (
	"net/http"
	"time"
)

const (
	DefaultMaxMessageBytes      = 64 * 1024 // enough for any SDP
	DefaultMaxMessagesPerSecond = 50
	DefaultSendQueueSize        = 64
	DefaultWriteWait            = 10 * time.Second
	DefaultPongWait             = 60 * time.Second
)

// Config holds the per-connection knobs of the relay server.
type Config struct {
	// MaxMessageBytes bounds a single inbound signaling message.
	MaxMessageBytes int64

	// MaxMessagesPerSecond bounds the inbound signaling rate per connection.
	// Violations close the connection with a policy-violation close code.
	MaxMessagesPerSecond int64

	// SendQueueSize is the per-connection outbound event queue length. A full
	// queue drops the event (at-most-once, best-effort delivery).
	SendQueueSize int

	// WriteWait is the deadline for a single websocket write.
	WriteWait time.Duration

	// PongWait is how long a connection may stay silent before it is
	// considered dead. Pings are sent at 9/10 of this period.
	PongWait time.Duration

	// CheckOrigin overrides the websocket upgrader's origin check. Nil allows
	// all origins, matching dev-mode behavior; deployments front the relay
	// with their own origin policy.
	CheckOrigin func(r *http.Request) bool
}

func (c Config) WithDefaults() Config {
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if c.MaxMessagesPerSecond <= 0 {
		c.MaxMessagesPerSecond = DefaultMaxMessagesPerSecond
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = DefaultSendQueueSize
	}
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = DefaultPongWait
	}
	return c
}

func (c Config) pingPeriod() time.Duration {
	return c.PongWait * 9 / 10
}
