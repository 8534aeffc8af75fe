// Package relay implements the signaling relay server: room membership
// bookkeeping plus envelope forwarding between participants. No media passes
// through it, and it never inspects envelope payloads beyond the
// room/target/sender fields it needs for routing.
package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/peercall/peercall/internal/metrics"
	"github.com/peercall/peercall/internal/protocol"
	"github.com/peercall/peercall/internal/rooms"
)

// Server accepts websocket connections and relays signaling events between
// room members. Each connection gets a server-assigned UUID identity; the
// Sender field of every forwarded envelope is overwritten with it, so clients
// cannot spoof one another.
type Server struct {
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	registry *rooms.Registry
	upgrader websocket.Upgrader

	// mu serializes membership fan-out so a joiner's room-users event is
	// enqueued before any user-joined events the same join triggers.
	mu    sync.Mutex
	conns map[string]*client
}

func NewServer(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Server {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}

	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	return &Server{
		cfg:      cfg,
		log:      logger,
		metrics:  m,
		registry: rooms.NewRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  int(cfg.MaxMessageBytes),
			WriteBufferSize: int(cfg.MaxMessageBytes),
			CheckOrigin:     checkOrigin,
		},
		conns: make(map[string]*client),
	}
}

func (s *Server) Metrics() *metrics.Metrics { return s.metrics }

// ActiveRooms reports the number of rooms with at least one member.
func (s *Server) ActiveRooms() int { return s.registry.ActiveRooms() }

// ActiveConnections reports the number of live websocket connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "err", err, "remote_addr", r.RemoteAddr)
		return
	}

	c := newClient(s, uuid.NewString(), conn)

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()

	s.log.Info("connection established", "conn_id", c.id, "remote_addr", r.RemoteAddr)

	c.enqueue(mustMarshal(protocol.Event{Type: protocol.EventWelcome, Member: c.id}))

	go c.writePump()
	c.readPump()
	s.disconnect(c)
}

// Close tears down every live connection. Rooms empty out through the normal
// disconnect path as read pumps exit.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*client, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}
}

func (s *Server) handleEvent(c *client, ev protocol.Event) {
	switch ev.Type {
	case protocol.EventJoinRoom:
		s.join(c, ev.Room)
	case protocol.EventSignal:
		s.relaySignal(c, *ev.Signal)
	default:
		// Server-to-client event types are not accepted from clients.
		s.metrics.Inc(metrics.DropReasonMalformed)
		s.log.Debug("dropping client event of server-only type", "conn_id", c.id, "type", ev.Type)
	}
}

// join adds the connection to a room and emits the membership events. The
// joiner's room-users snapshot and the user-joined notifications it triggers
// are enqueued under one lock, so no concurrent join can interleave between
// them.
func (s *Server) join(c *client, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	others, left := s.registry.Join(c.id, roomID)
	if left != nil {
		s.notifyLeftLocked(c.id, left)
	}

	c.enqueue(mustMarshal(protocol.Event{Type: protocol.EventRoomUsers, Members: others}))

	joined := mustMarshal(protocol.Event{Type: protocol.EventUserJoined, Member: c.id})
	for _, id := range others {
		if other, ok := s.conns[id]; ok {
			other.enqueue(joined)
		}
	}

	s.log.Info("joined room", "conn_id", c.id, "room", roomID, "members", len(others)+1)
}

// relaySignal forwards an envelope to its target, or to every other room
// member when no target is named. Envelopes that lose a race with membership
// changes are dropped silently; the next membership event heals the pair.
func (s *Server) relaySignal(c *client, env protocol.SignalEnvelope) {
	env.Sender = c.id

	if _, ok := s.registry.Members(env.Room); !ok {
		s.metrics.Inc(metrics.DropReasonRoomNotFound)
		return
	}
	if !s.registry.IsMember(env.Room, c.id) {
		s.metrics.Inc(metrics.DropReasonNotAMember)
		return
	}

	if env.Target != "" {
		if env.Target == c.id || !s.registry.IsMember(env.Room, env.Target) {
			s.metrics.Inc(metrics.DropReasonDeliveryMiss)
			return
		}
		s.forward(env.Target, env)
		return
	}

	members, _ := s.registry.Members(env.Room)
	for _, id := range members {
		if id != c.id {
			s.forward(id, env)
		}
	}
}

func (s *Server) forward(connID string, env protocol.SignalEnvelope) {
	s.mu.Lock()
	target, ok := s.conns[connID]
	s.mu.Unlock()
	if !ok {
		s.metrics.Inc(metrics.DropReasonDeliveryMiss)
		return
	}
	target.enqueue(mustMarshal(protocol.Event{Type: protocol.EventSignal, Signal: &env}))
}

// disconnect removes the connection from its room and notifies the remaining
// members. Idempotent: the registry ignores a second leave and the client's
// send queue closes once.
func (s *Server) disconnect(c *client) {
	s.mu.Lock()
	delete(s.conns, c.id)
	left := s.registry.Leave(c.id)
	if left != nil {
		s.notifyLeftLocked(c.id, left)
	}
	s.mu.Unlock()

	c.shutdown()

	if left != nil {
		s.log.Info("left room", "conn_id", c.id, "room", left.Room, "remaining", len(left.Remaining))
	}
}

func (s *Server) notifyLeftLocked(connID string, left *rooms.Departure) {
	if len(left.Remaining) == 0 {
		s.log.Info("room destroyed", "room", left.Room)
		return
	}
	ev := mustMarshal(protocol.Event{Type: protocol.EventUserLeft, Member: connID})
	for _, id := range left.Remaining {
		if other, ok := s.conns[id]; ok {
			other.enqueue(ev)
		}
	}
}

// mustMarshal encodes an event the server itself constructed. These are
// always marshalable; a failure is a programming error.
func mustMarshal(ev protocol.Event) []byte {
	b, err := json.Marshal(ev)
	if err != nil {
		panic(err)
	}
	return b
}
