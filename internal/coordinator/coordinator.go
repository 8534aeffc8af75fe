// Package coordinator drives a multi-party call: it joins a relay room,
// owns one negotiation link per remote participant, and routes membership
// and signaling events into those links one at a time, in arrival order.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/peercall/peercall/internal/peerlink"
	"github.com/peercall/peercall/internal/protocol"
	"github.com/peercall/peercall/internal/webrtcpeer"
)

// Media is an acquired set of local tracks, held for the lifetime of a call.
type Media interface {
	Tracks() []webrtc.TrackLocal
	Close() error
}

// TransportHooks are the inbound callbacks a transport reports into. They
// may fire on transport-owned goroutines.
type TransportHooks struct {
	OnCandidate   func(protocol.ICECandidate)
	OnData        func(payload []byte)
	OnRemoteTrack func(track *webrtc.TrackRemote)
	OnFailure     func()
}

// TransportFactory builds the peer transport for one remote participant.
type TransportFactory func(remoteID string, hooks TransportHooks) (peerlink.Transport, error)

// Config assembles a Coordinator.
type Config struct {
	RelayURL   string
	ICEServers []webrtc.ICEServer
	Logger     *slog.Logger

	// AcquireMedia captures local tracks before the relay connection is
	// made. Nil means data-only calls.
	AcquireMedia func(ctx context.Context, video, audio bool) (Media, error)

	// NewTransport overrides the pion-backed default.
	NewTransport TransportFactory

	// OnData receives chat payloads; OnRemoteTrack inbound media tracks.
	// Both may fire concurrently with coordinator operations.
	OnData        func(sender string, payload []byte)
	OnRemoteTrack func(sender string, track *webrtc.TrackRemote)

	OnPeerJoined func(id string)
	OnPeerLeft   func(id string)
}

// Coordinator exposes the call-facing operations. It is inert between
// calls; JoinRoom starts a session and EndCall (or relay loss) ends it.
type Coordinator struct {
	cfg Config
	log *slog.Logger

	apiOnce sync.Once
	api     *webrtc.API
	apiErr  error

	mu   sync.Mutex
	sess *session
}

func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{cfg: cfg, log: logger}
}

// CreateRoom generates a fresh room ID and joins it.
func (c *Coordinator) CreateRoom(ctx context.Context, video, audio bool) (string, error) {
	room, err := NewRoomID()
	if err != nil {
		return "", fmt.Errorf("generate room id: %w", err)
	}
	if err := c.JoinRoom(ctx, room, video, audio); err != nil {
		return "", err
	}
	return room, nil
}

// JoinRoom acquires local media, connects to the relay and enters the room.
// Media failure aborts the join before any connection is made.
func (c *Coordinator) JoinRoom(ctx context.Context, room string, video, audio bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		return ErrAlreadyInCall
	}

	var media Media
	if c.cfg.AcquireMedia != nil && (video || audio) {
		m, err := c.cfg.AcquireMedia(ctx, video, audio)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMediaAcquisition, err)
		}
		media = m
	}

	relay, err := DialRelay(ctx, c.cfg.RelayURL, c.log)
	if err != nil {
		if media != nil {
			_ = media.Close()
		}
		return err
	}

	s := &session{
		c:        c,
		room:     room,
		selfID:   relay.ID(),
		relay:    relay,
		media:    media,
		links:    make(map[string]*peerlink.Link),
		commands: make(chan func(), 16),
		done:     make(chan struct{}),
		log:      c.log.With("room", room, "self_id", relay.ID()),
	}
	c.sess = s
	go s.run()

	if err := relay.JoinRoom(room); err != nil {
		c.sess = nil
		s.stop()
		return fmt.Errorf("join room: %w", err)
	}
	s.log.Info("joined room")
	return nil
}

// SendData fans a payload out to every link whose data channel is up.
// Links still negotiating silently skip it.
func (c *Coordinator) SendData(payload []byte) error {
	s := c.session()
	if s == nil {
		return ErrNotInCall
	}
	errCh := make(chan error, 1)
	if !s.post(func() { errCh <- s.sendData(payload) }) {
		return ErrNotInCall
	}
	select {
	case err := <-errCh:
		return err
	case <-s.done:
		// The loop may exit with the command still queued, e.g. when the
		// relay connection drops. Prefer a result the loop did produce.
		select {
		case err := <-errCh:
			return err
		default:
			return ErrNotInCall
		}
	}
}

// EndCall tears down every link, releases media and disconnects from the
// relay. The coordinator can join again afterward.
func (c *Coordinator) EndCall() error {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	c.mu.Unlock()
	if s == nil {
		return ErrNotInCall
	}
	s.stop()
	return nil
}

// InCall reports whether a session is active.
func (c *Coordinator) InCall() bool { return c.session() != nil }

// Room returns the active room ID, or "" when idle.
func (c *Coordinator) Room() string {
	if s := c.session(); s != nil {
		return s.room
	}
	return ""
}

// Peers returns the remote participants with an active link, sorted.
func (c *Coordinator) Peers() []string {
	s := c.session()
	if s == nil {
		return nil
	}
	ch := make(chan []string, 1)
	ok := s.post(func() {
		ids := make([]string, 0, len(s.links))
		for id := range s.links {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		ch <- ids
	})
	if !ok {
		return nil
	}
	select {
	case ids := <-ch:
		return ids
	case <-s.done:
		select {
		case ids := <-ch:
			return ids
		default:
			return nil
		}
	}
}

// SelfID returns the relay-assigned connection ID of the active session.
func (c *Coordinator) SelfID() string {
	if s := c.session(); s != nil {
		return s.selfID
	}
	return ""
}

func (c *Coordinator) session() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		select {
		case <-c.sess.done:
			// Session died underneath us (relay gone).
			c.sess = nil
		default:
		}
	}
	return c.sess
}

func (c *Coordinator) pionAPI() (*webrtc.API, error) {
	c.apiOnce.Do(func() {
		c.api, c.apiErr = webrtcpeer.NewAPI(c.log)
	})
	return c.api, c.apiErr
}

// session is the per-call state, owned by its run loop. All link mutation
// happens on that loop.
type session struct {
	c      *Coordinator
	room   string
	selfID string
	relay  *RelayClient
	media  Media
	log    *slog.Logger

	commands chan func()
	done     chan struct{}
	stopping bool

	links   map[string]*peerlink.Link
	nextGen uint64
}

func (s *session) run() {
	defer close(s.done)
	for {
		select {
		case ev, ok := <-s.relay.Events():
			if !ok {
				s.log.Info("relay connection lost, ending call")
				s.teardown()
				return
			}
			s.handleEvent(ev)
		case fn := <-s.commands:
			fn()
			if s.stopping {
				return
			}
		}
	}
}

// post hands fn to the run loop. Returns false once the loop has exited.
func (s *session) post(fn func()) bool {
	select {
	case s.commands <- fn:
		return true
	case <-s.done:
		return false
	}
}

// stop tears the session down from outside the loop and waits for it.
func (s *session) stop() {
	s.post(func() {
		s.teardown()
		s.stopping = true
	})
	<-s.done
}

func (s *session) teardown() {
	for id, l := range s.links {
		l.Close()
		delete(s.links, id)
	}
	if s.media != nil {
		_ = s.media.Close()
		s.media = nil
	}
	s.relay.Close()
}

func (s *session) handleEvent(ev protocol.Event) {
	switch ev.Type {
	case protocol.EventRoomUsers:
		// Idempotent: replays must not create duplicate links.
		for _, id := range ev.Members {
			s.initiateTo(id)
		}
	case protocol.EventUserJoined:
		s.initiateTo(ev.Member)
		if cb := s.c.cfg.OnPeerJoined; cb != nil {
			cb(ev.Member)
		}
	case protocol.EventUserLeft:
		s.removeLink(ev.Member)
		if cb := s.c.cfg.OnPeerLeft; cb != nil {
			cb(ev.Member)
		}
	case protocol.EventSignal:
		s.handleSignal(*ev.Signal)
	case protocol.EventWelcome:
		// Consumed at dial time; a repeat is harmless.
	default:
		s.log.Warn("ignoring unexpected relay event", "type", string(ev.Type))
	}
}

// initiateTo makes sure a link to id exists and starts the offer path on a
// fresh one. An existing link means negotiation is already underway.
func (s *session) initiateTo(id string) {
	if id == "" || id == s.selfID {
		return
	}
	if _, ok := s.links[id]; ok {
		return
	}
	l, err := s.ensureLink(id)
	if err != nil {
		s.log.Warn("cannot create peer transport", "remote_id", id, "err", err)
		return
	}
	if err := l.Initiate(); err != nil {
		s.removeLink(id)
	}
}

func (s *session) handleSignal(env protocol.SignalEnvelope) {
	kind, err := env.Kind()
	if err != nil {
		s.log.Warn("dropping ambiguous signal", "err", err)
		return
	}
	sender := env.Sender
	if sender == "" || sender == s.selfID {
		return
	}

	switch kind {
	case protocol.PayloadOffer:
		l, err := s.ensureLink(sender)
		if err != nil {
			s.log.Warn("cannot create peer transport", "remote_id", sender, "err", err)
			return
		}
		if err := l.HandleOffer(*env.Offer); err != nil {
			s.removeLink(sender)
		}
	case protocol.PayloadAnswer:
		l, ok := s.links[sender]
		if !ok {
			s.log.Debug("dropping answer for unknown link", "remote_id", sender)
			return
		}
		if err := l.HandleAnswer(*env.Answer); err != nil {
			s.removeLink(sender)
		}
	case protocol.PayloadCandidate:
		l, err := s.ensureLink(sender)
		if err != nil {
			s.log.Warn("cannot create peer transport", "remote_id", sender, "err", err)
			return
		}
		if err := l.HandleCandidate(*env.Candidate); err != nil {
			s.removeLink(sender)
		}
	}
}

// ensureLink returns the link for remoteID, creating a fresh transport and
// generation when none exists.
func (s *session) ensureLink(remoteID string) (*peerlink.Link, error) {
	if l, ok := s.links[remoteID]; ok {
		return l, nil
	}

	s.nextGen++
	gen := s.nextGen

	hooks := TransportHooks{
		OnCandidate: func(c protocol.ICECandidate) {
			s.post(func() {
				if !s.linkLive(remoteID, gen) {
					return
				}
				s.sendSignal(protocol.SignalEnvelope{
					Room:      s.room,
					Target:    remoteID,
					Candidate: &c,
				})
			})
		},
		OnData: func(payload []byte) {
			if cb := s.c.cfg.OnData; cb != nil {
				cb(remoteID, payload)
			}
		},
		OnRemoteTrack: func(track *webrtc.TrackRemote) {
			if cb := s.c.cfg.OnRemoteTrack; cb != nil {
				cb(remoteID, track)
			}
		},
		OnFailure: func() {
			s.post(func() {
				if !s.linkLive(remoteID, gen) {
					return
				}
				s.log.Info("peer connection failed", "remote_id", remoteID)
				s.removeLink(remoteID)
			})
		},
	}

	tr, err := s.newTransport(remoteID, hooks)
	if err != nil {
		return nil, err
	}

	l := peerlink.New(peerlink.Config{
		LocalID:   s.selfID,
		RemoteID:  remoteID,
		Room:      s.room,
		Transport: tr,
		Signal:    s.sendSignal,
		Logger:    s.log,
	}, gen)
	s.links[remoteID] = l
	return l, nil
}

// linkLive guards continuations resumed after a link was replaced or torn
// down: the generation must still match the live link.
func (s *session) linkLive(remoteID string, gen uint64) bool {
	l, ok := s.links[remoteID]
	return ok && l.Generation() == gen
}

func (s *session) newTransport(remoteID string, hooks TransportHooks) (peerlink.Transport, error) {
	if s.c.cfg.NewTransport != nil {
		return s.c.cfg.NewTransport(remoteID, hooks)
	}

	api, err := s.c.pionAPI()
	if err != nil {
		return nil, err
	}
	var tracks []webrtc.TrackLocal
	if s.media != nil {
		tracks = s.media.Tracks()
	}
	return webrtcpeer.NewPeer(webrtcpeer.PeerConfig{
		API:           api,
		ICEServers:    s.c.cfg.ICEServers,
		Tracks:        tracks,
		Logger:        s.log.With("remote_id", remoteID),
		OnCandidate:   hooks.OnCandidate,
		OnData:        hooks.OnData,
		OnRemoteTrack: hooks.OnRemoteTrack,
		OnFailure:     hooks.OnFailure,
	})
}

func (s *session) sendData(payload []byte) error {
	for id, l := range s.links {
		if err := l.SendData(payload); err != nil {
			// The link tore itself down; the next membership or signal
			// event for this peer recreates it.
			s.log.Warn("send failed, link torn down", "remote_id", id, "err", err)
			s.removeLink(id)
		}
	}
	return nil
}

func (s *session) sendSignal(env protocol.SignalEnvelope) {
	if err := s.relay.SendSignal(env); err != nil {
		s.log.Warn("signal send failed", "err", err)
	}
}

func (s *session) removeLink(id string) {
	if l, ok := s.links[id]; ok {
		l.Close()
		delete(s.links, id)
	}
}
