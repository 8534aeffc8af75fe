// Package peerlink implements the per-peer offer/answer negotiation state
// machine. It makes the queuing and glare policy explicit and testable
// independent of the underlying peer transport.
package peerlink

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/peercall/peercall/internal/protocol"
)

// State is the negotiation state of a link.
type State int

const (
	StateIdle State = iota
	StateHaveLocalOffer
	StateHaveRemoteOffer
	StateStable
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	case StateStable:
		return "stable"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Role records which side sent the first surviving offer.
type Role int

const (
	RoleNone Role = iota
	RoleCaller
	RoleCallee
)

func (r Role) String() string {
	switch r {
	case RoleCaller:
		return "caller"
	case RoleCallee:
		return "callee"
	default:
		return "none"
	}
}

// ErrClosed is returned by operations on a torn-down link.
var ErrClosed = errors.New("peerlink: link closed")

// Transport is the peer-transport capability a link drives. The composite
// operations mirror the natural call sequences of a WebRTC peer connection:
// CreateOffer also sets the local description, CreateAnswer applies the
// remote offer and sets the local answer.
type Transport interface {
	CreateOffer() (protocol.SessionDescription, error)
	CreateAnswer(offer protocol.SessionDescription) (protocol.SessionDescription, error)
	// AcceptAnswer applies a remote answer to a previously sent offer.
	AcceptAnswer(answer protocol.SessionDescription) error
	// Rollback discards the pending local offer, returning the transport to
	// its pre-offer state. Used by the yielding side of glare resolution.
	Rollback() error
	AddICECandidate(c protocol.ICECandidate) error
	SendData(payload []byte) error
	DataChannelOpen() bool
	Close() error
}

// Signaler delivers an outbound envelope to the remote peer. The link fills
// Room, Target and payload; Sender is stamped by the relay.
type Signaler func(env protocol.SignalEnvelope)

// Config assembles a link.
type Config struct {
	// LocalID and RemoteID are the relay connection IDs of the two ends.
	// Their lexicographic order decides glare: the smaller ID yields.
	LocalID  string
	RemoteID string
	Room     string

	Transport Transport
	Signal    Signaler
	Logger    *slog.Logger
}

// Link is one peer negotiation state machine. It is not safe for concurrent
// use: the owning coordinator applies events one at a time, in arrival order.
type Link struct {
	cfg  Config
	log  *slog.Logger
	gen  uint64
	role Role

	state         State
	remoteDescSet bool

	// pendingRemoteOffer holds at most one offer received while negotiation
	// cannot apply it; it is drained on entry into Stable.
	pendingRemoteOffer *protocol.SessionDescription

	// pendingCandidates buffers candidates received before a remote
	// description exists, drained FIFO on entry into Stable.
	pendingCandidates []protocol.ICECandidate
}

// New creates a link in Idle. Generation is assigned by the owner and guards
// asynchronous continuations against acting on a replaced link.
func New(cfg Config, generation uint64) *Link {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Link{
		cfg: cfg,
		log: logger.With("remote_id", cfg.RemoteID, "generation", generation),
		gen: generation,
	}
}

func (l *Link) State() State       { return l.state }
func (l *Link) Role() Role         { return l.role }
func (l *Link) RemoteID() string   { return l.cfg.RemoteID }
func (l *Link) Generation() uint64 { return l.gen }

// Initiate creates and sends a local offer. Valid from Idle (initial call
// setup) and from Stable (renegotiation).
func (l *Link) Initiate() error {
	switch l.state {
	case StateIdle, StateStable:
	case StateClosed:
		return ErrClosed
	default:
		// An offer is already in flight in one direction or the other.
		l.log.Debug("initiate ignored", "state", l.state.String())
		return nil
	}

	offer, err := l.cfg.Transport.CreateOffer()
	if err != nil {
		return l.fail(fmt.Errorf("create offer: %w", err))
	}

	l.state = StateHaveLocalOffer
	if l.role == RoleNone {
		l.role = RoleCaller
	}
	l.signal(protocol.SignalEnvelope{Offer: &offer})
	l.log.Debug("sent offer", "state", l.state.String())
	return nil
}

// HandleOffer applies a remote offer. In Idle (and Stable, for renegotiation)
// it answers directly. During HaveRemoteOffer the offer is queued. In
// HaveLocalOffer both sides offered at once: the side with the
// lexicographically smaller ID discards its own offer and answers the remote
// one; the other side ignores the incoming offer and keeps waiting for its
// answer.
func (l *Link) HandleOffer(offer protocol.SessionDescription) error {
	switch l.state {
	case StateClosed:
		return ErrClosed

	case StateHaveRemoteOffer:
		l.pendingRemoteOffer = &offer
		l.log.Debug("queued remote offer", "state", l.state.String())
		return nil

	case StateHaveLocalOffer:
		if !l.yields() {
			l.log.Debug("glare: holding own offer", "state", l.state.String())
			return nil
		}
		l.log.Debug("glare: yielding to remote offer")
		if err := l.cfg.Transport.Rollback(); err != nil {
			return l.fail(fmt.Errorf("rollback local offer: %w", err))
		}
		l.state = StateIdle
		l.role = RoleNone
	}

	l.state = StateHaveRemoteOffer
	answer, err := l.cfg.Transport.CreateAnswer(offer)
	if err != nil {
		return l.fail(fmt.Errorf("answer offer: %w", err))
	}
	l.remoteDescSet = true
	if l.role == RoleNone {
		l.role = RoleCallee
	}
	l.signal(protocol.SignalEnvelope{Answer: &answer})
	l.log.Debug("sent answer")
	return l.enterStable()
}

// HandleAnswer applies a remote answer to our outstanding offer. Answers in
// any other state are stale (for example after yielding in glare) and are
// dropped.
func (l *Link) HandleAnswer(answer protocol.SessionDescription) error {
	switch l.state {
	case StateClosed:
		return ErrClosed
	case StateHaveLocalOffer:
	default:
		l.log.Debug("dropping stale answer", "state", l.state.String())
		return nil
	}

	if err := l.cfg.Transport.AcceptAnswer(answer); err != nil {
		return l.fail(fmt.Errorf("accept answer: %w", err))
	}
	l.remoteDescSet = true
	return l.enterStable()
}

// HandleCandidate applies a remote ICE candidate, queueing it if no remote
// description has been applied yet.
func (l *Link) HandleCandidate(c protocol.ICECandidate) error {
	if l.state == StateClosed {
		return ErrClosed
	}
	if !l.remoteDescSet {
		l.pendingCandidates = append(l.pendingCandidates, c)
		return nil
	}
	if err := l.cfg.Transport.AddICECandidate(c); err != nil {
		return l.fail(fmt.Errorf("add candidate: %w", err))
	}
	return nil
}

// SendData forwards a payload over the link's data channel. Links that have
// not reached Stable, or whose channel is not yet open, silently skip the
// payload.
func (l *Link) SendData(payload []byte) error {
	if l.state != StateStable || !l.cfg.Transport.DataChannelOpen() {
		return nil
	}
	if err := l.cfg.Transport.SendData(payload); err != nil {
		return l.fail(fmt.Errorf("send data: %w", err))
	}
	return nil
}

// Close tears the link down: terminal from every state, idempotent, releases
// the transport and clears all queues.
func (l *Link) Close() {
	if l.state == StateClosed {
		return
	}
	l.state = StateClosed
	l.pendingRemoteOffer = nil
	l.pendingCandidates = nil
	if err := l.cfg.Transport.Close(); err != nil {
		l.log.Debug("transport close", "err", err)
	}
}

// enterStable performs the transition hooks: drain queued candidates in FIFO
// order, then re-dispatch a queued remote offer as a fresh event.
func (l *Link) enterStable() error {
	l.state = StateStable
	l.log.Debug("reached stable", "role", l.role.String())

	for len(l.pendingCandidates) > 0 {
		c := l.pendingCandidates[0]
		l.pendingCandidates = l.pendingCandidates[1:]
		if err := l.cfg.Transport.AddICECandidate(c); err != nil {
			return l.fail(fmt.Errorf("add queued candidate: %w", err))
		}
	}

	if l.pendingRemoteOffer != nil {
		offer := *l.pendingRemoteOffer
		l.pendingRemoteOffer = nil
		return l.HandleOffer(offer)
	}
	return nil
}

// yields reports whether the local side loses the glare tie-break.
func (l *Link) yields() bool {
	return l.cfg.LocalID < l.cfg.RemoteID
}

// fail tears the link down and reports the cause. The owner removes the link
// from its map; a fresh link is recreated naturally by the next membership or
// signaling event for this peer.
func (l *Link) fail(err error) error {
	l.log.Warn("negotiation failed, tearing down link", "err", err)
	l.Close()
	return err
}

func (l *Link) signal(env protocol.SignalEnvelope) {
	env.Room = l.cfg.Room
	env.Target = l.cfg.RemoteID
	l.cfg.Signal(env)
}
