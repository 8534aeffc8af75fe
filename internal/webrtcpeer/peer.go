package webrtcpeer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/peercall/peercall/internal/protocol"
)

// PeerConfig assembles one Peer.
type PeerConfig struct {
	API        *webrtc.API
	ICEServers []webrtc.ICEServer

	// Tracks are the local media tracks attached before negotiation.
	Tracks []webrtc.TrackLocal

	Logger *slog.Logger

	// OnCandidate receives locally gathered ICE candidates for trickle
	// delivery to the remote peer.
	OnCandidate func(protocol.ICECandidate)
	// OnData receives payloads arriving on the chat channel.
	OnData func(payload []byte)
	// OnRemoteTrack fires once per inbound media track.
	OnRemoteTrack func(track *webrtc.TrackRemote)
	// OnFailure fires when the connection fails or closes underneath us.
	OnFailure func()
}

// Peer owns one client-side PeerConnection and its chat data channel. The
// negotiation methods mirror the natural pion call sequences so the caller
// can drive them as single operations.
type Peer struct {
	pc  *webrtc.PeerConnection
	cfg PeerConfig
	log *slog.Logger

	mu sync.Mutex
	dc *webrtc.DataChannel

	closeOnce sync.Once
	closeErr  error
}

// NewPeer constructs a PeerConnection with the local tracks attached and the
// inbound callbacks wired.
func NewPeer(cfg PeerConfig) (*Peer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api := cfg.API
	if api == nil {
		api = webrtc.NewAPI()
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	p := &Peer{pc: pc, cfg: cfg, log: logger}

	for _, track := range cfg.Tracks {
		if _, err := pc.AddTrack(track); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add local track %q: %w", track.ID(), err)
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || cfg.OnCandidate == nil {
			return
		}
		cfg.OnCandidate(protocol.CandidateFromPion(c.ToJSON()))
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if cfg.OnRemoteTrack != nil {
			cfg.OnRemoteTrack(track)
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != DataChannelLabelChat {
			p.log.Debug("ignoring unexpected data channel", "label", dc.Label())
			return
		}
		p.adoptDataChannel(dc)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			if cfg.OnFailure != nil {
				cfg.OnFailure()
			}
		}
	})

	return p, nil
}

// CreateOffer makes this side the channel creator, then produces and applies
// a local offer.
func (p *Peer) CreateOffer() (protocol.SessionDescription, error) {
	if err := p.ensureDataChannel(); err != nil {
		return protocol.SessionDescription{}, err
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("set local offer: %w", err)
	}
	return protocol.DescriptionFromPion(*p.pc.LocalDescription()), nil
}

// CreateAnswer applies a remote offer and produces the local answer.
func (p *Peer) CreateAnswer(offer protocol.SessionDescription) (protocol.SessionDescription, error) {
	remote, err := offer.ToPion()
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	if err := p.pc.SetRemoteDescription(remote); err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("set remote offer: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("set local answer: %w", err)
	}
	return protocol.DescriptionFromPion(*p.pc.LocalDescription()), nil
}

// AcceptAnswer applies the remote answer to our outstanding offer.
func (p *Peer) AcceptAnswer(answer protocol.SessionDescription) error {
	remote, err := answer.ToPion()
	if err != nil {
		return err
	}
	if err := p.pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

// Rollback discards the pending local offer.
func (p *Peer) Rollback() error {
	if err := p.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
		return fmt.Errorf("rollback local description: %w", err)
	}
	return nil
}

func (p *Peer) AddICECandidate(c protocol.ICECandidate) error {
	if err := p.pc.AddICECandidate(c.ToPion()); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

// SendData writes a payload to the chat channel.
func (p *Peer) SendData(payload []byte) error {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return errors.New("chat channel not open")
	}
	return dc.Send(payload)
}

// DataChannelOpen reports whether the chat channel is established.
func (p *Peer) DataChannelOpen() bool {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()
	return dc != nil && dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.pc.Close()
	})
	return p.closeErr
}

func (p *Peer) ensureDataChannel() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dc != nil {
		return nil
	}
	dc, err := p.pc.CreateDataChannel(DataChannelLabelChat, nil)
	if err != nil {
		return fmt.Errorf("create chat channel: %w", err)
	}
	p.wireDataChannelLocked(dc)
	return nil
}

func (p *Peer) adoptDataChannel(dc *webrtc.DataChannel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dc != nil {
		// A renegotiated channel supersedes the old one.
		_ = p.dc.Close()
	}
	p.wireDataChannelLocked(dc)
}

func (p *Peer) wireDataChannelLocked(dc *webrtc.DataChannel) {
	p.dc = dc
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if p.cfg.OnData == nil {
			return
		}
		// Copy because pion reuses internal buffers.
		p.cfg.OnData(append([]byte(nil), msg.Data...))
	})
	dc.OnClose(func() {
		p.mu.Lock()
		if p.dc == dc {
			p.dc = nil
		}
		p.mu.Unlock()
	})
}
