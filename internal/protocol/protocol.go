// Package protocol defines the wire schema spoken between participants and
// the relay: one JSON event per WebSocket text message.
//
// The package deliberately models the protocol surface only; pion types are
// converted at the edges so nothing here depends on a WebRTC implementation
// beyond the description/candidate shapes.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pion/webrtc/v4"
)

// EventType enumerates every event carried over the relay connection.
type EventType string

const (
	// EventJoinRoom is sent by a participant to enter a room.
	EventJoinRoom EventType = "join-room"
	// EventWelcome is the first server event on a connection and carries the
	// relay-assigned connection ID.
	EventWelcome EventType = "welcome"
	// EventRoomUsers is sent to a joiner and lists all other current members.
	EventRoomUsers EventType = "room-users"
	// EventUserJoined notifies existing members of a new member.
	EventUserJoined EventType = "user-joined"
	// EventUserLeft notifies remaining members of a departure.
	EventUserLeft EventType = "user-left"
	// EventSignal carries a SignalEnvelope in either direction.
	EventSignal EventType = "signal"
)

var (
	errUnsupportedEventType = errors.New("protocol: unsupported event type")
	errTrailingData         = errors.New("protocol: unexpected trailing data")

	// ErrAmbiguousPayload is returned when a signal envelope does not carry
	// exactly one of offer/answer/candidate.
	ErrAmbiguousPayload = errors.New("protocol: envelope must carry exactly one of offer/answer/candidate")
)

// SessionDescription is a JSON-friendly SDP offer or answer.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func DescriptionFromPion(desc webrtc.SessionDescription) SessionDescription {
	return SessionDescription{
		Type: desc.Type.String(),
		SDP:  desc.SDP,
	}
}

func (s SessionDescription) ToPion() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch s.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", s.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: s.SDP}, nil
}

// ICECandidate mirrors RTCIceCandidateInit.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func CandidateFromPion(init webrtc.ICECandidateInit) ICECandidate {
	return ICECandidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func (c ICECandidate) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

// PayloadKind identifies which variant a SignalEnvelope carries.
type PayloadKind string

const (
	PayloadOffer     PayloadKind = "offer"
	PayloadAnswer    PayloadKind = "answer"
	PayloadCandidate PayloadKind = "candidate"
)

// SignalEnvelope is the unit of relay traffic. Sender is always overwritten
// by the relay with the authenticated connection ID of the originator; a
// value supplied by a client is discarded. An empty Target means "broadcast
// to every other room member".
type SignalEnvelope struct {
	Room   string `json:"room"`
	Sender string `json:"sender,omitempty"`
	Target string `json:"target,omitempty"`

	Offer     *SessionDescription `json:"offer,omitempty"`
	Answer    *SessionDescription `json:"answer,omitempty"`
	Candidate *ICECandidate       `json:"candidate,omitempty"`
}

// Kind returns the payload variant, or ErrAmbiguousPayload unless exactly one
// of the three payload fields is set.
func (e *SignalEnvelope) Kind() (PayloadKind, error) {
	var (
		kind PayloadKind
		n    int
	)
	if e.Offer != nil {
		kind, n = PayloadOffer, n+1
	}
	if e.Answer != nil {
		kind, n = PayloadAnswer, n+1
	}
	if e.Candidate != nil {
		kind, n = PayloadCandidate, n+1
	}
	if n != 1 {
		return "", ErrAmbiguousPayload
	}
	return kind, nil
}

// Event is the top-level wire message.
//
// Members is only meaningful for room-users; an empty room serializes with
// the field absent, which decodes back to a nil (empty) slice.
type Event struct {
	Type    EventType       `json:"type"`
	Room    string          `json:"room,omitempty"`
	Member  string          `json:"member,omitempty"`
	Members []string        `json:"members,omitempty"`
	Signal  *SignalEnvelope `json:"signal,omitempty"`
}

// Parse decodes and validates a single wire event. Unknown fields and
// trailing data are rejected so schema drift fails loudly.
func Parse(data []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var ev Event
	if err := dec.Decode(&ev); err != nil {
		return Event{}, err
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Event{}, errTrailingData
	}
	return ev, nil
}

func (ev Event) Validate() error {
	switch ev.Type {
	case EventJoinRoom:
		if ev.Room == "" {
			return fmt.Errorf("join-room event missing room")
		}
		if ev.Member != "" || ev.Members != nil || ev.Signal != nil {
			return fmt.Errorf("join-room event has unexpected fields")
		}
	case EventWelcome:
		if ev.Member == "" {
			return fmt.Errorf("welcome event missing member")
		}
		if ev.Room != "" || ev.Members != nil || ev.Signal != nil {
			return fmt.Errorf("welcome event has unexpected fields")
		}
	case EventRoomUsers:
		if ev.Member != "" || ev.Signal != nil {
			return fmt.Errorf("room-users event has unexpected fields")
		}
	case EventUserJoined, EventUserLeft:
		if ev.Member == "" {
			return fmt.Errorf("%s event missing member", ev.Type)
		}
		if ev.Members != nil || ev.Signal != nil {
			return fmt.Errorf("%s event has unexpected fields", ev.Type)
		}
	case EventSignal:
		if ev.Signal == nil {
			return fmt.Errorf("signal event missing envelope")
		}
		if ev.Room != "" || ev.Member != "" || ev.Members != nil {
			return fmt.Errorf("signal event has unexpected fields")
		}
		if ev.Signal.Room == "" {
			return fmt.Errorf("signal envelope missing room")
		}
		if _, err := ev.Signal.Kind(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", errUnsupportedEventType, ev.Type)
	}
	return nil
}
