package protocol

import (
	"encoding/json"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestEvent_MarshalParseSignalOffer(t *testing.T) {
	ev := Event{
		Type: EventSignal,
		Signal: &SignalEnvelope{
			Room:   "abcde",
			Target: "peer-b",
			Offer:  &SessionDescription{Type: "offer", SDP: "v=0"},
		},
	}

	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := Parse(b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Type != EventSignal || got.Signal == nil {
		t.Fatalf("unexpected decoded event: %#v", got)
	}
	kind, err := got.Signal.Kind()
	if err != nil {
		t.Fatalf("Kind: %v", err)
	}
	if kind != PayloadOffer {
		t.Fatalf("kind=%q, want %q", kind, PayloadOffer)
	}
	if got.Signal.Target != "peer-b" || got.Signal.Offer.SDP != "v=0" {
		t.Fatalf("unexpected envelope: %#v", got.Signal)
	}
}

func TestEvent_ParseCandidate(t *testing.T) {
	raw := []byte(`{
		"type":"signal",
		"signal":{
			"room":"abcde",
			"candidate":{
				"candidate":"candidate:1 1 udp 1 127.0.0.1 9 typ host",
				"sdpMid":"0",
				"sdpMLineIndex":0
			}
		}
	}`)

	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	kind, err := got.Signal.Kind()
	if err != nil {
		t.Fatalf("Kind: %v", err)
	}
	if kind != PayloadCandidate || got.Signal.Candidate.Candidate == "" {
		t.Fatalf("unexpected decoded candidate: %#v", got.Signal)
	}
}

func TestEvent_ParseRoomUsersEmptyList(t *testing.T) {
	ev := Event{Type: EventRoomUsers}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := Parse(b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Type != EventRoomUsers || len(got.Members) != 0 {
		t.Fatalf("unexpected decoded event: %#v", got)
	}
}

func TestEvent_RejectsUnknownFields(t *testing.T) {
	raw := []byte(`{ "type":"join-room", "room":"abcde", "unexpected": true }`)
	if _, err := Parse(raw); err == nil {
		t.Fatalf("expected error")
	}
}

func TestEvent_RejectsTrailingData(t *testing.T) {
	raw := []byte(`{ "type":"join-room", "room":"abcde" }{}`)
	if _, err := Parse(raw); err == nil {
		t.Fatalf("expected error")
	}
}

func TestEvent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		ev      Event
		wantErr bool
	}{
		{"join-room ok", Event{Type: EventJoinRoom, Room: "r"}, false},
		{"join-room missing room", Event{Type: EventJoinRoom}, true},
		{"welcome ok", Event{Type: EventWelcome, Member: "c1"}, false},
		{"welcome missing member", Event{Type: EventWelcome}, true},
		{"user-joined ok", Event{Type: EventUserJoined, Member: "c1"}, false},
		{"user-left missing member", Event{Type: EventUserLeft}, true},
		{"room-users with signal", Event{Type: EventRoomUsers, Signal: &SignalEnvelope{}}, true},
		{"signal missing envelope", Event{Type: EventSignal}, true},
		{"signal missing room", Event{Type: EventSignal, Signal: &SignalEnvelope{
			Offer: &SessionDescription{Type: "offer", SDP: "v=0"},
		}}, true},
		{"signal no payload", Event{Type: EventSignal, Signal: &SignalEnvelope{Room: "r"}}, true},
		{"signal two payloads", Event{Type: EventSignal, Signal: &SignalEnvelope{
			Room:   "r",
			Offer:  &SessionDescription{Type: "offer", SDP: "v=0"},
			Answer: &SessionDescription{Type: "answer", SDP: "v=0"},
		}}, true},
		{"unknown type", Event{Type: "nope"}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.ev.Validate()
			if gotErr := err != nil; gotErr != tc.wantErr {
				t.Fatalf("Validate()=%v, wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestSessionDescription_PionRoundTrip(t *testing.T) {
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}
	got, err := DescriptionFromPion(desc).ToPion()
	if err != nil {
		t.Fatalf("ToPion: %v", err)
	}
	if got != desc {
		t.Fatalf("round trip=%#v, want %#v", got, desc)
	}

	if _, err := (SessionDescription{Type: "rollback", SDP: "v=0"}).ToPion(); err == nil {
		t.Fatalf("expected error for unsupported sdp type")
	}
}

func TestICECandidate_PionRoundTrip(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	init := webrtc.ICECandidateInit{
		Candidate:     "candidate:1 1 udp 1 127.0.0.1 9 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}
	got := CandidateFromPion(init).ToPion()
	if got.Candidate != init.Candidate || *got.SDPMid != mid || *got.SDPMLineIndex != idx {
		t.Fatalf("round trip=%#v, want %#v", got, init)
	}
}
