package main

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/peercall/peercall/internal/config"
)

type recordedLog struct {
	level slog.Level
	msg   string
	attrs map[string]any
}

type recordingHandler struct {
	mu      *sync.Mutex
	records *[]recordedLog
	attrs   []slog.Attr
}

func newRecordingLogger() (*slog.Logger, func() []recordedLog) {
	mu := &sync.Mutex{}
	records := &[]recordedLog{}
	h := &recordingHandler{mu: mu, records: records}
	logger := slog.New(h)
	return logger, func() []recordedLog {
		mu.Lock()
		defer mu.Unlock()
		out := make([]recordedLog, len(*records))
		copy(out, *records)
		return out
	}
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	rec := recordedLog{
		level: r.Level,
		msg:   r.Message,
		attrs: map[string]any{},
	}
	for _, a := range h.attrs {
		rec.attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.attrs[a.Key] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	*h.records = append(*h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := &recordingHandler{mu: h.mu, records: h.records}
	nh.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return nh
}

func (h *recordingHandler) WithGroup(string) slog.Handler { return h }

func findWarning(records []recordedLog, code string) (recordedLog, bool) {
	for _, r := range records {
		if r.level == slog.LevelWarn && r.attrs["warning_code"] == code {
			return r, true
		}
	}
	return recordedLog{}, false
}

func TestStartupWarnings_NoICEServersInProd(t *testing.T) {
	logger, records := newRecordingLogger()

	logStartupSecurityWarnings(logger, config.Config{Mode: config.ModeProd})

	if _, ok := findWarning(records(), "no_ice_servers_in_prod"); !ok {
		t.Fatalf("expected warning_code=no_ice_servers_in_prod, got %#v", records())
	}
}

func TestStartupWarnings_SignalingLimitLarge(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := config.Config{
		Mode:                     config.ModeDev,
		MaxSignalingMessageBytes: 2 << 20,
	}
	logStartupSecurityWarnings(logger, cfg)

	rec, ok := findWarning(records(), "signaling_message_limit_large")
	if !ok {
		t.Fatalf("expected warning_code=signaling_message_limit_large, got %#v", records())
	}
	if rec.attrs["max_signaling_message_bytes"] != int64(2<<20) {
		t.Fatalf("max_signaling_message_bytes attr = %#v, want %d", rec.attrs["max_signaling_message_bytes"], int64(2<<20))
	}
}

func TestStartupWarnings_QuietInDevDefaults(t *testing.T) {
	logger, records := newRecordingLogger()

	logStartupSecurityWarnings(logger, config.Config{Mode: config.ModeDev})

	if got := records(); len(got) != 0 {
		t.Fatalf("expected no warnings for dev defaults, got %#v", got)
	}
}
