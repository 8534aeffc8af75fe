package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(envMap(nil), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("ListenAddr=%q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.RelayURL != DefaultRelayURL {
		t.Fatalf("RelayURL=%q, want %q", cfg.RelayURL, DefaultRelayURL)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("Mode=%q, want %q", cfg.Mode, ModeDev)
	}
	if cfg.LogFormat != LogFormatText || cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("dev logging=%q/%v, want text/debug", cfg.LogFormat, cfg.LogLevel)
	}
	if cfg.ShutdownTimeout != DefaultShutdownTimeout {
		t.Fatalf("ShutdownTimeout=%v, want %v", cfg.ShutdownTimeout, DefaultShutdownTimeout)
	}
	if err := cfg.ICEConfigError(); err != nil {
		t.Fatalf("ICEConfigError=%v, want nil in dev mode", err)
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	env := envMap(map[string]string{
		"PEERCALL_LISTEN_ADDR": "127.0.0.1:9999",
		"PEERCALL_RELAY_URL":   "ws://env:1/ws",
	})

	cfg, err := load(env, []string{"-listen", "0.0.0.0:8443", "-relay-url", "wss://flag/ws"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:8443" {
		t.Fatalf("ListenAddr=%q, want flag value", cfg.ListenAddr)
	}
	if cfg.RelayURL != "wss://flag/ws" {
		t.Fatalf("RelayURL=%q, want flag value", cfg.RelayURL)
	}
}

func TestLoad_ProdModeDefaultsAndICEWarning(t *testing.T) {
	cfg, err := load(envMap(map[string]string{"PEERCALL_MODE": "prod"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatJSON || cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("prod logging=%q/%v, want json/info", cfg.LogFormat, cfg.LogLevel)
	}
	if cfg.ICEConfigError() == nil {
		t.Fatalf("expected ICE config error in prod mode with no servers")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad mode", map[string]string{"PEERCALL_MODE": "staging"}},
		{"bad log level", map[string]string{"PEERCALL_LOG_LEVEL": "loud"}},
		{"bad log format", map[string]string{"PEERCALL_LOG_FORMAT": "xml"}},
		{"bad shutdown timeout", map[string]string{"PEERCALL_SHUTDOWN_TIMEOUT": "soon"}},
		{"bad message bytes", map[string]string{"PEERCALL_MAX_SIGNALING_MESSAGE_BYTES": "lots"}},
		{"zero message rate", map[string]string{"PEERCALL_MAX_SIGNALING_MESSAGES_PER_SECOND": "0"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := load(envMap(tc.env), nil); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoad_EnvKnobs(t *testing.T) {
	cfg, err := load(envMap(map[string]string{
		"PEERCALL_SHUTDOWN_TIMEOUT":                  "3s",
		"PEERCALL_MAX_SIGNALING_MESSAGE_BYTES":       "1024",
		"PEERCALL_MAX_SIGNALING_MESSAGES_PER_SECOND": "10",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("ShutdownTimeout=%v, want 3s", cfg.ShutdownTimeout)
	}
	if cfg.MaxSignalingMessageBytes != 1024 || cfg.MaxSignalingMessagesPerSecond != 10 {
		t.Fatalf("limits=%d/%d, want 1024/10", cfg.MaxSignalingMessageBytes, cfg.MaxSignalingMessagesPerSecond)
	}
}

func TestLoad_ICEServersJSON(t *testing.T) {
	cfg, err := load(envMap(map[string]string{
		"PEERCALL_ICE_SERVERS_JSON": `[
			{"urls":"stun:stun.example.org:3478"},
			{"urls":["turn:turn.example.org:3478?transport=udp"],"username":"u","credential":"c"}
		]`,
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.ICEServers) != 2 {
		t.Fatalf("ICEServers=%d, want 2", len(cfg.ICEServers))
	}
	if cfg.ICEServers[1].Username != "u" {
		t.Fatalf("turn username=%q, want u", cfg.ICEServers[1].Username)
	}
}

func TestLoad_ICEServersJSONInvalidIsDeferred(t *testing.T) {
	cfg, err := load(envMap(map[string]string{
		"PEERCALL_ICE_SERVERS_JSON": `[{"urls":"turn:turn.example.org"}]`,
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	iceErr := cfg.ICEConfigError()
	if iceErr == nil || !strings.Contains(iceErr.Error(), "username") {
		t.Fatalf("ICEConfigError=%v, want turn credential error", iceErr)
	}
}
