// Package config loads relay and participant configuration from flags and
// PEERCALL_* environment variables. Flags win over env vars, env vars over
// defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

const (
	envVarListenAddr      = "PEERCALL_LISTEN_ADDR"
	envVarRelayURL        = "PEERCALL_RELAY_URL"
	envVarMode            = "PEERCALL_MODE"
	envVarLogFormat       = "PEERCALL_LOG_FORMAT"
	envVarLogLevel        = "PEERCALL_LOG_LEVEL"
	envVarShutdownTimeout = "PEERCALL_SHUTDOWN_TIMEOUT"

	envVarMaxSignalingMessageBytes      = "PEERCALL_MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "PEERCALL_MAX_SIGNALING_MESSAGES_PER_SECOND"
)

const (
	DefaultListenAddr                    = "127.0.0.1:8080"
	DefaultRelayURL                      = "ws://127.0.0.1:8080/ws"
	DefaultMode                          = ModeDev
	DefaultShutdownTimeout               = 15 * time.Second
	DefaultMaxSignalingMessageBytes      = 64 * 1024
	DefaultMaxSignalingMessagesPerSecond = 50
)

type Config struct {
	// ListenAddr is the relay server's bind address.
	ListenAddr string

	// RelayURL is the websocket endpoint a participant connects to.
	RelayURL string

	Mode      Mode
	LogFormat LogFormat
	LogLevel  slog.Level

	ShutdownTimeout time.Duration

	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int64

	// ICEServers is the STUN/TURN configuration handed to the peer transport.
	ICEServers []webrtc.ICEServer

	iceErr error
}

// ICEConfigError reports a deferred ICE configuration problem. ICE config is
// only needed once a peer connection is created, so Load records rather than
// fails on it; readiness checks surface it.
func (c Config) ICEConfigError() error { return c.iceErr }

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	mode := Mode(strings.ToLower(envOrDefault(lookup, envVarMode, string(DefaultMode))))
	switch mode {
	case ModeDev, ModeProd:
	default:
		return Config{}, fmt.Errorf("invalid %s %q", envVarMode, mode)
	}

	fs := flag.NewFlagSet("peercall", flag.ContinueOnError)
	listenAddr := fs.String("listen", envOrDefault(lookup, envVarListenAddr, DefaultListenAddr), "relay listen address")
	relayURL := fs.String("relay-url", envOrDefault(lookup, envVarRelayURL, DefaultRelayURL), "relay websocket URL")
	logFormatStr := fs.String("log-format", envOrDefault(lookup, envVarLogFormat, defaultLogFormatForMode(mode)), "log format (text|json)")
	logLevelStr := fs.String("log-level", envOrDefault(lookup, envVarLogLevel, defaultLogLevelForMode(mode)), "log level (debug|info|warn|error)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	logLevel, err := parseLogLevel(*logLevelStr)
	if err != nil {
		return Config{}, err
	}

	logFormat := LogFormat(strings.ToLower(strings.TrimSpace(*logFormatStr)))
	switch logFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return Config{}, fmt.Errorf("invalid log format %q", *logFormatStr)
	}

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return Config{}, err
	}

	maxMsgBytes, err := envInt64OrDefault(lookup, envVarMaxSignalingMessageBytes, DefaultMaxSignalingMessageBytes)
	if err != nil {
		return Config{}, err
	}
	maxMsgRate, err := envInt64OrDefault(lookup, envVarMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	if maxMsgBytes <= 0 {
		return Config{}, fmt.Errorf("%s must be positive", envVarMaxSignalingMessageBytes)
	}
	if maxMsgRate <= 0 {
		return Config{}, fmt.Errorf("%s must be positive", envVarMaxSignalingMessagesPerSecond)
	}

	cfg := Config{
		ListenAddr:                    *listenAddr,
		RelayURL:                      *relayURL,
		Mode:                          mode,
		LogFormat:                     logFormat,
		LogLevel:                      logLevel,
		ShutdownTimeout:               shutdownTimeout,
		MaxSignalingMessageBytes:      maxMsgBytes,
		MaxSignalingMessagesPerSecond: maxMsgRate,
	}

	cfg.ICEServers, cfg.iceErr = parseICEServersFromEnv(lookup)
	if cfg.iceErr == nil && len(cfg.ICEServers) == 0 && mode == ModeProd {
		cfg.iceErr = errors.New("no ICE servers configured; peers behind NAT will not connect")
	}

	return cfg, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func defaultLogFormatForMode(mode Mode) string {
	if mode == ModeProd {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func defaultLogLevelForMode(mode Mode) string {
	if mode == ModeProd {
		return "info"
	}
	return "debug"
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", raw)
	}
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt64OrDefault(lookup func(string) (string, bool), key string, fallback int64) (int64, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
