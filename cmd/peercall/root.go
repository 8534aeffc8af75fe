package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/peercall/peercall/internal/config"
	"github.com/peercall/peercall/internal/coordinator"
	"github.com/peercall/peercall/internal/webrtcpeer"
)

// Set via -ldflags at build time.
var version = "dev"

var (
	flagRelayURL  string
	flagLogLevel  string
	flagLogFormat string
	flagVideo     bool
	flagAudio     bool
)

var rootCmd = &cobra.Command{
	Use:   "peercall",
	Short: "Terminal client for multi-party calls over a peercall relay",
	Long: `peercall joins a room on a signaling relay and negotiates a direct
WebRTC connection to every other participant. Messages typed on stdin are
sent to all connected peers over the per-peer data channel.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRelayURL, "relay-url", "", "relay websocket URL (overrides PEERCALL_RELAY_URL)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format (text|json)")
	rootCmd.PersistentFlags().BoolVar(&flagVideo, "video", false, "acquire a local video track")
	rootCmd.PersistentFlags().BoolVar(&flagAudio, "audio", false, "acquire a local audio track")
}

// loadConfig resolves env-based configuration and layers the CLI flags on
// top.
func loadConfig() (config.Config, *slog.Logger, error) {
	var args []string
	if flagLogLevel != "" {
		args = append(args, "-log-level", flagLogLevel)
	}
	if flagLogFormat != "" {
		args = append(args, "-log-format", flagLogFormat)
	}
	cfg, err := config.Load(args)
	if err != nil {
		return config.Config{}, nil, err
	}
	if flagRelayURL != "" {
		cfg.RelayURL = flagRelayURL
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		return config.Config{}, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newCoordinator(cfg config.Config, logger *slog.Logger) *coordinator.Coordinator {
	return coordinator.New(coordinator.Config{
		RelayURL:   cfg.RelayURL,
		ICEServers: cfg.ICEServers,
		Logger:     logger,
		AcquireMedia: func(ctx context.Context, video, audio bool) (coordinator.Media, error) {
			return webrtcpeer.SampleSource{}.Acquire(ctx, video, audio)
		},
		OnData: func(sender string, payload []byte) {
			fmt.Printf("[%s] %s\n", shortID(sender), payload)
		},
		OnPeerJoined: func(id string) {
			fmt.Printf("* %s joined\n", shortID(id))
		},
		OnPeerLeft: func(id string) {
			fmt.Printf("* %s left\n", shortID(id))
		},
	})
}

// shortID truncates relay connection IDs for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
