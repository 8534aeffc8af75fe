package main

import (
	"log/slog"

	"github.com/peercall/peercall/internal/config"
)

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Mode == config.ModeProd && len(cfg.ICEServers) == 0 {
		logger.Warn("startup warning: no ICE servers configured while --mode=prod (peers behind NAT will fail to connect)",
			"warning_code", "no_ice_servers_in_prod",
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd {
		// The relay accepts websocket upgrades from any origin; deployments
		// are expected to front it with their own origin policy.
		logger.Warn("startup warning: websocket origin checking is disabled (any origin may connect)",
			"warning_code", "origin_check_disabled",
			"mode", cfg.Mode,
		)
	}

	if cfg.MaxSignalingMessageBytes > 1<<20 { // 1MiB
		logger.Warn("startup warning: MAX_SIGNALING_MESSAGE_BYTES is very large (weakens signaling DoS hardening; SDP payloads fit comfortably in 64KiB)",
			"warning_code", "signaling_message_limit_large",
			"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
			"mode", cfg.Mode,
		)
	}
}
