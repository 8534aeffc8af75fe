// Package webrtcpeer implements the pion-backed peer transport: peer
// connection lifecycle, the "chat" data channel, local sample tracks, and
// the bridge from pion's logging onto slog.
package webrtcpeer

import (
	"log/slog"

	"github.com/pion/webrtc/v4"
)

// DataChannelLabelChat is the label of the per-peer messaging channel. The
// offering side creates it; the answering side adopts it on arrival.
const DataChannelLabelChat = "chat"

// NewAPI builds the shared pion API: default media codecs plus pion logs
// routed through the process logger.
func NewAPI(logger *slog.Logger) (*webrtc.API, error) {
	se := webrtc.SettingEngine{
		LoggerFactory: NewLoggerFactory(logger),
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	return webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(mediaEngine),
	), nil
}
