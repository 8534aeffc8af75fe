package webrtcpeer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// LocalMedia is an acquired set of outbound sample tracks. All tracks share
// one stream ID so remotes group them as a single participant stream.
type LocalMedia struct {
	streamID string
	video    *webrtc.TrackLocalStaticSample
	audio    *webrtc.TrackLocalStaticSample
}

// NewLocalMedia creates the requested sample tracks (VP8 video, Opus audio).
func NewLocalMedia(video, audio bool) (*LocalMedia, error) {
	m := &LocalMedia{streamID: uuid.NewString()}

	if video {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", m.streamID,
		)
		if err != nil {
			return nil, fmt.Errorf("create video track: %w", err)
		}
		m.video = track
	}

	if audio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", m.streamID,
		)
		if err != nil {
			return nil, fmt.Errorf("create audio track: %w", err)
		}
		m.audio = track
	}

	return m, nil
}

// Tracks returns the acquired tracks for attachment to a peer connection.
func (m *LocalMedia) Tracks() []webrtc.TrackLocal {
	var tracks []webrtc.TrackLocal
	if m.video != nil {
		tracks = append(tracks, m.video)
	}
	if m.audio != nil {
		tracks = append(tracks, m.audio)
	}
	return tracks
}

// WriteVideoSample feeds one encoded video sample to every attached peer.
func (m *LocalMedia) WriteVideoSample(sample media.Sample) error {
	if m.video == nil {
		return fmt.Errorf("no video track acquired")
	}
	return m.video.WriteSample(sample)
}

// WriteAudioSample feeds one encoded audio sample to every attached peer.
func (m *LocalMedia) WriteAudioSample(sample media.Sample) error {
	if m.audio == nil {
		return fmt.Errorf("no audio track acquired")
	}
	return m.audio.WriteSample(sample)
}

// Close releases the tracks. Sample tracks hold no OS resources, so this
// only severs the source from future writes.
func (m *LocalMedia) Close() error {
	m.video = nil
	m.audio = nil
	return nil
}

// SampleSource acquires LocalMedia instances. It fails fast when neither
// kind of track is requested, mirroring a user denying all capture.
type SampleSource struct{}

func (SampleSource) Acquire(ctx context.Context, video, audio bool) (*LocalMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !video && !audio {
		return nil, fmt.Errorf("no media requested")
	}
	return NewLocalMedia(video, audio)
}
