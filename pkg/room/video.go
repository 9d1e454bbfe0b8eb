package room

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const defaultFrameDuration = time.Second / 30

// videoTrack encodes I420 frames into a published sample track. The encoder
// is rebuilt when the frame size changes.
type videoTrack struct {
	id            string
	width, height int
	track         *webrtc.TrackLocalStaticSample
	sender        *webrtc.RTPSender
	factory       EncoderFactory
	bitrate       int

	mu      sync.Mutex
	encoder VideoEncoder
	encSize image.Point
	last    time.Duration
	closed  bool
}

func (t *videoTrack) ID() string {
	return t.id
}

func (t *videoTrack) WriteFrame(frame *image.YCbCr, timestamp time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrNotConnected
	}

	size := frame.Rect.Size()
	if t.encoder == nil || size != t.encSize {
		if t.encoder != nil {
			t.encoder.Close()
		}
		enc, err := t.factory(size.X, size.Y, t.bitrate)
		if err != nil {
			t.encoder = nil
			return fmt.Errorf("create encoder for %v: %w", size, err)
		}
		slog.Debug("room: video encoder ready", "track", t.id, "width", size.X, "height", size.Y)
		t.encoder = enc
		t.encSize = size
	}

	data, err := t.encoder.Encode(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	duration := timestamp - t.last
	if t.last == 0 || duration <= 0 {
		duration = defaultFrameDuration
	}
	t.last = timestamp

	return t.track.WriteSample(media.Sample{Data: data, Duration: duration})
}

func (t *videoTrack) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	if t.encoder != nil {
		t.encoder.Close()
		t.encoder = nil
	}
}
