package room

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

type countingEncoder struct {
	size   image.Point
	frames int
	closed bool
}

func (e *countingEncoder) Encode(img *image.YCbCr) ([]byte, error) {
	e.frames++
	return []byte{0x10, 0x02, 0x00}, nil
}

func (e *countingEncoder) Close() error {
	e.closed = true
	return nil
}

func newTestTrack(t *testing.T, built *[]*countingEncoder) *videoTrack {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(vp8Capability, "screen-test", "stream-test")
	if err != nil {
		t.Fatal(err)
	}
	return &videoTrack{
		id:    "screen-test",
		track: track,
		factory: func(w, h, bitrate int) (VideoEncoder, error) {
			enc := &countingEncoder{size: image.Pt(w, h)}
			*built = append(*built, enc)
			return enc, nil
		},
		bitrate: 1_000_000,
	}
}

func frame(w, h int) *image.YCbCr {
	return image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
}

func TestVideoTrackRebuildsEncoderOnResize(t *testing.T) {
	var built []*countingEncoder
	vt := newTestTrack(t, &built)

	steps := []struct {
		w, h     int
		encoders int
	}{
		{640, 360, 1},
		{640, 360, 1},
		{1280, 720, 2},
		{1280, 720, 2},
	}
	for i, s := range steps {
		if err := vt.WriteFrame(frame(s.w, s.h), time.Duration(i+1)*33*time.Millisecond); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if len(built) != s.encoders {
			t.Errorf("after frame %d: %d encoders built, want %d", i, len(built), s.encoders)
		}
	}

	if !built[0].closed {
		t.Error("first encoder not closed after resize")
	}
	if got := built[1].size; got != image.Pt(1280, 720) {
		t.Errorf("second encoder size = %v, want 1280x720", got)
	}
	if built[0].frames != 2 || built[1].frames != 2 {
		t.Errorf("frames per encoder = %d, %d, want 2, 2", built[0].frames, built[1].frames)
	}
}

func TestVideoTrackClosed(t *testing.T) {
	var built []*countingEncoder
	vt := newTestTrack(t, &built)
	if err := vt.WriteFrame(frame(320, 240), 0); err != nil {
		t.Fatal(err)
	}
	vt.close()

	if err := vt.WriteFrame(frame(320, 240), time.Second); !errors.Is(err, ErrNotConnected) {
		t.Errorf("write after close = %v, want ErrNotConnected", err)
	}
	if len(built) != 1 || !built[0].closed {
		t.Error("encoder not released on close")
	}
}

func TestSignalMessageJSON(t *testing.T) {
	got := string(SignalMessage{Type: SignalData, ClientID: "p1", Data: []byte("hi")}.ToJSON())
	want := `{"type":"data","client_id":"p1","data":"aGk="}`
	if got != want {
		t.Errorf("ToJSON = %s, want %s", got, want)
	}
}
