// Package vp8 encodes I420 frames with libvpx for the screen-share track.
// It requires cgo and libvpx.
package vp8

import (
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/pion/mediadevices/pkg/codec"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"

	"example.com/sharecore/pkg/room"
)

const (
	keyFrameInterval = 120
	nominalFrameRate = 30
)

var errNoFrame = errors.New("vp8: no pending frame")

// Encoder feeds one frame at a time through a libvpx encoder
type Encoder struct {
	width, height int

	mu      sync.Mutex
	pending *image.YCbCr
	enc     codec.ReadCloser
}

// New builds a VP8 encoder for width x height frames. Its signature matches
// room.EncoderFactory.
func New(width, height, bitrate int) (room.VideoEncoder, error) {
	params, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	params.BitRate = bitrate
	params.KeyFrameInterval = keyFrameInterval

	e := &Encoder{width: width, height: height}
	reader := video.ReaderFunc(func() (image.Image, func(), error) {
		if e.pending == nil {
			return nil, func() {}, errNoFrame
		}
		img := e.pending
		e.pending = nil
		return img, func() {}, nil
	})

	enc, err := params.BuildVideoEncoder(reader, prop.Media{
		Video: prop.Video{
			Width:       width,
			Height:      height,
			FrameRate:   nominalFrameRate,
			FrameFormat: frame.FormatI420,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build vp8 encoder: %w", err)
	}
	e.enc = enc
	return e, nil
}

// Encode compresses one frame. The returned slice is owned by the caller.
func (e *Encoder) Encode(img *image.YCbCr) ([]byte, error) {
	if size := img.Rect.Size(); size.X != e.width || size.Y != e.height {
		return nil, fmt.Errorf("vp8: frame is %v, encoder expects %dx%d", size, e.width, e.height)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.pending = img
	data, release, err := e.enc.Read()
	e.pending = nil
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("vp8 encode: %w", err)
	}
	defer release()
	return append([]byte(nil), data...), nil
}

func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Close()
}
