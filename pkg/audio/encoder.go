package audio

import (
	"fmt"

	"github.com/pion/rtp"
	"gopkg.in/hraban/opus.v2"
)

const (
	// SampleRate is the WebRTC Opus clock rate
	SampleRate = 48000
	// Channels is the channel count of the microphone track
	Channels = 2
	// FrameSize is 20ms of samples per channel at 48kHz
	FrameSize = 960
	// PayloadType is the dynamic RTP payload type registered for Opus
	PayloadType = 111
)

// OpusEncoder encodes PCM audio to Opus
type OpusEncoder struct {
	encoder   *opus.Encoder
	channels  int
	frameSize int
	buf       []byte
}

// NewOpusEncoder creates a VoIP-tuned Opus encoder
func NewOpusEncoder(sampleRate, channels, frameSize, bitrate int) (*OpusEncoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	if err := enc.SetBitrate(bitrate); err != nil {
		return nil, fmt.Errorf("set opus bitrate: %w", err)
	}

	return &OpusEncoder{
		encoder:   enc,
		channels:  channels,
		frameSize: frameSize,
		buf:       make([]byte, 1500),
	}, nil
}

// Encode encodes one frame of interleaved int16 samples. The returned slice
// is only valid until the next call.
func (e *OpusEncoder) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != e.frameSize*e.channels {
		return nil, fmt.Errorf("opus frame has %d samples, want %d", len(pcm), e.frameSize*e.channels)
	}
	n, err := e.encoder.Encode(pcm, e.buf)
	if err != nil {
		return nil, err
	}
	return e.buf[:n], nil
}

// Packetizer wraps encoded Opus frames in RTP packets
type Packetizer struct {
	ssrc      uint32
	seqNum    uint16
	timestamp uint32
	frameSize uint32
}

// NewPacketizer creates a packetizer advancing the RTP clock by frameSize per packet
func NewPacketizer(ssrc uint32, frameSize int) *Packetizer {
	return &Packetizer{
		ssrc:      ssrc,
		frameSize: uint32(frameSize),
	}
}

// Packetize builds the next RTP packet for payload
func (p *Packetizer) Packetize(payload []byte) *rtp.Packet {
	packet := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    PayloadType,
			SequenceNumber: p.seqNum,
			Timestamp:      p.timestamp,
			SSRC:           p.ssrc,
		},
		Payload: append([]byte(nil), payload...),
	}

	p.seqNum++
	p.timestamp += p.frameSize
	return packet
}
