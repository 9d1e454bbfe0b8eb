package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/rtp"
)

// Source produces interleaved 48kHz stereo PCM
type Source interface {
	// ReadFrame fills pcm with the next 20ms frame
	ReadFrame(pcm []int16) error
}

// Silence is a Source that produces digital silence
type Silence struct{}

// ReadFrame zeroes pcm
func (Silence) ReadFrame(pcm []int16) error {
	clear(pcm)
	return nil
}

// PacketWriter accepts RTP packets, e.g. a *webrtc.TrackLocalStaticRTP
type PacketWriter interface {
	WriteRTP(p *rtp.Packet) error
}

// Microphone pumps a Source through Opus into an RTP track while unmuted
type Microphone struct {
	source  Source
	writer  PacketWriter
	bitrate int

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewMicrophone creates a muted microphone. A nil source produces silence.
func NewMicrophone(source Source, writer PacketWriter, bitrate int) *Microphone {
	if source == nil {
		source = Silence{}
	}
	return &Microphone{source: source, writer: writer, bitrate: bitrate}
}

// SetMuted starts or stops the capture loop
func (m *Microphone) SetMuted(muted bool) error {
	if muted {
		m.halt()
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return nil
	}

	encoder, err := NewOpusEncoder(SampleRate, Channels, FrameSize, m.bitrate)
	if err != nil {
		return fmt.Errorf("start microphone: %w", err)
	}

	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.run(encoder, NewPacketizer(0, FrameSize), m.stop, m.done)
	return nil
}

// Muted reports whether the capture loop is stopped
func (m *Microphone) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stop == nil
}

// Close stops the capture loop and waits for it
func (m *Microphone) Close() error {
	m.halt()
	return nil
}

func (m *Microphone) halt() {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (m *Microphone) run(encoder *OpusEncoder, packetizer *Packetizer, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	pcm := make([]int16, FrameSize*Channels)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		if err := m.source.ReadFrame(pcm); err != nil {
			slog.Warn("audio: microphone read failed", "error", err)
			continue
		}
		payload, err := encoder.Encode(pcm)
		if err != nil {
			slog.Warn("audio: opus encode failed", "error", err)
			continue
		}
		if err := m.writer.WriteRTP(packetizer.Packetize(payload)); err != nil {
			slog.Debug("audio: write rtp failed", "error", err)
		}
	}
}
