// Package room connects the core to a real-time media room: participants,
// a published screen-share video track, a microphone track and data messages.
package room

import (
	"context"
	"errors"
	"image"
	"time"
)

var (
	// ErrNotConnected is returned when the connection has been closed
	ErrNotConnected = errors.New("room: not connected")
	// ErrJoinRejected is returned when the server refuses the join
	ErrJoinRejected = errors.New("room: join rejected")
	// ErrNoEncoder is returned when publishing video without an encoder factory
	ErrNoEncoder = errors.New("room: no video encoder configured")
)

// Role is a participant's role in the room
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

// Participant describes one member of the room
type Participant struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsLocal bool   `json:"is_local"`
	Role    Role   `json:"role"`
}

// Event is emitted on a connection's event stream
type Event interface {
	roomEvent()
}

// ParticipantJoined reports a remote participant joining
type ParticipantJoined struct {
	Participant Participant
}

// ParticipantLeft reports a remote participant leaving
type ParticipantLeft struct {
	ParticipantID string
}

// DataReceived carries a data message from a remote participant
type DataReceived struct {
	ParticipantID string
	Payload       []byte
	Reliable      bool
}

// Disconnected reports that the connection was lost. It is the last event.
type Disconnected struct {
	Err error
}

func (ParticipantJoined) roomEvent() {}
func (ParticipantLeft) roomEvent()   {}
func (DataReceived) roomEvent()      {}
func (Disconnected) roomEvent()      {}

// Transport opens room connections
type Transport interface {
	Connect(ctx context.Context, serverURL, token string) (Connection, error)
}

// Connection is one joined room
type Connection interface {
	// Local returns the local participant
	Local() Participant
	// Participants returns the remote participants present at join time
	Participants() []Participant
	// PublishVideo publishes a screen-share track of the given nominal size
	PublishVideo(width, height int) (VideoTrack, error)
	// Unpublish removes a published track
	Unpublish(track VideoTrack) error
	// SendData sends payload to every other participant
	SendData(payload []byte, reliable bool) error
	// SetMicrophoneEnabled starts or stops the microphone track
	SetMicrophoneEnabled(enabled bool) error
	// Events returns the event stream. It is closed after the connection ends.
	Events() <-chan Event
	Close() error
}

// VideoTrack is a published video track that accepts I420 frames
type VideoTrack interface {
	ID() string
	WriteFrame(frame *image.YCbCr, timestamp time.Duration) error
}

// VideoEncoder compresses I420 frames for a video track
type VideoEncoder interface {
	Encode(frame *image.YCbCr) ([]byte, error)
	Close() error
}

// EncoderFactory builds an encoder for frames of the given size
type EncoderFactory func(width, height, bitrate int) (VideoEncoder, error)
