// Package command defines every state-transition trigger handled by the
// dispatcher. Commands are plain data; behavior lives in the dispatcher.
package command

import (
	"example.com/sharecore/pkg/annotation"
	"example.com/sharecore/pkg/capture"
	"example.com/sharecore/pkg/room"
)

// Command is the closed set of messages the dispatcher processes
type Command interface {
	command()
}

// ConnectionState is the room connection state reported to the host UI
type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
	Reconnecting ConnectionState = "reconnecting"
)

// Error codes reported to the host UI
const (
	CodeSocketInitFailed  = "socket_init_failed"
	CodePublishFailed     = "publish_failed"
	CodeCaptureFailed     = "capture_failed"
	CodeRoomJoinFailed    = "room_join_failed"
	CodeRoomDisconnected  = "room_disconnected"
	CodeRestartFailed     = "restart_failed"
	CodeSourceNotFound    = "source_not_found"
	CodeEnumerationFailed = "enumeration_failed"
	CodeDataSendFailed    = "data_send_failed"
	CodeMediaToggleFailed = "media_toggle_failed"
	CodeInternal          = "internal_error"
)

// IPC lifecycle

type SocketConnected struct{}
type SocketDisconnected struct{}

// Screen capture

type GetAvailableContent struct{}

// AvailableContent carries a finished enumeration
type AvailableContent struct {
	Screens []capture.SourceDescriptor
}

type StartScreenShare struct {
	SourceID   string
	SourceType capture.SourceType
	Config     capture.Config
}

type StopScreenShare struct{}

type ScreenShareStateChanged struct {
	Sharing  bool
	SourceID string
}

// CaptureEnded reports a session that ended on its own; Err is set when
// recovery gave up.
type CaptureEnded struct {
	SessionID string
	SourceID  string
	Err       error
}

// PreviewFrame is a local JPEG preview of the shared source
type PreviewFrame struct {
	SourceID  string
	JPEG      []byte
	Width     int
	Height    int
	Timestamp int64
}

// Local annotations

type SendAnnotation struct {
	StrokeID  string
	Tool      annotation.Tool
	Color     annotation.Color
	Points    []annotation.Point
	Completed bool
}

type DeleteAnnotation struct {
	StrokeID string
}

type ClearAnnotations struct{}

// Remote annotations

type StrokeStarted struct {
	ParticipantID string
	StrokeID      string
	Tool          annotation.Tool
	Color         annotation.Color
	Point         annotation.Point
}

type StrokeUpdated struct {
	ParticipantID string
	StrokeID      string
	Points        []annotation.Point
}

type StrokeCompleted struct {
	ParticipantID string
	StrokeID      string
}

type StrokeDeleted struct {
	ParticipantID string
	StrokeID      string
}

type AnnotationsCleared struct {
	ParticipantID string
}

// Cursors

type CursorMove struct {
	X float64
	Y float64
}

type CursorHide struct{}

type RemoteCursorMoved struct {
	ParticipantID string
	X             float64
	Y             float64
	Visible       bool
}

// Room

type JoinRoom struct {
	ServerURL string
	Token     string
}

type LeaveRoom struct{}

// RoomConnected completes join attempt Attempt
type RoomConnected struct {
	Attempt uint64
	Conn    room.Connection
}

// RoomJoinFailed fails join attempt Attempt
type RoomJoinFailed struct {
	Attempt uint64
	Err     error
}

// RoomDisconnected reports that the connection from Attempt was lost
type RoomDisconnected struct {
	Attempt uint64
	Err     error
}

type ConnectionStateChanged struct {
	State ConnectionState
}

type ParticipantJoined struct {
	Participant room.Participant
}

type ParticipantLeft struct {
	ParticipantID string
}

type DataReceived struct {
	ParticipantID string
	Payload       []byte
}

// Media

type SetMicMuted struct {
	Muted bool
}

type SetCameraEnabled struct {
	Enabled bool
}

type SetAudioInputDevice struct {
	DeviceID string
}

type SetVideoInputDevice struct {
	DeviceID string
}

// Permissions

type CheckPermissions struct{}
type RequestScreenRecordingPermission struct{}

// Lifecycle

type Ping struct{}

// Error is a failure to report to the host UI
type Error struct {
	Code    string
	Message string
}

// Terminate stops the dispatch loop
type Terminate struct{}

func (SocketConnected) command()                  {}
func (SocketDisconnected) command()               {}
func (GetAvailableContent) command()              {}
func (AvailableContent) command()                 {}
func (StartScreenShare) command()                 {}
func (StopScreenShare) command()                  {}
func (ScreenShareStateChanged) command()          {}
func (CaptureEnded) command()                     {}
func (PreviewFrame) command()                     {}
func (SendAnnotation) command()                   {}
func (DeleteAnnotation) command()                 {}
func (ClearAnnotations) command()                 {}
func (StrokeStarted) command()                    {}
func (StrokeUpdated) command()                    {}
func (StrokeCompleted) command()                  {}
func (StrokeDeleted) command()                    {}
func (AnnotationsCleared) command()               {}
func (CursorMove) command()                       {}
func (CursorHide) command()                       {}
func (RemoteCursorMoved) command()                {}
func (JoinRoom) command()                         {}
func (LeaveRoom) command()                        {}
func (RoomConnected) command()                    {}
func (RoomJoinFailed) command()                   {}
func (RoomDisconnected) command()                 {}
func (ConnectionStateChanged) command()           {}
func (ParticipantJoined) command()                {}
func (ParticipantLeft) command()                  {}
func (DataReceived) command()                     {}
func (SetMicMuted) command()                      {}
func (SetCameraEnabled) command()                 {}
func (SetAudioInputDevice) command()              {}
func (SetVideoInputDevice) command()              {}
func (CheckPermissions) command()                 {}
func (RequestScreenRecordingPermission) command() {}
func (Ping) command()                             {}
func (Error) command()                            {}
func (Terminate) command()                        {}
