// Package ipc implements the newline-delimited JSON control channel between
// the core and its host UI.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"

	"example.com/sharecore/pkg/annotation"
	"example.com/sharecore/pkg/capture"
	"example.com/sharecore/pkg/command"
	"example.com/sharecore/pkg/permissions"
	"example.com/sharecore/pkg/room"
)

// ErrInvalidMessage is returned for lines that do not decode to a command
var ErrInvalidMessage = errors.New("ipc: invalid message")

// Inbound message types
const (
	TypeJoinRoom                   = "join_room"
	TypeLeaveRoom                  = "leave_room"
	TypeGetAvailableContent        = "get_available_content"
	TypeStartScreenShare           = "start_screen_share"
	TypeStopScreenShare            = "stop_screen_share"
	TypeSendAnnotation             = "send_annotation"
	TypeDeleteAnnotation           = "delete_annotation"
	TypeClearAnnotations           = "clear_annotations"
	TypeCursorMove                 = "cursor_move"
	TypeCursorHide                 = "cursor_hide"
	TypeSetMicMuted                = "set_mic_muted"
	TypeSetCameraEnabled           = "set_camera_enabled"
	TypeSetAudioInputDevice        = "set_audio_input_device"
	TypeSetVideoInputDevice        = "set_video_input_device"
	TypeCheckPermissions           = "check_permissions"
	TypeRequestScreenRecordingPerm = "request_screen_recording_permission"
	TypePing                       = "ping"
	TypeShutdown                   = "shutdown"
)

// Outbound message types
const (
	TypeAvailableContent       = "available_content"
	TypeParticipantJoined      = "participant_joined"
	TypeParticipantLeft        = "participant_left"
	TypeConnectionStateChanged = "connection_state_changed"
	TypeScreenShareStarted     = "screen_share_started"
	TypeScreenShareStopped     = "screen_share_stopped"
	TypeVideoFrame             = "video_frame"
	TypePermissionState        = "permission_state"
	TypePong                   = "pong"
	TypeError                  = "error"
)

type joinRoomMessage struct {
	ServerURL string `json:"server_url"`
	Token     string `json:"token"`
}

type startScreenShareMessage struct {
	SourceID   string             `json:"source_id"`
	SourceType capture.SourceType `json:"source_type"`
	Config     *capture.Config    `json:"config"`
}

type sendAnnotationMessage struct {
	StrokeID  string             `json:"stroke_id"`
	Tool      annotation.Tool    `json:"tool"`
	Color     annotation.Color   `json:"color"`
	Points    []annotation.Point `json:"points"`
	Completed bool               `json:"completed"`
}

type strokeIDMessage struct {
	StrokeID string `json:"stroke_id"`
}

type cursorMoveMessage struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type mutedMessage struct {
	Muted bool `json:"muted"`
}

type enabledMessage struct {
	Enabled bool `json:"enabled"`
}

type deviceMessage struct {
	DeviceID string `json:"device_id"`
}

// Decode translates one inbound line into a command
func Decode(line []byte) (command.Command, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	switch envelope.Type {
	case TypeJoinRoom:
		var m joinRoomMessage
		if err := decodeBody(line, &m); err != nil {
			return nil, err
		}
		if m.ServerURL == "" || m.Token == "" {
			return nil, fmt.Errorf("%w: join_room requires server_url and token", ErrInvalidMessage)
		}
		return command.JoinRoom{ServerURL: m.ServerURL, Token: m.Token}, nil

	case TypeLeaveRoom:
		return command.LeaveRoom{}, nil

	case TypeGetAvailableContent:
		return command.GetAvailableContent{}, nil

	case TypeStartScreenShare:
		var m startScreenShareMessage
		if err := decodeBody(line, &m); err != nil {
			return nil, err
		}
		if m.SourceID == "" {
			return nil, fmt.Errorf("%w: start_screen_share requires source_id", ErrInvalidMessage)
		}
		if m.SourceType != capture.SourceScreen && m.SourceType != capture.SourceWindow {
			return nil, fmt.Errorf("%w: unknown source_type %q", ErrInvalidMessage, m.SourceType)
		}
		cfg := capture.DefaultConfig()
		if m.Config != nil {
			if err := m.Config.Validate(); err != nil {
				return nil, fmt.Errorf("%w: start_screen_share: %v", ErrInvalidMessage, err)
			}
			cfg = *m.Config
		}
		return command.StartScreenShare{SourceID: m.SourceID, SourceType: m.SourceType, Config: cfg}, nil

	case TypeStopScreenShare:
		return command.StopScreenShare{}, nil

	case TypeSendAnnotation:
		var m sendAnnotationMessage
		if err := decodeBody(line, &m); err != nil {
			return nil, err
		}
		if m.StrokeID == "" {
			return nil, fmt.Errorf("%w: send_annotation requires stroke_id", ErrInvalidMessage)
		}
		if !m.Tool.Valid() {
			return nil, fmt.Errorf("%w: unknown tool %q", ErrInvalidMessage, m.Tool)
		}
		return command.SendAnnotation{
			StrokeID:  m.StrokeID,
			Tool:      m.Tool,
			Color:     m.Color,
			Points:    m.Points,
			Completed: m.Completed,
		}, nil

	case TypeDeleteAnnotation:
		var m strokeIDMessage
		if err := decodeBody(line, &m); err != nil {
			return nil, err
		}
		if m.StrokeID == "" {
			return nil, fmt.Errorf("%w: delete_annotation requires stroke_id", ErrInvalidMessage)
		}
		return command.DeleteAnnotation{StrokeID: m.StrokeID}, nil

	case TypeClearAnnotations:
		return command.ClearAnnotations{}, nil

	case TypeCursorMove:
		var m cursorMoveMessage
		if err := decodeBody(line, &m); err != nil {
			return nil, err
		}
		return command.CursorMove{X: m.X, Y: m.Y}, nil

	case TypeCursorHide:
		return command.CursorHide{}, nil

	case TypeSetMicMuted:
		var m mutedMessage
		if err := decodeBody(line, &m); err != nil {
			return nil, err
		}
		return command.SetMicMuted{Muted: m.Muted}, nil

	case TypeSetCameraEnabled:
		var m enabledMessage
		if err := decodeBody(line, &m); err != nil {
			return nil, err
		}
		return command.SetCameraEnabled{Enabled: m.Enabled}, nil

	case TypeSetAudioInputDevice, TypeSetVideoInputDevice:
		var m deviceMessage
		if err := decodeBody(line, &m); err != nil {
			return nil, err
		}
		if envelope.Type == TypeSetAudioInputDevice {
			return command.SetAudioInputDevice{DeviceID: m.DeviceID}, nil
		}
		return command.SetVideoInputDevice{DeviceID: m.DeviceID}, nil

	case TypeCheckPermissions:
		return command.CheckPermissions{}, nil

	case TypeRequestScreenRecordingPerm:
		return command.RequestScreenRecordingPermission{}, nil

	case TypePing:
		return command.Ping{}, nil

	case TypeShutdown:
		return command.Terminate{}, nil

	case "":
		return nil, fmt.Errorf("%w: missing type", ErrInvalidMessage)

	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, envelope.Type)
	}
}

func decodeBody(line []byte, v any) error {
	if err := json.Unmarshal(line, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

// Message is an outbound notification
type Message interface {
	MessageType() string
}

// FrameFormat is the pixel encoding of a relayed video frame
type FrameFormat string

const (
	FormatJPEG FrameFormat = "jpeg"
	FormatRGBA FrameFormat = "rgba"
	FormatNV12 FrameFormat = "nv12"
)

// AvailableContent lists capturable sources. Windows is always present.
type AvailableContent struct {
	Type    string                     `json:"type"`
	Screens []capture.SourceDescriptor `json:"screens"`
	Windows []capture.SourceDescriptor `json:"windows"`
}

type ParticipantJoined struct {
	Type        string           `json:"type"`
	Participant room.Participant `json:"participant"`
}

type ParticipantLeft struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participant_id"`
}

type ConnectionStateChanged struct {
	Type  string                  `json:"type"`
	State command.ConnectionState `json:"state"`
}

type ScreenShareStarted struct {
	Type     string `json:"type"`
	SharerID string `json:"sharer_id"`
}

type ScreenShareStopped struct {
	Type string `json:"type"`
}

// VideoFrame relays one encoded frame. FrameData is base64.
type VideoFrame struct {
	Type          string      `json:"type"`
	ParticipantID string      `json:"participant_id"`
	TrackID       string      `json:"track_id"`
	Width         int         `json:"width"`
	Height        int         `json:"height"`
	Timestamp     int64       `json:"timestamp"`
	Format        FrameFormat `json:"format"`
	FrameData     string      `json:"frame_data"`
}

type PermissionState struct {
	Type  string            `json:"type"`
	State permissions.State `json:"state"`
}

type Pong struct {
	Type string `json:"type"`
}

type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (AvailableContent) MessageType() string       { return TypeAvailableContent }
func (ParticipantJoined) MessageType() string      { return TypeParticipantJoined }
func (ParticipantLeft) MessageType() string        { return TypeParticipantLeft }
func (ConnectionStateChanged) MessageType() string { return TypeConnectionStateChanged }
func (ScreenShareStarted) MessageType() string     { return TypeScreenShareStarted }
func (ScreenShareStopped) MessageType() string     { return TypeScreenShareStopped }
func (VideoFrame) MessageType() string             { return TypeVideoFrame }
func (PermissionState) MessageType() string        { return TypePermissionState }
func (Pong) MessageType() string                   { return TypePong }
func (Error) MessageType() string                  { return TypeError }

func NewAvailableContent(screens []capture.SourceDescriptor) AvailableContent {
	if screens == nil {
		screens = []capture.SourceDescriptor{}
	}
	return AvailableContent{Type: TypeAvailableContent, Screens: screens, Windows: []capture.SourceDescriptor{}}
}

func NewParticipantJoined(p room.Participant) ParticipantJoined {
	return ParticipantJoined{Type: TypeParticipantJoined, Participant: p}
}

func NewParticipantLeft(id string) ParticipantLeft {
	return ParticipantLeft{Type: TypeParticipantLeft, ParticipantID: id}
}

func NewConnectionStateChanged(state command.ConnectionState) ConnectionStateChanged {
	return ConnectionStateChanged{Type: TypeConnectionStateChanged, State: state}
}

func NewScreenShareStarted(sharerID string) ScreenShareStarted {
	return ScreenShareStarted{Type: TypeScreenShareStarted, SharerID: sharerID}
}

func NewScreenShareStopped() ScreenShareStopped {
	return ScreenShareStopped{Type: TypeScreenShareStopped}
}

func NewVideoFrame(participantID, trackID string, width, height int, timestamp int64, format FrameFormat, data string) VideoFrame {
	return VideoFrame{
		Type:          TypeVideoFrame,
		ParticipantID: participantID,
		TrackID:       trackID,
		Width:         width,
		Height:        height,
		Timestamp:     timestamp,
		Format:        format,
		FrameData:     data,
	}
}

func NewPermissionState(state permissions.State) PermissionState {
	return PermissionState{Type: TypePermissionState, State: state}
}

func NewPong() Pong {
	return Pong{Type: TypePong}
}

func NewError(code, message string) Error {
	return Error{Type: TypeError, Code: code, Message: message}
}

// Encode serializes msg as one line including the trailing newline
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.MessageType(), err)
	}
	return append(data, '\n'), nil
}
