// Package dispatcher owns all application state. Every subsystem reports
// into its command queue and a single goroutine applies the commands in
// order, so no state here is shared across goroutines.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"example.com/sharecore/pkg/annotation"
	"example.com/sharecore/pkg/capture"
	"example.com/sharecore/pkg/command"
	"example.com/sharecore/pkg/ipc"
	"example.com/sharecore/pkg/permissions"
	"example.com/sharecore/pkg/room"
)

// Capturer is the capture pipeline as seen by the dispatcher
type Capturer interface {
	Enumerate(ctx context.Context) ([]capture.SourceDescriptor, error)
	Start(sourceID string, sourceType capture.SourceType, cfg capture.Config, sink capture.FrameSink) (string, error)
	Stop()
}

// PermissionChecker reports OS permission state
type PermissionChecker interface {
	Check() permissions.State
	RequestScreenRecording() permissions.State
}

// Options tunes the dispatcher
type Options struct {
	ConnectTimeout   time.Duration // room join budget (default: 45s)
	EnumerateTimeout time.Duration // upper bound for a content request (default: 15s)
}

func DefaultOptions() Options {
	return Options{
		ConnectTimeout:   45 * time.Second,
		EnumerateTimeout: 15 * time.Second,
	}
}

// Deps are the dispatcher's collaborators. Overlay and Permissions are
// optional.
type Deps struct {
	Queue       *Queue
	IPC         ipc.Sender
	Capture     Capturer
	Transport   room.Transport
	Overlay     Overlay
	Permissions PermissionChecker
}

// Dispatcher serializes all state mutation on the goroutine running Run
type Dispatcher struct {
	queue       *Queue
	ipc         ipc.Sender
	capture     Capturer
	transport   room.Transport
	overlay     Overlay
	permissions PermissionChecker
	opts        Options

	// screen share
	sharing   bool
	share     command.StartScreenShare
	sessionID string
	track     room.VideoTrack
	sources   map[string]capture.SourceDescriptor
	overlayOn bool

	// room
	conn         room.Connection
	connState    command.ConnectionState
	attempt      uint64
	joinCancel   context.CancelFunc
	participants map[string]room.Participant
	joinOrder    []string
	colors       map[string]annotation.Color
	nextColor    int
	cursors      map[string]*RemoteCursor

	store *annotation.Store

	// media
	micMuted      bool
	cameraEnabled bool
	audioDevice   string
	videoDevice   string

	done chan struct{}
}

// New creates a dispatcher. Run must be called to process commands.
func New(deps Deps, opts Options) *Dispatcher {
	d := &Dispatcher{
		queue:        deps.Queue,
		ipc:          deps.IPC,
		capture:      deps.Capture,
		transport:    deps.Transport,
		overlay:      deps.Overlay,
		permissions:  deps.Permissions,
		opts:         opts,
		connState:    command.Disconnected,
		sources:      make(map[string]capture.SourceDescriptor),
		participants: make(map[string]room.Participant),
		colors:       make(map[string]annotation.Color),
		cursors:      make(map[string]*RemoteCursor),
		store:        annotation.NewStore(),
		micMuted:     true,
		done:         make(chan struct{}),
	}
	if d.queue == nil {
		d.queue = NewQueue()
	}
	if d.overlay == nil {
		d.overlay = NewLogOverlay()
	}
	if d.permissions == nil {
		d.permissions = permissions.NewChecker()
	}
	return d
}

// Submit queues cmd. It is safe to call from any goroutine.
func (d *Dispatcher) Submit(cmd command.Command) {
	d.queue.Submit(cmd)
}

// Done is closed when Run returns
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Run processes commands until Terminate
func (d *Dispatcher) Run() {
	defer close(d.done)
	slog.Info("dispatcher: running")

	for {
		cmd := d.queue.next()
		if _, ok := cmd.(command.Terminate); ok {
			d.shutdown()
			slog.Info("dispatcher: terminated")
			return
		}
		d.dispatch(cmd)
	}
}

func (d *Dispatcher) dispatch(cmd command.Command) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatcher: handler panicked", "command", fmt.Sprintf("%T", cmd), "panic", r)
			d.send(ipc.NewError(command.CodeInternal, fmt.Sprintf("%T: %v", cmd, r)))
		}
	}()

	switch c := cmd.(type) {
	case command.SocketConnected:
		slog.Info("dispatcher: host UI connected")
	case command.SocketDisconnected:
		slog.Info("dispatcher: host UI disconnected")

	case command.GetAvailableContent:
		d.handleGetAvailableContent()
	case command.AvailableContent:
		d.handleAvailableContent(c)
	case command.StartScreenShare:
		d.handleStartScreenShare(c)
	case command.StopScreenShare:
		d.handleStopScreenShare()
	case command.ScreenShareStateChanged:
		d.handleScreenShareStateChanged(c)
	case command.CaptureEnded:
		d.handleCaptureEnded(c)
	case command.PreviewFrame:
		d.handlePreviewFrame(c)

	case command.SendAnnotation:
		d.handleSendAnnotation(c)
	case command.DeleteAnnotation:
		d.handleDeleteAnnotation(c)
	case command.ClearAnnotations:
		d.handleClearAnnotations()
	case command.StrokeStarted:
		d.store.Start(c.StrokeID, c.ParticipantID, c.Tool, c.Color, c.Point)
		d.redraw()
	case command.StrokeUpdated:
		if d.store.Update(c.StrokeID, c.Points) {
			d.redraw()
		}
	case command.StrokeCompleted:
		if d.store.Complete(c.StrokeID) {
			d.redraw()
		}
	case command.StrokeDeleted:
		if d.store.Delete(c.StrokeID) {
			d.redraw()
		}
	case command.AnnotationsCleared:
		d.store.Clear()
		d.redraw()

	case command.CursorMove:
		d.broadcast(annotation.NewCursorMove(c.X, c.Y, true), false)
	case command.CursorHide:
		d.broadcast(annotation.NewCursorMove(0, 0, false), false)
	case command.RemoteCursorMoved:
		d.handleRemoteCursor(c)

	case command.JoinRoom:
		d.handleJoinRoom(c)
	case command.LeaveRoom:
		d.handleLeaveRoom()
	case command.RoomConnected:
		d.handleRoomConnected(c)
	case command.RoomJoinFailed:
		d.handleRoomJoinFailed(c)
	case command.RoomDisconnected:
		d.handleRoomDisconnected(c)
	case command.ConnectionStateChanged:
		d.setConnectionState(c.State)
	case command.ParticipantJoined:
		d.handleParticipantJoined(c.Participant)
	case command.ParticipantLeft:
		d.handleParticipantLeft(c.ParticipantID)
	case command.DataReceived:
		d.handleDataReceived(c)

	case command.SetMicMuted:
		d.handleSetMicMuted(c)
	case command.SetCameraEnabled:
		d.cameraEnabled = c.Enabled
		slog.Info("dispatcher: camera toggled", "enabled", c.Enabled)
	case command.SetAudioInputDevice:
		d.audioDevice = c.DeviceID
		slog.Info("dispatcher: audio input selected", "device", c.DeviceID)
	case command.SetVideoInputDevice:
		d.videoDevice = c.DeviceID
		slog.Info("dispatcher: video input selected", "device", c.DeviceID)

	case command.CheckPermissions:
		d.send(ipc.NewPermissionState(d.permissions.Check()))
	case command.RequestScreenRecordingPermission:
		d.send(ipc.NewPermissionState(d.permissions.RequestScreenRecording()))

	case command.Ping:
		d.send(ipc.NewPong())
	case command.Error:
		slog.Error("dispatcher: error", "code", c.Code, "message", c.Message)
		d.send(ipc.NewError(c.Code, c.Message))

	default:
		slog.Warn("dispatcher: unhandled command", "command", fmt.Sprintf("%T", c))
	}
}

func (d *Dispatcher) send(msg ipc.Message) {
	if d.ipc == nil {
		return
	}
	d.ipc.TrySend(msg)
}

// fail reports err to the host UI as an Error command
func (d *Dispatcher) fail(code string, err error) {
	d.Submit(command.Error{Code: code, Message: err.Error()})
}

func (d *Dispatcher) localID() string {
	if d.conn != nil {
		return d.conn.Local().ID
	}
	return "local"
}

func (d *Dispatcher) shutdown() {
	slog.Info("dispatcher: shutting down")
	if d.sharing || d.track != nil {
		d.capture.Stop()
		d.unpublish()
		d.sharing = false
	}
	if d.joinCancel != nil {
		d.joinCancel()
		d.joinCancel = nil
	}
	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			slog.Warn("dispatcher: close room connection", "error", err)
		}
		d.conn = nil
	}
	d.hideOverlay()
}

func (d *Dispatcher) handleSetMicMuted(c command.SetMicMuted) {
	d.micMuted = c.Muted
	slog.Info("dispatcher: microphone toggled", "muted", c.Muted)
	if d.conn == nil {
		return
	}
	if err := d.conn.SetMicrophoneEnabled(!c.Muted); err != nil {
		d.fail(command.CodeMediaToggleFailed, fmt.Errorf("set microphone: %w", err))
	}
}
