package dispatcher

import (
	"context"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"example.com/sharecore/pkg/annotation"
	"example.com/sharecore/pkg/capture"
	"example.com/sharecore/pkg/command"
	"example.com/sharecore/pkg/ipc"
	"example.com/sharecore/pkg/permissions"
	"example.com/sharecore/pkg/room"
)

const waitTimeout = 2 * time.Second

type fakeSender struct {
	ch chan ipc.Message
}

func newFakeSender() *fakeSender {
	return &fakeSender{ch: make(chan ipc.Message, 256)}
}

func (s *fakeSender) TrySend(msg ipc.Message) bool {
	s.ch <- msg
	return true
}

func (s *fakeSender) next(t *testing.T) ipc.Message {
	t.Helper()
	select {
	case msg := <-s.ch:
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for outbound message")
		return nil
	}
}

// expect reads the next outbound message and asserts its type
func expect[T ipc.Message](t *testing.T, s *fakeSender) T {
	t.Helper()
	msg := s.next(t)
	got, ok := msg.(T)
	if !ok {
		var want T
		t.Fatalf("got %T %+v, want %T", msg, msg, want)
	}
	return got
}

type startCall struct {
	sourceID   string
	sourceType capture.SourceType
	config     capture.Config
	sink       capture.FrameSink
}

type fakeCapture struct {
	mu       sync.Mutex
	screens  []capture.SourceDescriptor
	enumErr  error
	startErr error
	starts   []startCall
	stops    int

	panicOnStart bool
}

func (c *fakeCapture) Enumerate(ctx context.Context) ([]capture.SourceDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screens, c.enumErr
}

// Start numbers sessions from 1: "session-1", "session-2", ...
func (c *fakeCapture) Start(sourceID string, sourceType capture.SourceType, cfg capture.Config, sink capture.FrameSink) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.panicOnStart {
		panic("capture backend exploded")
	}
	if c.startErr != nil {
		return "", c.startErr
	}
	c.starts = append(c.starts, startCall{sourceID: sourceID, sourceType: sourceType, config: cfg, sink: sink})
	return fmt.Sprintf("session-%d", len(c.starts)), nil
}

func (c *fakeCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
}

func (c *fakeCapture) snapshot() ([]startCall, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]startCall(nil), c.starts...), c.stops
}

type fakeTrack struct {
	id string
}

func (t *fakeTrack) ID() string { return t.id }

func (t *fakeTrack) WriteFrame(*image.YCbCr, time.Duration) error { return nil }

type sentData struct {
	payload  []byte
	reliable bool
}

type fakeConn struct {
	local        room.Participant
	participants []room.Participant
	publishErr   error
	events       chan room.Event
	sent         chan sentData
	closed       chan struct{}

	mu          sync.Mutex
	published   []*fakeTrack
	unpublished []string
	micEnabled  bool
	closeOnce   sync.Once
}

func newFakeConn(local room.Participant, remote ...room.Participant) *fakeConn {
	return &fakeConn{
		local:        local,
		participants: remote,
		events:       make(chan room.Event, 16),
		sent:         make(chan sentData, 64),
		closed:       make(chan struct{}),
	}
}

func (c *fakeConn) Local() room.Participant { return c.local }

func (c *fakeConn) Participants() []room.Participant { return c.participants }

func (c *fakeConn) PublishVideo(width, height int) (room.VideoTrack, error) {
	if c.publishErr != nil {
		return nil, c.publishErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	track := &fakeTrack{id: "screen-test"}
	c.published = append(c.published, track)
	return track, nil
}

func (c *fakeConn) Unpublish(track room.VideoTrack) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unpublished = append(c.unpublished, track.ID())
	return nil
}

func (c *fakeConn) SendData(payload []byte, reliable bool) error {
	c.sent <- sentData{payload: payload, reliable: reliable}
	return nil
}

func (c *fakeConn) SetMicrophoneEnabled(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.micEnabled = enabled
	return nil
}

func (c *fakeConn) Events() <-chan room.Event { return c.events }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		close(c.events)
	})
	return nil
}

func (c *fakeConn) nextSent(t *testing.T) annotation.Message {
	t.Helper()
	select {
	case d := <-c.sent:
		msg, err := annotation.Decode(d.payload)
		if err != nil {
			t.Fatalf("decode sent data: %v", err)
		}
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for sent data")
		return nil
	}
}

// fakeTransport hands out conn, or err. When gate is set, Connect waits on
// it first.
type fakeTransport struct {
	conn *fakeConn
	err  error
	gate chan struct{}
}

func (f *fakeTransport) Connect(ctx context.Context, serverURL, token string) (room.Connection, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.conn, nil
}

type redraw struct {
	strokes []annotation.Stroke
	cursors []RemoteCursor
}

type recordingOverlay struct {
	mu      sync.Mutex
	visible bool
	bounds  image.Rectangle
	redraws chan redraw
}

func newRecordingOverlay() *recordingOverlay {
	return &recordingOverlay{redraws: make(chan redraw, 256)}
}

func (o *recordingOverlay) Show(bounds image.Rectangle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.visible = true
	o.bounds = bounds
}

func (o *recordingOverlay) Hide() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.visible = false
}

func (o *recordingOverlay) Redraw(strokes []annotation.Stroke, cursors []RemoteCursor) {
	select {
	case o.redraws <- redraw{strokes: strokes, cursors: cursors}:
	default:
	}
}

func (o *recordingOverlay) state() (bool, image.Rectangle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible, o.bounds
}

// waitRedraw returns the first redraw satisfying ok
func (o *recordingOverlay) waitRedraw(t *testing.T, ok func(redraw) bool) redraw {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case r := <-o.redraws:
			if ok(r) {
				return r
			}
		case <-deadline:
			t.Fatal("timed out waiting for redraw")
			return redraw{}
		}
	}
}

type fakePermissions struct {
	state permissions.State
}

func (p fakePermissions) Check() permissions.State                  { return p.state }
func (p fakePermissions) RequestScreenRecording() permissions.State { return p.state }

type harness struct {
	d         *Dispatcher
	ipc       *fakeSender
	capture   *fakeCapture
	transport *fakeTransport
	overlay   *recordingOverlay
}

func newHarness(t *testing.T, transport *fakeTransport) *harness {
	t.Helper()
	if transport == nil {
		transport = &fakeTransport{}
	}
	h := &harness{
		ipc: newFakeSender(),
		capture: &fakeCapture{screens: []capture.SourceDescriptor{
			{ID: "screen:0", Name: "Display 1", Width: 1920, Height: 1080, IsPrimary: true},
			{ID: "screen:1", Name: "Display 2", X: 1920, Width: 1280, Height: 1024},
		}},
		transport: transport,
		overlay:   newRecordingOverlay(),
	}
	opts := DefaultOptions()
	opts.ConnectTimeout = time.Second
	h.d = New(Deps{
		IPC:         h.ipc,
		Capture:     h.capture,
		Transport:   transport,
		Overlay:     h.overlay,
		Permissions: fakePermissions{state: permissions.State{ScreenRecording: permissions.Granted}},
	}, opts)

	go h.d.Run()
	t.Cleanup(func() {
		h.d.Submit(command.Terminate{})
		select {
		case <-h.d.Done():
		case <-time.After(waitTimeout):
			t.Error("dispatcher did not terminate")
		}
	})
	return h
}

// sync waits until every command submitted so far has been handled
func (h *harness) sync(t *testing.T) {
	t.Helper()
	h.d.Submit(command.Ping{})
	for {
		if _, ok := h.ipc.next(t).(ipc.Pong); ok {
			return
		}
	}
}
