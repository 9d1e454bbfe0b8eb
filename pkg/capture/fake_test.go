package capture

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"
)

// fakeBackend is a scriptable capture backend
type fakeBackend struct {
	mu         sync.Mutex
	sources    []Source
	failSelect map[string]bool
	stall      map[string]chan struct{}
	// next returns the result of the n-th Capture call on a source (n starts at 1)
	next     func(nativeID string, n int) error
	opens    int
	captures int
	closed   int
	onError  func(b *fakeBackend)
}

func newFakeBackend(ids ...string) *fakeBackend {
	b := &fakeBackend{
		failSelect: map[string]bool{},
		stall:      map[string]chan struct{}{},
	}
	for i, id := range ids {
		b.sources = append(b.sources, Source{
			NativeID: id,
			Name:     "Display " + id,
			Bounds:   image.Rect(i*1920, 0, (i+1)*1920, 1080),
			Primary:  i == 0,
		})
	}
	return b
}

func (b *fakeBackend) Open() (Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opens++
	return &fakeContext{backend: b}, nil
}

func (b *fakeBackend) counts() (opens, captures, closed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens, b.captures, b.closed
}

type fakeContext struct {
	backend *fakeBackend
	native  string
	calls   int
}

func (c *fakeContext) Sources() ([]Source, error) {
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	return append([]Source(nil), c.backend.sources...), nil
}

func (c *fakeContext) Select(nativeID string) error {
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	if c.backend.failSelect[nativeID] {
		return fmt.Errorf("%w: cannot open display %s", ErrPermanent, nativeID)
	}
	c.native = nativeID
	return nil
}

func (c *fakeContext) Capture() (*image.RGBA, error) {
	c.backend.mu.Lock()
	stall := c.backend.stall[c.native]
	c.backend.captures++
	c.calls++
	next := c.backend.next
	n := c.calls
	c.backend.mu.Unlock()

	if stall != nil {
		<-stall
		return nil, fmt.Errorf("%w: stalled", ErrTemporary)
	}

	if next != nil {
		if err := next(c.native, n); err != nil {
			c.backend.mu.Lock()
			hook := c.backend.onError
			c.backend.mu.Unlock()
			if hook != nil {
				hook(c.backend)
			}
			return nil, err
		}
	}
	return solidFrame(64, 36, color.RGBA{R: 200, G: 100, B: 50, A: 255}), nil
}

func (c *fakeContext) Close() error {
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	c.backend.closed++
	return nil
}

func solidFrame(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// recordingListener collects session notifications
type recordingListener struct {
	mu       sync.Mutex
	sessions []string
	ended    []error
	endedCh  chan struct{}
	previews int
}

func newRecordingListener() *recordingListener {
	return &recordingListener{endedCh: make(chan struct{}, 8)}
}

func (l *recordingListener) SessionEnded(sessionID, _ string, err error) {
	l.mu.Lock()
	l.sessions = append(l.sessions, sessionID)
	l.ended = append(l.ended, err)
	l.mu.Unlock()
	l.endedCh <- struct{}{}
}

func (l *recordingListener) PreviewFrame(string, []byte, int, int) {
	l.mu.Lock()
	l.previews++
	l.mu.Unlock()
}

func (l *recordingListener) endings() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.ended...)
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.FrameInterval = time.Millisecond
	opts.RestartDelay = time.Millisecond
	opts.RetryDelay = time.Millisecond
	opts.ThumbnailPoll = time.Millisecond
	return opts
}
