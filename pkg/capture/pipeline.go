package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Options tunes enumeration, the capture loop and recovery
type Options struct {
	FrameInterval    time.Duration // capture tick (default: 22ms)
	Policy           Policy
	RestartDelay     time.Duration // pause before re-acquiring a source (default: 200ms)
	RestartRetries   int           // re-acquire attempts per restart (default: 5)
	RetryDelay       time.Duration // pause between re-acquire attempts (default: 100ms)
	EnumerateTimeout time.Duration // total thumbnail budget (default: 10s)
	ThumbnailPoll    time.Duration // poll interval while waiting for a thumbnail frame (default: 16ms)
	ThumbnailWidth   int
	ThumbnailHeight  int
	ThumbnailQuality int
	PreviewInterval  time.Duration // 0 disables local preview frames
	PreviewWidth     int
	PreviewHeight    int
}

// DefaultOptions returns the default pipeline tuning
func DefaultOptions() Options {
	return Options{
		FrameInterval:    22 * time.Millisecond,
		Policy:           DefaultPolicy(),
		RestartDelay:     200 * time.Millisecond,
		RestartRetries:   5,
		RetryDelay:       100 * time.Millisecond,
		EnumerateTimeout: 10 * time.Second,
		ThumbnailPoll:    16 * time.Millisecond,
		ThumbnailWidth:   320,
		ThumbnailHeight:  180,
		ThumbnailQuality: 75,
		PreviewWidth:     640,
		PreviewHeight:    360,
	}
}

// Validate checks the options before any worker uses them
func (o Options) Validate() error {
	switch {
	case o.FrameInterval <= 0:
		return fmt.Errorf("%w: frame interval %v", ErrInvalidConfig, o.FrameInterval)
	case o.Policy.PermanentThreshold <= 0:
		return fmt.Errorf("%w: permanent threshold %d", ErrInvalidConfig, o.Policy.PermanentThreshold)
	case o.Policy.MaxRestarts < 0:
		return fmt.Errorf("%w: max restarts %d", ErrInvalidConfig, o.Policy.MaxRestarts)
	case o.RestartRetries <= 0:
		return fmt.Errorf("%w: restart retries %d", ErrInvalidConfig, o.RestartRetries)
	case o.RestartDelay < 0 || o.RetryDelay < 0:
		return fmt.Errorf("%w: negative restart delay", ErrInvalidConfig)
	case o.EnumerateTimeout <= 0:
		return fmt.Errorf("%w: enumerate timeout %v", ErrInvalidConfig, o.EnumerateTimeout)
	case o.ThumbnailPoll <= 0:
		return fmt.Errorf("%w: thumbnail poll %v", ErrInvalidConfig, o.ThumbnailPoll)
	case o.ThumbnailWidth <= 0 || o.ThumbnailHeight <= 0:
		return fmt.Errorf("%w: thumbnail size %dx%d", ErrInvalidConfig, o.ThumbnailWidth, o.ThumbnailHeight)
	case o.ThumbnailQuality < 1 || o.ThumbnailQuality > 100:
		return fmt.Errorf("%w: thumbnail quality %d", ErrInvalidConfig, o.ThumbnailQuality)
	case o.PreviewInterval < 0:
		return fmt.Errorf("%w: preview interval %v", ErrInvalidConfig, o.PreviewInterval)
	case o.PreviewInterval > 0 && (o.PreviewWidth <= 0 || o.PreviewHeight <= 0):
		return fmt.Errorf("%w: preview size %dx%d", ErrInvalidConfig, o.PreviewWidth, o.PreviewHeight)
	}
	return nil
}

// FrameSink receives converted frames from the capture worker
type FrameSink interface {
	WriteFrame(frame *image.YCbCr, timestamp time.Duration) error
}

// Listener receives notifications from the capture worker goroutine.
// Implementations must not block.
type Listener interface {
	// SessionEnded is called once when a session ends without Stop being
	// called. sessionID is the id Start returned. err is nil when the OS or
	// user ended the capture and wraps ErrRestartFailed when recovery gave up.
	SessionEnded(sessionID, sourceID string, err error)
	// PreviewFrame delivers a downscaled JPEG of the current frame
	PreviewFrame(sourceID string, jpeg []byte, width, height int)
}

// Stats is a snapshot of the active session
type Stats struct {
	SessionID string
	SourceID  string
	Target    Config
	Phase     Phase
	Frames    uint64
	FPS       float64
	Transient int
	Permanent int
	Restarts  int
	Width     int
	Height    int
}

// Pipeline enumerates sources and runs at most one capture session
type Pipeline struct {
	backend  Backend
	opts     Options
	listener Listener

	mu      sync.Mutex
	session *session
}

// NewPipeline creates a capture pipeline. listener may be nil.
func NewPipeline(backend Backend, opts Options, listener Listener) *Pipeline {
	return &Pipeline{
		backend:  backend,
		opts:     opts,
		listener: listener,
	}
}

// Enumerate lists sources and renders a thumbnail for each on its own
// goroutine. It waits at most EnumerateTimeout in total; sources whose
// thumbnail failed or did not finish in time are returned without one.
func (p *Pipeline) Enumerate(ctx context.Context) ([]SourceDescriptor, error) {
	if err := p.opts.Validate(); err != nil {
		return nil, err
	}
	cctx, err := p.backend.Open()
	if err != nil {
		return nil, fmt.Errorf("open capture context: %w", err)
	}
	sources, err := cctx.Sources()
	cctx.Close()
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	descriptors := make([]SourceDescriptor, len(sources))
	for i, src := range sources {
		descriptors[i] = Describe(src)
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.EnumerateTimeout)
	defer cancel()

	type result struct {
		index int
		thumb string
	}
	results := make(chan result, len(sources))

	for i, src := range sources {
		go func(i int, src Source) {
			thumb, err := p.thumbnail(ctx, src)
			if err != nil {
				slog.Warn("capture: thumbnail failed", "source", src.ID(), "error", err)
			}
			results <- result{index: i, thumb: thumb}
		}(i, src)
	}

	for pending := len(sources); pending > 0; pending-- {
		select {
		case r := <-results:
			descriptors[r.index].Thumbnail = r.thumb
		case <-ctx.Done():
			slog.Warn("capture: enumeration timed out, returning partial thumbnails", "missing", pending)
			return descriptors, nil
		}
	}

	slog.Info("capture: enumerated sources", "count", len(descriptors))
	return descriptors, nil
}

func (p *Pipeline) thumbnail(ctx context.Context, src Source) (string, error) {
	cctx, _, err := findSource(p.backend, src.NativeID)
	if err != nil {
		return "", err
	}
	defer cctx.Close()

	ticker := time.NewTicker(p.opts.ThumbnailPoll)
	defer ticker.Stop()

	for {
		img, err := cctx.Capture()
		if err == nil {
			return Thumbnail(img, p.opts.ThumbnailWidth, p.opts.ThumbnailHeight, p.opts.ThumbnailQuality)
		}
		if Classify(err) == ClassPermanent || errors.Is(err, ErrUserStopped) {
			return "", err
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// Start stops any running session and starts capturing sourceID. Frames are
// written to sink when it is non-nil. It returns the new session's id, which
// the listener reports back when the session ends on its own.
func (p *Pipeline) Start(sourceID string, sourceType SourceType, cfg Config, sink FrameSink) (string, error) {
	p.Stop()

	if err := p.opts.Validate(); err != nil {
		return "", err
	}
	if sourceType == SourceWindow {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedSource, sourceType)
	}
	nativeID, err := ParseSourceID(sourceID)
	if err != nil {
		return "", err
	}

	cctx, src, err := findSource(p.backend, nativeID)
	if err != nil {
		return "", err
	}

	s := &session{
		id:       uuid.NewString(),
		source:   src,
		config:   cfg,
		backend:  p.backend,
		opts:     p.opts,
		listener: p.listener,
		sink:     sink,
		cctx:     cctx,
		recovery: NewRecovery(p.opts.Policy),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	p.mu.Lock()
	p.session = s
	p.mu.Unlock()

	slog.Info("capture: session started",
		"session", s.id,
		"source", sourceID,
		"target_width", cfg.Width,
		"target_height", cfg.Height,
	)
	go s.run()
	return s.id, nil
}

// Stop signals the active session and waits for its worker to exit.
// It is safe to call when nothing is running.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	s := p.session
	p.session = nil
	p.mu.Unlock()

	if s == nil {
		return
	}
	s.signalStop()
	<-s.done

	stats := s.snapshot()
	slog.Info("capture: session stopped",
		"session", s.id,
		"source", stats.SourceID,
		"frames", stats.Frames,
		"restarts", stats.Restarts,
	)
}

// Active returns the source id of the running session, if any
func (p *Pipeline) Active() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return "", false
	}
	select {
	case <-p.session.done:
		return "", false
	default:
		return p.session.source.ID(), true
	}
}

// Stats returns a snapshot of the active session
func (p *Pipeline) Stats() (Stats, bool) {
	p.mu.Lock()
	s := p.session
	p.mu.Unlock()
	if s == nil {
		return Stats{}, false
	}
	return s.snapshot(), true
}
