package capture

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"
)

// session is one exclusive capture run. Everything except stats is owned
// by the worker goroutine.
type session struct {
	id       string
	source   Source
	config   Config
	backend  Backend
	opts     Options
	listener Listener
	sink     FrameSink

	cctx        Context
	recovery    Recovery
	buffer      FrameBuffer
	fps         fpsCounter
	started     time.Time
	lastPreview time.Time
	sinkErrors  int

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

func (s *session) signalStop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *session) snapshot() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *session) publishStats() {
	w, h := s.buffer.Size()
	s.statsMu.Lock()
	s.stats.SessionID = s.id
	s.stats.SourceID = s.source.ID()
	s.stats.Target = s.config
	s.stats.Phase = s.recovery.Phase
	s.stats.Transient = s.recovery.Transient
	s.stats.Permanent = s.recovery.Permanent
	s.stats.Restarts = s.recovery.Restarts
	s.stats.FPS = s.fps.rate
	s.stats.Width = w
	s.stats.Height = h
	s.statsMu.Unlock()
}

func (s *session) run() {
	defer close(s.done)
	defer s.closeContext()

	s.started = time.Now()
	s.fps.reset(s.started)
	s.publishStats()

	ticker := time.NewTicker(s.opts.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		if !s.tick() {
			return
		}
		s.publishStats()
	}
}

// tick captures one frame and applies recovery. It returns false when the
// worker must exit.
func (s *session) tick() bool {
	img, err := s.cctx.Capture()
	if err == nil {
		s.recovery = s.recovery.OnSuccess()
		s.deliver(img)
		return true
	}

	if errors.Is(err, ErrUserStopped) {
		slog.Info("capture: capture ended by user", "session", s.id, "source", s.source.ID())
		s.end(nil)
		return false
	}

	if Classify(err) == ClassTransient {
		s.recovery = s.recovery.OnTransient()
		slog.Warn("capture: temporary error",
			"session", s.id,
			"source", s.source.ID(),
			"transient_count", s.recovery.Transient,
			"error", err,
		)
		return true
	}

	var action Action
	s.recovery, action = s.recovery.OnPermanent()
	slog.Error("capture: permanent error",
		"session", s.id,
		"source", s.source.ID(),
		"permanent_count", s.recovery.Permanent,
		"restarts", s.recovery.Restarts,
		"error", err,
	)

	switch action {
	case ActionRestart:
		return s.restart()
	case ActionTerminate:
		s.end(fmt.Errorf("%w: source %s exhausted %d restart attempts",
			ErrRestartFailed, s.source.ID(), s.opts.Policy.MaxRestarts))
		return false
	}
	return true
}

// restart re-acquires the source after repeated permanent errors. A stop
// signal during any wait aborts it.
func (s *session) restart() bool {
	slog.Warn("capture: restarting session",
		"session", s.id,
		"source", s.source.ID(),
		"attempt", s.recovery.Restarts,
		"max_restarts", s.opts.Policy.MaxRestarts,
	)
	s.publishStats()

	if !s.sleep(s.opts.RestartDelay) {
		return false
	}
	s.closeContext()

	for try := 1; try <= s.opts.RestartRetries; try++ {
		cctx, src, err := findSource(s.backend, s.source.NativeID)
		if err == nil {
			s.cctx = cctx
			s.source = src
			s.recovery = s.recovery.OnRestarted()
			slog.Info("capture: session restarted", "session", s.id, "source", src.ID(), "try", try)
			return true
		}

		slog.Warn("capture: restart try failed", "session", s.id, "try", try, "error", err)
		if try < s.opts.RestartRetries && !s.sleep(s.opts.RetryDelay) {
			return false
		}
	}

	s.recovery, _ = s.recovery.OnRestartFailed()
	s.end(fmt.Errorf("%w: source %s did not come back after %d tries",
		ErrRestartFailed, s.source.ID(), s.opts.RestartRetries))
	return false
}

// sleep waits for d unless the session is stopped first
func (s *session) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.stop:
		return false
	case <-timer.C:
		return true
	}
}

func (s *session) end(err error) {
	s.publishStats()
	if err != nil {
		slog.Error("capture: session terminated", "session", s.id, "source", s.source.ID(), "error", err)
	}
	if s.listener != nil {
		s.listener.SessionEnded(s.id, s.source.ID(), err)
	}
}

func (s *session) closeContext() {
	if s.cctx == nil {
		return
	}
	if err := s.cctx.Close(); err != nil {
		slog.Debug("capture: close context failed", "session", s.id, "error", err)
	}
	s.cctx = nil
}

func (s *session) deliver(img *image.RGBA) {
	if img.Rect.Empty() {
		return
	}

	now := time.Now()
	frame := s.buffer.Convert(img)
	if s.sink != nil {
		if err := s.sink.WriteFrame(frame, now.Sub(s.started)); err != nil {
			s.sinkErrors++
			if s.sinkErrors == 1 || s.sinkErrors%100 == 0 {
				slog.Warn("capture: sink write failed", "session", s.id, "count", s.sinkErrors, "error", err)
			}
		}
	}

	s.statsMu.Lock()
	s.stats.Frames++
	s.statsMu.Unlock()

	if rate, ok := s.fps.tick(now); ok {
		slog.Info("capture: fps", "session", s.id, "source", s.source.ID(), "fps", fmt.Sprintf("%.1f", rate))
	}

	if s.opts.PreviewInterval > 0 && s.listener != nil && now.Sub(s.lastPreview) >= s.opts.PreviewInterval {
		s.lastPreview = now
		data, size, err := EncodeJPEG(img, s.opts.PreviewWidth, s.opts.PreviewHeight, s.opts.ThumbnailQuality)
		if err != nil {
			slog.Debug("capture: preview encode failed", "session", s.id, "error", err)
			return
		}
		s.listener.PreviewFrame(s.source.ID(), data, size.X, size.Y)
	}
}

// fpsCounter reports the frame rate once per second
type fpsCounter struct {
	frames int
	since  time.Time
	rate   float64
}

func (f *fpsCounter) reset(now time.Time) {
	f.frames = 0
	f.since = now
}

func (f *fpsCounter) tick(now time.Time) (float64, bool) {
	f.frames++
	elapsed := now.Sub(f.since)
	if elapsed < time.Second {
		return 0, false
	}
	f.rate = float64(f.frames) / elapsed.Seconds()
	f.reset(now)
	return f.rate, true
}
