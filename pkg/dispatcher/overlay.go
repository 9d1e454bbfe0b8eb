package dispatcher

import (
	"image"
	"log/slog"
	"sync"

	"example.com/sharecore/pkg/annotation"
)

// RemoteCursor is a remote participant's pointer over the shared source
type RemoteCursor struct {
	ParticipantID string
	X             float64
	Y             float64
	Visible       bool
	Color         annotation.Color
}

// Overlay draws annotations and cursors above the shared source.
// It is called only from the dispatch loop.
type Overlay interface {
	Show(bounds image.Rectangle)
	Hide()
	Redraw(strokes []annotation.Stroke, cursors []RemoteCursor)
}

// LogOverlay records overlay requests for hosts that draw the overlay
// themselves from IPC state
type LogOverlay struct {
	mu      sync.Mutex
	visible bool
	bounds  image.Rectangle
	strokes int
	cursors int
	redraws int
}

func NewLogOverlay() *LogOverlay {
	return &LogOverlay{}
}

func (o *LogOverlay) Show(bounds image.Rectangle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.visible = true
	o.bounds = bounds
	slog.Info("overlay: shown", "bounds", bounds.String())
}

func (o *LogOverlay) Hide() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.visible {
		return
	}
	o.visible = false
	slog.Info("overlay: hidden")
}

func (o *LogOverlay) Redraw(strokes []annotation.Stroke, cursors []RemoteCursor) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.strokes = len(strokes)
	o.cursors = len(cursors)
	o.redraws++
	slog.Debug("overlay: redraw", "strokes", len(strokes), "cursors", len(cursors))
}

// Visible reports whether the overlay is shown and over which bounds
func (o *LogOverlay) Visible() (bool, image.Rectangle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible, o.bounds
}

// Redraws returns the number of redraw requests
func (o *LogOverlay) Redraws() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.redraws
}
