package capture

import (
	"fmt"
	"image"
	"strings"
)

const screenPrefix = "screen:"

// SourceType selects between whole-display and single-window capture
type SourceType string

const (
	SourceScreen SourceType = "screen"
	SourceWindow SourceType = "window"
)

// Source is a capturable display as reported by a backend
type Source struct {
	NativeID string
	Name     string
	Bounds   image.Rectangle
	Primary  bool
}

// ID returns the opaque source id handed to the host UI
func (s Source) ID() string {
	return screenPrefix + s.NativeID
}

// SourceDescriptor describes a source to the host UI
type SourceDescriptor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	IsPrimary bool   `json:"is_primary"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Describe builds the descriptor for a source without a thumbnail
func Describe(s Source) SourceDescriptor {
	return SourceDescriptor{
		ID:        s.ID(),
		Name:      s.Name,
		X:         s.Bounds.Min.X,
		Y:         s.Bounds.Min.Y,
		Width:     s.Bounds.Dx(),
		Height:    s.Bounds.Dy(),
		IsPrimary: s.Primary,
	}
}

// ParseSourceID extracts the native id from a "screen:<native-id>" source id
func ParseSourceID(id string) (string, error) {
	native, ok := strings.CutPrefix(id, screenPrefix)
	if !ok || native == "" {
		return "", fmt.Errorf("%w: malformed source id %q", ErrSourceNotFound, id)
	}
	return native, nil
}

// Config is the requested capture/publish configuration
type Config struct {
	Width     int `json:"width"`
	Height    int `json:"height"`
	Framerate int `json:"framerate"`
	Bitrate   int `json:"bitrate"`
}

// DefaultConfig returns 1080p at 60fps and 6 Mbps
func DefaultConfig() Config {
	return Config{
		Width:     1920,
		Height:    1080,
		Framerate: 60,
		Bitrate:   6_000_000,
	}
}

// Validate rejects non-positive dimensions, frame rate or bitrate
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	if c.Framerate <= 0 {
		return fmt.Errorf("%w: framerate %d", ErrInvalidConfig, c.Framerate)
	}
	if c.Bitrate <= 0 {
		return fmt.Errorf("%w: bitrate %d", ErrInvalidConfig, c.Bitrate)
	}
	return nil
}

// Backend opens native capture contexts
type Backend interface {
	Open() (Context, error)
}

// Context is one native capture context. It is used by a single goroutine.
type Context interface {
	// Sources lists the capturable displays
	Sources() ([]Source, error)
	// Select binds the context to one source
	Select(nativeID string) error
	// Capture grabs one frame from the selected source
	Capture() (*image.RGBA, error)
	Close() error
}

// findSource opens a context bound to nativeID
func findSource(backend Backend, nativeID string) (Context, Source, error) {
	ctx, err := backend.Open()
	if err != nil {
		return nil, Source{}, fmt.Errorf("open capture context: %w", err)
	}

	sources, err := ctx.Sources()
	if err != nil {
		ctx.Close()
		return nil, Source{}, fmt.Errorf("list sources: %w", err)
	}

	for _, src := range sources {
		if src.NativeID != nativeID {
			continue
		}
		if err := ctx.Select(nativeID); err != nil {
			ctx.Close()
			return nil, Source{}, fmt.Errorf("select source %s: %w", src.ID(), err)
		}
		return ctx, src, nil
	}

	ctx.Close()
	return nil, Source{}, fmt.Errorf("%w: %s%s", ErrSourceNotFound, screenPrefix, nativeID)
}
