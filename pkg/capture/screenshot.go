package capture

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/kbinani/screenshot"
)

// ScreenshotBackend captures whole displays through kbinani/screenshot
type ScreenshotBackend struct{}

// Open checks that at least one display is active
func (ScreenshotBackend) Open() (Context, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return nil, fmt.Errorf("%w: no active displays", ErrPermanent)
	}
	return &screenshotContext{display: -1}, nil
}

type screenshotContext struct {
	display int
}

func (c *screenshotContext) Sources() ([]Source, error) {
	n := screenshot.NumActiveDisplays()
	sources := make([]Source, 0, n)
	for i := 0; i < n; i++ {
		bounds := screenshot.GetDisplayBounds(i)
		sources = append(sources, Source{
			NativeID: strconv.Itoa(i),
			Name:     fmt.Sprintf("Display %d", i+1),
			Bounds:   bounds,
			Primary:  bounds.Min == image.Point{},
		})
	}
	return sources, nil
}

func (c *screenshotContext) Select(nativeID string) error {
	display, err := strconv.Atoi(nativeID)
	if err != nil || display < 0 || display >= screenshot.NumActiveDisplays() {
		return fmt.Errorf("%w: display %q", ErrSourceNotFound, nativeID)
	}
	c.display = display
	return nil
}

func (c *screenshotContext) Capture() (*image.RGBA, error) {
	if c.display < 0 {
		return nil, fmt.Errorf("%w: no display selected", ErrPermanent)
	}
	// A display that went to sleep or was unplugged drops out of the active set.
	if c.display >= screenshot.NumActiveDisplays() {
		return nil, fmt.Errorf("%w: display %d is no longer active", ErrPermanent, c.display)
	}

	bounds := screenshot.GetDisplayBounds(c.display)
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: display %d reports empty bounds", ErrTemporary, c.display)
	}

	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		if isPermissionError(err) {
			return nil, fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTemporary, err)
	}
	return img, nil
}

func (c *screenshotContext) Close() error {
	c.display = -1
	return nil
}

func isPermissionError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission") ||
		strings.Contains(msg, "denied") ||
		strings.Contains(msg, "not authorized")
}
