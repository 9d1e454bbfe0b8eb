// Package permissions reports the OS capture/media permission state.
package permissions

import (
	"log/slog"
	"os"
	"runtime"
	"strings"
)

// Status is the state of one permission
type Status string

const (
	Granted       Status = "granted"
	Denied        Status = "denied"
	NotDetermined Status = "not_determined"
	Restricted    Status = "restricted"
	NotApplicable Status = "not_applicable"
)

// State is the permission snapshot reported to the host UI
type State struct {
	ScreenRecording Status `json:"screen_recording"`
	Microphone      Status `json:"microphone"`
	Camera          Status `json:"camera"`
	Accessibility   Status `json:"accessibility"`
}

// Checker reads permission state from the environment
type Checker struct {
	goos   string
	getenv func(string) string
}

// NewChecker returns a checker for the running OS
func NewChecker() *Checker {
	return &Checker{goos: runtime.GOOS, getenv: os.Getenv}
}

// Check returns the current permission state
func (c *Checker) Check() State {
	switch c.goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return State{
			ScreenRecording: c.unixScreenRecording(),
			Microphone:      NotApplicable,
			Camera:          NotApplicable,
			Accessibility:   NotApplicable,
		}
	default:
		// macOS and Windows prompts belong to the host UI; until it reports
		// back we cannot know the answer.
		return State{
			ScreenRecording: NotDetermined,
			Microphone:      NotDetermined,
			Camera:          NotDetermined,
			Accessibility:   NotDetermined,
		}
	}
}

// RequestScreenRecording asks for screen recording access. There is no
// prompt this process can raise itself, so it re-checks and returns the result.
func (c *Checker) RequestScreenRecording() State {
	state := c.Check()
	slog.Info("permissions: screen recording requested", "state", state.ScreenRecording)
	return state
}

// Wayland requires the desktop portal to grant each capture; X11 does not gate it.
func (c *Checker) unixScreenRecording() Status {
	if c.getenv("WAYLAND_DISPLAY") != "" || strings.EqualFold(c.getenv("XDG_SESSION_TYPE"), "wayland") {
		return NotDetermined
	}
	if c.getenv("DISPLAY") != "" {
		return Granted
	}
	return NotDetermined
}
