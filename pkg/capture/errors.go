package capture

import (
	"errors"
	"strings"
)

var (
	// ErrTemporary marks a frame failure where the next tick is expected to succeed
	ErrTemporary = errors.New("capture: temporary failure")
	// ErrPermanent marks a frame failure that will repeat until the source is re-acquired
	ErrPermanent = errors.New("capture: permanent failure")
	// ErrUserStopped is returned by a backend when the OS or user ended the capture
	ErrUserStopped = errors.New("capture: stopped by user")
	// ErrSourceNotFound is returned when a source id is not among the enumerated sources
	ErrSourceNotFound = errors.New("capture: source not found")
	// ErrUnsupportedSource is returned for source types the backend cannot capture
	ErrUnsupportedSource = errors.New("capture: unsupported source type")
	// ErrRestartFailed is reported once when a session gives up recovering
	ErrRestartFailed = errors.New("capture: restart failed")
	// ErrInvalidConfig is returned for capture settings that cannot run
	ErrInvalidConfig = errors.New("capture: invalid config")
)

// ErrorClass is the recovery classification of a frame error
type ErrorClass int

const (
	// ClassTransient errors are counted and otherwise ignored
	ClassTransient ErrorClass = iota
	// ClassPermanent errors count toward a restart
	ClassPermanent
)

// String returns a human-readable name for the class
func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Classify decides whether a frame error is transient or permanent.
//
// Backends should wrap ErrTemporary or ErrPermanent. Errors that carry
// neither are classified from their message and default to permanent.
func Classify(err error) ErrorClass {
	switch {
	case errors.Is(err, ErrTemporary):
		return ClassTransient
	case errors.Is(err, ErrPermanent), errors.Is(err, ErrSourceNotFound):
		return ClassPermanent
	}

	msg := strings.ToLower(err.Error())
	for _, keyword := range transientKeywords {
		if strings.Contains(msg, keyword) {
			return ClassTransient
		}
	}
	return ClassPermanent
}

var transientKeywords = []string{
	"timeout",
	"timed out",
	"try again",
	"temporarily",
	"busy",
	"no frame",
	"would block",
}
