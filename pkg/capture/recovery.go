package capture

import "fmt"

// Phase is the recovery state of a capture session
type Phase int

const (
	// PhaseRunning means frames are being delivered
	PhaseRunning Phase = iota
	// PhaseDegraded means permanent errors are accumulating below the threshold
	PhaseDegraded
	// PhaseRestarting means the source is being re-acquired
	PhaseRestarting
	// PhaseTerminated means recovery gave up; no further transitions happen
	PhaseTerminated
)

// String returns a human-readable representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhaseDegraded:
		return "degraded"
	case PhaseRestarting:
		return "restarting"
	case PhaseTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Action is what the worker must do after a transition
type Action int

const (
	ActionNone Action = iota
	ActionRestart
	ActionTerminate
)

// Policy bounds the recovery state machine
type Policy struct {
	PermanentThreshold int // permanent errors before a restart (default: 3)
	MaxRestarts        int // restarts per session before giving up (default: 5)
}

// DefaultPolicy returns the default recovery bounds
func DefaultPolicy() Policy {
	return Policy{
		PermanentThreshold: 3,
		MaxRestarts:        5,
	}
}

// Recovery is the failure/recovery state of one session. Transitions are
// pure: each method returns the next state and leaves the receiver untouched.
type Recovery struct {
	Policy    Policy
	Phase     Phase
	Transient int
	Permanent int
	Restarts  int
}

// NewRecovery returns a running state with zeroed counters
func NewRecovery(policy Policy) Recovery {
	return Recovery{Policy: policy}
}

// OnSuccess records a delivered frame. Failure counters reset; the
// per-session restart count does not.
func (r Recovery) OnSuccess() Recovery {
	if r.Phase == PhaseTerminated {
		return r
	}
	r.Transient = 0
	r.Permanent = 0
	r.Phase = PhaseRunning
	return r
}

// OnTransient records a transient error. It never affects the permanent count.
func (r Recovery) OnTransient() Recovery {
	if r.Phase == PhaseTerminated {
		return r
	}
	r.Transient++
	return r
}

// OnPermanent records a permanent error and reports whether the session
// must restart or terminate.
func (r Recovery) OnPermanent() (Recovery, Action) {
	if r.Phase == PhaseTerminated || r.Phase == PhaseRestarting {
		return r, ActionNone
	}

	r.Permanent++
	if r.Permanent < r.Policy.PermanentThreshold {
		r.Phase = PhaseDegraded
		return r, ActionNone
	}

	if r.Restarts >= r.Policy.MaxRestarts {
		r.Phase = PhaseTerminated
		return r, ActionTerminate
	}

	r.Restarts++
	r.Phase = PhaseRestarting
	r.Transient = 0
	r.Permanent = 0
	return r, ActionRestart
}

// OnRestarted records a successful re-acquisition of the source
func (r Recovery) OnRestarted() Recovery {
	if r.Phase != PhaseRestarting {
		return r
	}
	r.Phase = PhaseRunning
	return r
}

// OnRestartFailed records that the source could not be re-acquired
func (r Recovery) OnRestartFailed() (Recovery, Action) {
	if r.Phase == PhaseTerminated {
		return r, ActionNone
	}
	r.Phase = PhaseTerminated
	return r, ActionTerminate
}
