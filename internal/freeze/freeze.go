package freeze

import (
	"sync"

	"github.com/GriffinCanCode/capture-watchdog/internal/health"
)

// State is the rolling detector state.
type State struct {
	// Previous is the last content fingerprint, nil before the first sample
	// and after any non-content observation.
	Previous *health.Fingerprint
	// Streak counts the observations in the current unhealthy run.
	Streak int
}

// Verdict is the outcome of one transition.
type Verdict struct {
	Frozen bool
	Streak int
}

// Advance applies one observation. It is a pure function; threshold values
// below 1 are treated as 1.
//
// A content fingerprint that differs from the previous one (or is the
// first) starts a new run of length 1. An equal fingerprint extends the run.
// Inactive extends the run as well; Active clears it.
func Advance(s State, obs health.Observation, threshold int) (State, Verdict) {
	if threshold < 1 {
		threshold = 1
	}

	var next State
	switch obs.Kind {
	case health.KindContent:
		fp := obs.Fingerprint
		next.Previous = &fp
		if s.Previous != nil && *s.Previous == fp {
			next.Streak = s.Streak + 1
			return next, Verdict{Frozen: next.Streak >= threshold, Streak: next.Streak}
		}
		next.Streak = 1
		return next, Verdict{Streak: next.Streak}

	case health.KindInactive:
		next.Streak = s.Streak + 1
		return next, Verdict{Frozen: next.Streak >= threshold, Streak: next.Streak}

	default:
		return next, Verdict{}
	}
}

// Detector holds the state for the supervisor and exposes it to readers on
// other goroutines.
type Detector struct {
	mu        sync.Mutex
	state     State
	threshold int
}

// NewDetector creates a detector with the given identical-sample threshold.
func NewDetector(threshold int) *Detector {
	if threshold < 1 {
		threshold = 1
	}
	return &Detector{threshold: threshold}
}

// Observe advances the detector by one observation.
func (d *Detector) Observe(obs health.Observation) Verdict {
	d.mu.Lock()
	defer d.mu.Unlock()

	var v Verdict
	d.state, v = Advance(d.state, obs, d.threshold)
	return v
}

// Reset forgets the previous sample and the streak.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = State{}
}

// State returns a copy of the current state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.state
	if s.Previous != nil {
		fp := *s.Previous
		s.Previous = &fp
	}
	return s
}

// Threshold returns the configured threshold.
func (d *Detector) Threshold() int { return d.threshold }
