// Package alert implements the duration/threshold/cooldown state machine
// over the classifier's per-cycle output.
package alert

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/types"
)

// Tracker follows bad-posture duration and decides when alerts fire.
//
// The tracker moves between three states: idle, tracking (a bad period is
// being timed), and alerted (the threshold was crossed and at least one
// alert fired). Tracking state is dropped unconditionally whenever the
// user is absent, the classification is unknown, or monitoring is paused;
// no partial credit carries across an absence or pause.
//
// Evaluate is called by the worker loop; Pause, Resume and Status may be
// called from any goroutine. One mutex guards the whole field group so
// control mutations never interleave with the worker's.
type Tracker struct {
	threshold time.Duration
	cooldown  time.Duration
	clk       clock.Clock

	mu           sync.Mutex
	trackingFrom time.Time // zero when idle
	lastAlert    time.Time // zero until the first alert of a period
	paused       bool
	pauseStarted time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the wall clock, for deterministic tests.
func WithClock(clk clock.Clock) Option {
	return func(t *Tracker) { t.clk = clk }
}

// NewTracker creates a tracker with the given alert threshold and
// cooldown between consecutive alerts.
func NewTracker(threshold, cooldown time.Duration, opts ...Option) *Tracker {
	t := &Tracker{
		threshold: threshold,
		cooldown:  cooldown,
		clk:       clock.New(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Evaluate consumes one cycle's classification and returns the alert
// outcome for that cycle.
func (t *Tracker) Evaluate(classification types.Posture, userPresent bool) types.AlertOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clk.Now()

	if t.paused || !userPresent || classification == types.PostureUnknown {
		t.trackingFrom = time.Time{}
		t.lastAlert = time.Time{}
		return types.AlertOutcome{}
	}

	switch classification {
	case types.PostureBad:
		if t.trackingFrom.IsZero() {
			t.trackingFrom = now
		}
		duration := now.Sub(t.trackingFrom)
		outcome := types.AlertOutcome{
			Duration:         int(duration / time.Second),
			ThresholdReached: duration >= t.threshold,
		}
		if outcome.ThresholdReached {
			if t.lastAlert.IsZero() || now.Sub(t.lastAlert) >= t.cooldown {
				outcome.ShouldAlert = true
				t.lastAlert = now
			}
		}
		return outcome

	default: // good
		if t.trackingFrom.IsZero() {
			return types.AlertOutcome{}
		}
		previous := now.Sub(t.trackingFrom)
		t.trackingFrom = time.Time{}
		t.lastAlert = time.Time{}
		return types.AlertOutcome{
			PostureCorrected: true,
			PreviousDuration: int(previous / time.Second),
		}
	}
}

// Pause stops monitoring. Tracking state is dropped immediately and stays
// dropped until a bad observation after Resume. Idempotent.
func (t *Tracker) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.paused = true
	t.pauseStarted = t.clk.Now()
	t.trackingFrom = time.Time{}
	t.lastAlert = time.Time{}
}

// Resume re-enables monitoring. The next bad observation starts its
// duration from zero; time spent paused earns no retroactive credit.
// Idempotent.
func (t *Tracker) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.paused = false
	t.pauseStarted = time.Time{}
}

// Status describes the tracker's control state.
type Status struct {
	Active       bool          `json:"active"`
	Threshold    time.Duration `json:"-"`
	Cooldown     time.Duration `json:"-"`
	ThresholdS   int           `json:"threshold"`
	CooldownS    int           `json:"cooldown"`
	Tracking     bool          `json:"tracking"`
	DurationS    int           `json:"duration"`
	PausedSinceS int           `json:"paused_since_s,omitempty"`
}

// Status returns the current control state. Safe before the first
// Evaluate call.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clk.Now()
	s := Status{
		Active:     !t.paused,
		Threshold:  t.threshold,
		Cooldown:   t.cooldown,
		ThresholdS: int(t.threshold / time.Second),
		CooldownS:  int(t.cooldown / time.Second),
	}
	if !t.trackingFrom.IsZero() {
		s.Tracking = true
		s.DurationS = int(now.Sub(t.trackingFrom) / time.Second)
	}
	if t.paused && !t.pauseStarted.IsZero() {
		s.PausedSinceS = int(now.Sub(t.pauseStarted) / time.Second)
	}
	return s
}
