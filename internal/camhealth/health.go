// Package camhealth implements fault detection and tiered reconnection
// for a capture source.
package camhealth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/capture"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/types"
)

// Monitor tracks camera health and drives recovery when reads fail.
//
// State transitions follow connected -> degraded -> disconnected ->
// (retry) -> connected. Degraded is entered only from connected, on the
// first failure; repeated failed recovery rounds re-enter disconnected
// without passing through degraded again.
//
// Recover is called only by the worker loop; State may be read from any
// goroutine.
type Monitor struct {
	src          capture.Source
	quickRetries int
	quickDelay   time.Duration
	longInterval time.Duration
	clk          clock.Clock

	onTransition func(state types.CameraState, at time.Time)
	beat         func()

	mu    sync.Mutex
	state types.CameraState
}

// Options configures a Monitor.
type Options struct {
	QuickRetries int
	QuickDelay   time.Duration
	LongInterval time.Duration

	// OnTransition is invoked once per state change, never for a
	// self-transition. Optional.
	OnTransition func(state types.CameraState, at time.Time)

	// Beat is invoked periodically while the monitor waits between
	// retries, so long disconnected stretches do not starve an external
	// liveness supervisor. Optional.
	Beat func()

	Clock clock.Clock
}

// NewMonitor creates a monitor in the connected state.
func NewMonitor(src capture.Source, opts Options) *Monitor {
	m := &Monitor{
		src:          src,
		quickRetries: opts.QuickRetries,
		quickDelay:   opts.QuickDelay,
		longInterval: opts.LongInterval,
		onTransition: opts.OnTransition,
		beat:         opts.Beat,
		clk:          opts.Clock,
		state:        types.CameraConnected,
	}
	if m.clk == nil {
		m.clk = clock.New()
	}
	if m.quickRetries <= 0 {
		m.quickRetries = 3
	}
	return m
}

// State returns the current camera health state.
func (m *Monitor) State() types.CameraState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) transition(to types.CameraState) {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.mu.Unlock()

	if from == to {
		return
	}
	slog.Info("camera health transition", "from", from, "to", to)
	if m.onTransition != nil {
		m.onTransition(to, m.clk.Now())
	}
}

// NoteSuccess records a successful read. A success while not connected
// transitions to connected regardless of which layer produced it.
func (m *Monitor) NoteSuccess() {
	m.transition(types.CameraConnected)
}

// Recover runs the reconnection ladder after a read failure and blocks
// until a frame is recovered or ctx is cancelled. The returned bool is
// false only on cancellation.
//
// One round = release + reopen + read, repeated up to the quick-retry
// budget with a short fixed delay between attempts. If the whole round
// fails the monitor goes disconnected, waits the long interval, and
// starts another round; this repeats indefinitely for retry-eligible
// faults. A fault whose diagnostic is not retry-recommended halts the
// ladder: the monitor stays disconnected with the remediation surfaced
// and attempts nothing further until an external success resets it.
func (m *Monitor) Recover(ctx context.Context, cause error) (types.Frame, bool) {
	if m.State() == types.CameraConnected {
		slog.Warn("camera read failure", "error", cause)
		m.transition(types.CameraDegraded)
	}

	for {
		frame, ok, halt := m.quickRetryRound(ctx)
		if ok {
			m.transition(types.CameraConnected)
			return frame, true
		}
		if ctx.Err() != nil {
			return types.Frame{}, false
		}

		m.transition(types.CameraDisconnected)

		if halt != nil {
			slog.Error("camera recovery halted, operator action required",
				"reason", halt.Reason,
				"device", halt.Device,
				"remediation", halt.Remediation,
			)
			// Hold disconnected, beating liveness, until shutdown or
			// until some other layer reports a working device.
			for m.State() != types.CameraConnected {
				if !m.wait(ctx, m.longInterval) {
					return types.Frame{}, false
				}
			}
			continue
		}

		if !m.wait(ctx, m.longInterval) {
			return types.Frame{}, false
		}
	}
}

// quickRetryRound attempts the bounded quick-retry cycle. Returns the
// first recovered frame, or a non-nil halt diagnostic when the fault
// cannot be retried automatically.
func (m *Monitor) quickRetryRound(ctx context.Context) (types.Frame, bool, *capture.Diagnostic) {
	for attempt := 1; attempt <= m.quickRetries; attempt++ {
		if ctx.Err() != nil {
			return types.Frame{}, false, nil
		}

		m.src.Release()
		if err := m.src.Open(ctx); err != nil {
			m.logAttemptFailure(attempt, err)
			if diag := terminalDiagnostic(err); diag != nil {
				return types.Frame{}, false, diag
			}
			if !m.wait(ctx, m.quickDelay) {
				return types.Frame{}, false, nil
			}
			continue
		}

		frame, ok, err := m.src.Read()
		if ok {
			slog.Info("camera recovered", "attempt", attempt)
			return frame, true, nil
		}
		if err != nil {
			m.logAttemptFailure(attempt, err)
			if diag := terminalDiagnostic(err); diag != nil {
				return types.Frame{}, false, diag
			}
		}
		if !m.wait(ctx, m.quickDelay) {
			return types.Frame{}, false, nil
		}
	}
	return types.Frame{}, false, nil
}

// terminalDiagnostic extracts a diagnostic that rules out automatic
// retries, or nil when retrying is worthwhile.
func terminalDiagnostic(err error) *capture.Diagnostic {
	var diag *capture.Diagnostic
	if errors.As(err, &diag) && !diag.Reason.RetryRecommended() {
		return diag
	}
	return nil
}

func (m *Monitor) logAttemptFailure(attempt int, err error) {
	var diag *capture.Diagnostic
	if errors.As(err, &diag) {
		slog.Error("camera retry attempt failed",
			"attempt", attempt,
			"max_attempts", m.quickRetries,
			"reason", diag.Reason,
			"remediation", diag.Remediation,
		)
		return
	}
	slog.Error("camera retry attempt failed",
		"attempt", attempt,
		"max_attempts", m.quickRetries,
		"error", err,
	)
}

// wait sleeps for d in short slices, invoking the liveness beat between
// slices. Returns false if ctx was cancelled.
func (m *Monitor) wait(ctx context.Context, d time.Duration) bool {
	const slice = time.Second

	for remaining := d; remaining > 0; remaining -= slice {
		if m.beat != nil {
			m.beat()
		}
		step := slice
		if remaining < slice {
			step = remaining
		}
		timer := m.clk.Timer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
	if m.beat != nil {
		m.beat()
	}
	return true
}
