// Package liveness reports heartbeats to the service supervisor so a
// hung process gets restarted instead of silently idling.
package liveness

import (
	"log/slog"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Reporter sends watchdog heartbeats to systemd. When no supervisor is
// present (no NOTIFY_SOCKET, or watchdog disabled in the unit) every
// method is a silent no-op, so the same binary runs unchanged outside
// systemd.
//
// Beat is rate-limited internally, so hot paths may call it every cycle
// without flooding the notify socket.
type Reporter struct {
	enabled  bool
	interval time.Duration

	mu       sync.Mutex
	lastBeat time.Time
}

// NewReporter probes the supervisor's watchdog configuration. The beat
// interval is a third of the supervisor timeout, comfortably under the
// strict less-than-half bound, so one delayed beat never triggers a
// restart.
func NewReporter() *Reporter {
	timeout, err := daemon.SdWatchdogEnabled(false)
	if err != nil || timeout == 0 {
		if err != nil {
			slog.Warn("watchdog probe failed, liveness reporting disabled", "error", err)
		}
		return &Reporter{}
	}

	interval := timeout / 3
	slog.Info("systemd watchdog enabled",
		"timeout", timeout,
		"beat_interval", interval,
	)
	return &Reporter{enabled: true, interval: interval}
}

// Enabled reports whether a supervisor is listening.
func (r *Reporter) Enabled() bool { return r.enabled }

// Interval returns the heartbeat interval, zero when disabled.
func (r *Reporter) Interval() time.Duration { return r.interval }

// Ready tells the supervisor startup is complete.
func (r *Reporter) Ready() {
	if !r.enabled {
		return
	}
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		slog.Warn("sd_notify ready failed", "error", err)
	}
}

// Beat sends one heartbeat if the interval has elapsed since the last.
func (r *Reporter) Beat() {
	if !r.enabled {
		return
	}

	r.mu.Lock()
	now := time.Now()
	if now.Sub(r.lastBeat) < r.interval {
		r.mu.Unlock()
		return
	}
	r.lastBeat = now
	r.mu.Unlock()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
		slog.Warn("sd_notify watchdog failed", "error", err)
	}
}

// Stopping tells the supervisor shutdown has begun, so the watchdog does
// not fire during a slow but orderly exit.
func (r *Reporter) Stopping() {
	if !r.enabled {
		return
	}
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		slog.Warn("sd_notify stopping failed", "error", err)
	}
}
