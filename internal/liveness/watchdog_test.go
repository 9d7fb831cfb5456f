package liveness

import (
	"testing"
	"time"
)

func TestReporterDisabledWithoutSupervisor(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")

	r := NewReporter()
	if r.Enabled() {
		t.Fatal("reporter enabled without a notify socket")
	}
	if r.Interval() != 0 {
		t.Fatalf("interval = %v, want 0 when disabled", r.Interval())
	}

	// All methods must be silent no-ops.
	r.Ready()
	r.Beat()
	r.Stopping()
}

func TestIntervalStrictlyUnderHalfTimeout(t *testing.T) {
	r := &Reporter{enabled: true, interval: 30 * time.Second / 3}

	timeout := 30 * time.Second
	if r.Interval() >= timeout/2 {
		t.Fatalf("interval %v is not strictly less than half of %v", r.Interval(), timeout)
	}
}

func TestBeatRateLimited(t *testing.T) {
	r := &Reporter{enabled: false, interval: time.Hour}

	// Disabled reporter: calling Beat in a tight loop must be cheap and
	// must not panic regardless of call rate.
	for i := 0; i < 1000; i++ {
		r.Beat()
	}
}
