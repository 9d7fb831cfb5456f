package control

import (
	"testing"
	"time"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		InstanceID: "test",
		MQTT: config.MQTTConfig{
			Broker: "localhost:1883",
			Topics: config.MQTTTopics{
				Control: "deskpulse/control/test",
				Events:  "deskpulse/events/test",
				Health:  "deskpulse/health/test",
			},
			QoS: map[string]byte{"control": 1, "health": 0},
		},
	}
}

func TestHandleCommandDispatchesCallbacks(t *testing.T) {
	var paused, resumed bool
	h := NewHandler(testConfig(), nil, CommandCallbacks{
		OnGetStatus: func() map[string]interface{} {
			return map[string]interface{}{"monitoring_active": true}
		},
		OnPause:  func() error { paused = true; return nil },
		OnResume: func() error { resumed = true; return nil },
	})

	h.handleCommand(Command{Command: "pause"})
	if !paused {
		t.Fatal("pause callback not invoked")
	}

	h.handleCommand(Command{Command: "resume"})
	if !resumed {
		t.Fatal("resume callback not invoked")
	}

	// Unknown commands must not panic and must not touch callbacks.
	h.handleCommand(Command{Command: "reboot_universe"})
}

func TestHandleCommandIdempotentPause(t *testing.T) {
	calls := 0
	h := NewHandler(testConfig(), nil, CommandCallbacks{
		OnPause: func() error { calls++; return nil },
	})

	h.handleCommand(Command{Command: "pause"})
	h.handleCommand(Command{Command: "pause"})
	if calls != 2 {
		t.Fatalf("pause callback calls = %d, want 2", calls)
	}
}

func TestHandleShutdownRunsAsync(t *testing.T) {
	done := make(chan struct{})
	h := NewHandler(testConfig(), nil, CommandCallbacks{
		OnShutdown: func() error { close(done); return nil },
	})

	h.handleCommand(Command{Command: "shutdown"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown callback never ran")
	}
}

func TestHandleCommandMissingCallback(t *testing.T) {
	h := NewHandler(testConfig(), nil, CommandCallbacks{})

	// No callbacks wired: every command answers with an error response
	// instead of panicking.
	for _, name := range []string{"get_status", "pause", "resume", "shutdown"} {
		h.handleCommand(Command{Command: name})
	}
}

func TestStopRejectsLateDeliveries(t *testing.T) {
	h := NewHandler(testConfig(), nil, CommandCallbacks{
		OnPause: func() error { return nil },
	})

	if err := h.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := h.Stop(); err != nil {
		t.Fatal(err)
	}

	// A broker delivery still in flight when Stop runs must be dropped,
	// not panic the paho callback goroutine.
	h.enqueue(Command{Command: "pause"})

	select {
	case cmd := <-h.commands:
		t.Fatalf("command %q queued after stop", cmd.Command)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestStopConcurrentWithDeliveries(t *testing.T) {
	h := NewHandler(testConfig(), nil, CommandCallbacks{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			h.enqueue(Command{Command: "get_status"})
		}
	}()
	h.Stop()
	<-done
}
