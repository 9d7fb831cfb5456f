package core

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/capture"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/config"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/dispatch"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/store"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/types"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.InstanceID = "pipeline-test"
	cfg.ShutdownTimeoutS = 2
	cfg.Camera.QuickRetries = 2
	cfg.Camera.QuickRetryDelayMS = 1
	cfg.Camera.LongRetryIntervalS = 1
	cfg.Pipeline.TargetRateHz = 200
	cfg.Pipeline.FaultPauseMS = 1
	cfg.Posture.AngleThresholdDeg = 15
	cfg.Alert.ThresholdS = 600
	cfg.Alert.CooldownS = 300
	cfg.Viewer.RelayTimeoutMS = 50
	return cfg
}

// detectorFunc adapts a function to the Detector interface.
type detectorFunc func(types.Frame) (types.Estimation, error)

func (f detectorFunc) Detect(frame types.Frame) (types.Estimation, error) { return f(frame) }

// recordSink collects published events for assertions.
type recordSink struct {
	mu     sync.Mutex
	events []types.Event
}

func (s *recordSink) Publish(e types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordSink) byType(eventType string) []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Event
	for _, e := range s.events {
		if e.Type() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// uprightEstimation returns a confident detection with a vertical torso.
func uprightEstimation() types.Estimation {
	set := make(types.LandmarkSet, types.LandmarkCount)
	set[types.LandmarkLeftShoulder] = types.Landmark{X: 0.4, Y: 0.3, Visibility: 0.9}
	set[types.LandmarkRightShoulder] = types.Landmark{X: 0.6, Y: 0.3, Visibility: 0.9}
	set[types.LandmarkLeftHip] = types.Landmark{X: 0.42, Y: 0.6, Visibility: 0.9}
	set[types.LandmarkRightHip] = types.Landmark{X: 0.58, Y: 0.6, Visibility: 0.9}
	return types.Estimation{Landmarks: set, UserPresent: true, Confidence: 0.95}
}

// leaningEstimation returns a detection whose torso leans well past the
// classification threshold.
func leaningEstimation() types.Estimation {
	set := make(types.LandmarkSet, types.LandmarkCount)
	set[types.LandmarkLeftShoulder] = types.Landmark{X: 0.1, Y: 0.3, Visibility: 0.9}
	set[types.LandmarkRightShoulder] = types.Landmark{X: 0.3, Y: 0.3, Visibility: 0.9}
	set[types.LandmarkLeftHip] = types.Landmark{X: 0.52, Y: 0.6, Visibility: 0.9}
	set[types.LandmarkRightHip] = types.Landmark{X: 0.68, Y: 0.6, Visibility: 0.9}
	return types.Estimation{Landmarks: set, UserPresent: true, Confidence: 0.95}
}

// startPipeline runs p in the background and returns a stop function
// that shuts it down with a bounded wait.
func startPipeline(t *testing.T, p *Pipeline) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	var once sync.Once
	return func() {
		once.Do(func() {
			sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer scancel()
			if err := p.Shutdown(sctx); err != nil {
				t.Errorf("shutdown: %v", err)
			}
			cancel()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Error("Run did not return after shutdown")
			}
		})
	}
}

func TestPipelineProducesSnapshots(t *testing.T) {
	src := capture.NewMockSource(64, 48)
	sink := &recordSink{}
	p, err := NewPipeline(testConfig(), Deps{
		Source:   src,
		Detector: detectorFunc(func(types.Frame) (types.Estimation, error) { return uprightEstimation(), nil }),
		Sink:     sink,
		Encode:   func(types.Frame) ([]byte, error) { return []byte{0xff, 0xd8}, nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	stop := startPipeline(t, p)
	defer stop()

	viewer, err := p.Distributor().Attach("test-viewer")
	if err != nil {
		t.Fatal(err)
	}
	defer viewer.Close()

	snap, ok := waitForSnapshot(viewer, time.Second)
	if !ok {
		t.Fatal("no snapshot within deadline")
	}
	if snap.Posture != types.PostureGood {
		t.Errorf("posture = %s, want good", snap.Posture)
	}
	if !snap.UserPresent {
		t.Error("expected user_present")
	}
	if len(snap.FrameJPEG) == 0 {
		t.Error("expected encoded frame bytes")
	}
	if snap.CameraState != types.CameraConnected {
		t.Errorf("camera state = %s, want connected", snap.CameraState)
	}
	if snap.TraceID == "" {
		t.Error("expected trace id on snapshot")
	}
}

func waitForSnapshot(v *dispatch.Viewer, deadline time.Duration) (types.Snapshot, bool) {
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if snap, ok := v.Receive(100 * time.Millisecond); ok {
			return snap, true
		}
	}
	return types.Snapshot{}, false
}

func TestDetectorFaultDoesNotStopWorker(t *testing.T) {
	src := capture.NewMockSource(64, 48)
	var calls atomic.Uint64
	det := detectorFunc(func(types.Frame) (types.Estimation, error) {
		if calls.Add(1) <= 3 {
			return types.Estimation{}, errors.New("inference backend unavailable")
		}
		return uprightEstimation(), nil
	})
	p, err := NewPipeline(testConfig(), Deps{Source: src, Detector: det})
	if err != nil {
		t.Fatal(err)
	}
	stop := startPipeline(t, p)
	defer stop()

	viewer, err := p.Distributor().Attach("fault-viewer")
	if err != nil {
		t.Fatal(err)
	}
	defer viewer.Close()

	if _, ok := waitForSnapshot(viewer, 2*time.Second); !ok {
		t.Fatal("worker did not recover from detector faults")
	}
	if got := atomic.LoadUint64(&p.faults); got < 3 {
		t.Errorf("faults = %d, want >= 3", got)
	}
}

func TestHardwareFaultTriggersRecovery(t *testing.T) {
	diag := &capture.Diagnostic{
		Reason: capture.FaultDriverMalfunction,
		Device: "/dev/video9",
		Cause:  errors.New("read frozen"),
	}
	src := capture.NewMockSource(64, 48,
		capture.MockStep{OK: true},
		capture.MockStep{Err: diag},
	)
	sink := &recordSink{}
	p, err := NewPipeline(testConfig(), Deps{
		Source:   src,
		Detector: detectorFunc(func(types.Frame) (types.Estimation, error) { return uprightEstimation(), nil }),
		Sink:     sink,
	})
	if err != nil {
		t.Fatal(err)
	}
	stop := startPipeline(t, p)
	defer stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sink.byType("camera_status")) >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	transitions := sink.byType("camera_status")
	if len(transitions) < 2 {
		t.Fatalf("camera_status events = %d, want >= 2 (degraded then connected)", len(transitions))
	}
	first := transitions[0].(types.CameraStatusEvent)
	if first.State != "degraded" {
		t.Errorf("first transition = %s, want degraded", first.State)
	}
}

func TestConsecutiveEmptyReadsDriveRecovery(t *testing.T) {
	// The device dies silently: reads keep returning no frame with no
	// error. The health machine must notice and run the retry ladder.
	script := make([]capture.MockStep, 5)
	src := capture.NewMockSource(64, 48, script...)
	sink := &recordSink{}
	p, err := NewPipeline(testConfig(), Deps{
		Source:   src,
		Detector: detectorFunc(func(types.Frame) (types.Estimation, error) { return uprightEstimation(), nil }),
		Sink:     sink,
	})
	if err != nil {
		t.Fatal(err)
	}
	stop := startPipeline(t, p)
	defer stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sink.byType("camera_status")) >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	transitions := sink.byType("camera_status")
	if len(transitions) < 2 {
		t.Fatalf("camera_status events = %d, want >= 2", len(transitions))
	}
	if got := transitions[0].(types.CameraStatusEvent).State; got != "degraded" {
		t.Errorf("first transition = %s, want degraded", got)
	}
	if got := transitions[len(transitions)-1].(types.CameraStatusEvent).State; got != "connected" {
		t.Errorf("last transition = %s, want connected", got)
	}

	viewer, err := p.Distributor().Attach("recovery-viewer")
	if err != nil {
		t.Fatal(err)
	}
	defer viewer.Close()
	if _, ok := waitForSnapshot(viewer, 2*time.Second); !ok {
		t.Fatal("no snapshot after recovery")
	}
}

func TestJournalRecordsPostureChanges(t *testing.T) {
	journal, err := store.Open(filepath.Join(t.TempDir(), "posture.log"))
	if err != nil {
		t.Fatal(err)
	}

	src := capture.NewMockSource(64, 48)
	var calls atomic.Uint64
	det := detectorFunc(func(types.Frame) (types.Estimation, error) {
		if calls.Add(1) <= 5 {
			return uprightEstimation(), nil
		}
		return leaningEstimation(), nil
	})
	p, err := NewPipeline(testConfig(), Deps{Source: src, Detector: det, Journal: journal})
	if err != nil {
		t.Fatal(err)
	}
	stop := startPipeline(t, p)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if journal.Stats().Appends >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	stop()

	// unknown -> good on the first cycle, good -> bad once the detector
	// switches. Steady cycles in between append nothing.
	appends := journal.Stats().Appends
	if appends != 2 {
		t.Errorf("journal appends = %d, want 2", appends)
	}
}

func TestPauseAndResumeEmitMonitoringStatus(t *testing.T) {
	src := capture.NewMockSource(64, 48)
	sink := &recordSink{}
	p, err := NewPipeline(testConfig(), Deps{
		Source:   src,
		Detector: detectorFunc(func(types.Frame) (types.Estimation, error) { return uprightEstimation(), nil }),
		Sink:     sink,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Pause(); err != nil {
		t.Fatal(err)
	}
	if err := p.Resume(); err != nil {
		t.Fatal(err)
	}

	events := sink.byType("monitoring_status")
	if len(events) != 2 {
		t.Fatalf("monitoring_status events = %d, want 2", len(events))
	}
	paused := events[0].(types.MonitoringStatusEvent)
	if paused.Active {
		t.Error("first event should report inactive monitoring")
	}
	resumed := events[1].(types.MonitoringStatusEvent)
	if !resumed.Active {
		t.Error("second event should report active monitoring")
	}
}

func TestGetStatusReportsComponentState(t *testing.T) {
	src := capture.NewMockSource(64, 48)
	p, err := NewPipeline(testConfig(), Deps{
		Source:   src,
		Detector: detectorFunc(func(types.Frame) (types.Estimation, error) { return uprightEstimation(), nil }),
	})
	if err != nil {
		t.Fatal(err)
	}
	stop := startPipeline(t, p)
	defer stop()

	status := p.getStatus()
	if status["instance_id"] != "pipeline-test" {
		t.Errorf("instance_id = %v", status["instance_id"])
	}
	if status["running"] != true {
		t.Errorf("running = %v, want true", status["running"])
	}
	if _, ok := status["camera"].(map[string]interface{}); !ok {
		t.Error("expected camera sub-map")
	}
	if _, ok := status["monitoring"]; !ok {
		t.Error("expected monitoring section")
	}
}

func TestShutdownIsIdempotentAndReleasesSource(t *testing.T) {
	src := capture.NewMockSource(64, 48)
	p, err := NewPipeline(testConfig(), Deps{
		Source:   src,
		Detector: detectorFunc(func(types.Frame) (types.Estimation, error) { return uprightEstimation(), nil }),
	})
	if err != nil {
		t.Fatal(err)
	}
	stop := startPipeline(t, p)
	stop()

	if src.ReleaseCalls < 1 {
		t.Error("source was not released")
	}
	if p.running.Load() {
		t.Error("pipeline still marked running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Errorf("second shutdown: %v", err)
	}
}

func TestRunRejectsSecondStart(t *testing.T) {
	src := capture.NewMockSource(64, 48)
	p, err := NewPipeline(testConfig(), Deps{
		Source:   src,
		Detector: detectorFunc(func(types.Frame) (types.Estimation, error) { return uprightEstimation(), nil }),
	})
	if err != nil {
		t.Fatal(err)
	}
	stop := startPipeline(t, p)
	defer stop()

	if err := p.Run(context.Background()); err == nil {
		t.Error("second Run should fail while the first is active")
	}
}

func TestEncodeFaultIsProcessingFault(t *testing.T) {
	src := capture.NewMockSource(64, 48)
	p, err := NewPipeline(testConfig(), Deps{
		Source:   src,
		Detector: detectorFunc(func(types.Frame) (types.Estimation, error) { return uprightEstimation(), nil }),
		Encode:   func(types.Frame) ([]byte, error) { return nil, errors.New("encoder out of memory") },
	})
	if err != nil {
		t.Fatal(err)
	}
	stop := startPipeline(t, p)
	defer stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadUint64(&p.faults) >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := atomic.LoadUint64(&p.faults); got < 2 {
		t.Fatalf("faults = %d, want >= 2 (worker should survive encode errors)", got)
	}
	if !p.running.Load() {
		t.Error("worker stopped on processing fault")
	}
}
