// Package core owns the monitoring pipeline: one worker loop driving
// capture, pose estimation, posture classification, alert tracking,
// camera health, and snapshot distribution.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/alert"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/camhealth"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/capture"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/config"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/dispatch"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/liveness"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/posture"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/store"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/types"
)

// consecutiveMissLimit is how many empty reads in a row count as a
// camera failure. At 10 Hz this notices a dead device within ~300 ms
// without reopening on a single late frame.
const consecutiveMissLimit = 3

// Pipeline is the monitoring supervisor. One instance owns the source,
// the worker loop, and every downstream component; nothing here is a
// process-wide singleton.
type Pipeline struct {
	cfg *config.Config

	source     capture.Source
	detector   Detector
	classifier *posture.Classifier
	tracker    *alert.Tracker
	health     *camhealth.Monitor
	dist       *dispatch.Distributor
	journal    *store.Journal
	sink       EventSink
	live       *liveness.Reporter
	render     RenderFunc
	encode     EncodeFunc
	clk        clock.Clock

	running atomic.Bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	httpSrv *http.Server

	mu          sync.Mutex
	started     time.Time
	lastPosture types.Posture

	// misses counts consecutive empty reads. Worker-only.
	misses int

	cycles uint64
	faults uint64
}

// Deps bundles the pipeline's collaborators.
type Deps struct {
	Source   capture.Source
	Detector Detector
	Sink     EventSink
	Journal  *store.Journal // nil disables persistence
	Live     *liveness.Reporter
	Render   RenderFunc
	Encode   EncodeFunc
	Clock    clock.Clock
}

// NewPipeline wires a pipeline from configuration and collaborators.
func NewPipeline(cfg *config.Config, deps Deps) (*Pipeline, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if deps.Detector == nil {
		return nil, fmt.Errorf("detector is required")
	}

	p := &Pipeline{
		cfg:        cfg,
		source:     deps.Source,
		detector:   deps.Detector,
		classifier: posture.NewClassifier(cfg.Posture.AngleThresholdDeg),
		dist:       dispatch.NewDistributor(time.Duration(cfg.Viewer.RelayTimeoutMS) * time.Millisecond),
		journal:    deps.Journal,
		sink:       deps.Sink,
		live:       deps.Live,
		render:     deps.Render,
		encode:     deps.Encode,
		clk:        deps.Clock,
	}
	if p.sink == nil {
		p.sink = nopSink{}
	}
	if p.live == nil {
		p.live = &liveness.Reporter{}
	}
	if p.clk == nil {
		p.clk = clock.New()
	}

	p.tracker = alert.NewTracker(
		time.Duration(cfg.Alert.ThresholdS)*time.Second,
		time.Duration(cfg.Alert.CooldownS)*time.Second,
		alert.WithClock(p.clk),
	)

	p.health = camhealth.NewMonitor(deps.Source, camhealth.Options{
		QuickRetries: cfg.Camera.QuickRetries,
		QuickDelay:   time.Duration(cfg.Camera.QuickRetryDelayMS) * time.Millisecond,
		LongInterval: time.Duration(cfg.Camera.LongRetryIntervalS) * time.Second,
		Clock:        p.clk,
		Beat:         p.live.Beat,
		OnTransition: func(state types.CameraState, at time.Time) {
			p.emit(types.CameraStatusEvent{State: state.String(), At: at})
		},
	})

	return p, nil
}

// Distributor exposes the snapshot distributor for viewer surfaces.
func (p *Pipeline) Distributor() *dispatch.Distributor { return p.dist }

// Run opens the source and drives the worker loop until ctx is
// cancelled or Shutdown is called.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.started = p.clk.Now()
	p.lastPosture = types.PostureUnknown
	p.mu.Unlock()

	if err := p.source.Open(ctx); err != nil {
		p.running.Store(false)
		cancel()
		return fmt.Errorf("opening capture source: %w", err)
	}

	p.live.Ready()

	slog.Info("pipeline starting",
		"instance_id", p.cfg.InstanceID,
		"target_rate_hz", p.cfg.Pipeline.TargetRateHz,
	)

	p.wg.Add(1)
	go p.runWorker(ctx)

	<-ctx.Done()
	slog.Info("pipeline run loop exiting")
	return nil
}

// runWorker is the single worker loop. It is the only writer of frames,
// landmarks, camera health state, and (in the steady case) alert state.
func (p *Pipeline) runWorker(ctx context.Context) {
	defer p.wg.Done()

	interval := time.Duration(float64(time.Second) / p.cfg.Pipeline.TargetRateHz)
	ticker := p.clk.Ticker(interval)
	defer ticker.Stop()

	for p.running.Load() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		p.cycle(ctx)
		p.live.Beat()
	}
}

// cycle performs one capture -> detect -> classify -> track -> distribute
// pass. Hardware faults drive the camera health machine; processing
// faults are logged and followed by a brief pause. Neither terminates
// the worker.
func (p *Pipeline) cycle(ctx context.Context) {
	atomic.AddUint64(&p.cycles, 1)

	frame, ok, err := p.source.Read()
	switch {
	case err != nil:
		// Hardware category: recovery blocks until the camera returns
		// or shutdown begins. Liveness beats continue inside.
		frame, ok = p.health.Recover(ctx, err)
		if !ok {
			return
		}
	case !ok:
		// An empty read signals hardware failure through the boolean
		// alone. A short run is tolerated so a late frame does not
		// trigger a reopen; a sustained run drives the health machine.
		p.misses++
		if p.misses < consecutiveMissLimit {
			return
		}
		frame, ok = p.health.Recover(ctx,
			fmt.Errorf("no frame after %d consecutive reads", p.misses))
		if !ok {
			return
		}
	}
	p.misses = 0
	p.health.NoteSuccess()

	if err := p.process(frame); err != nil {
		atomic.AddUint64(&p.faults, 1)
		slog.Error("cycle processing fault",
			"error", err,
			"trace_id", frame.TraceID,
		)
		p.pauseBriefly(ctx)
	}
}

// process runs the estimation and distribution stages for one frame.
func (p *Pipeline) process(frame types.Frame) error {
	est, err := p.detector.Detect(frame)
	if err != nil {
		return fmt.Errorf("pose estimation: %w", err)
	}

	classification := p.classifier.Classify(est.Landmarks)
	outcome := p.tracker.Evaluate(classification, est.UserPresent)

	now := p.clk.Now()
	if outcome.ShouldAlert {
		slog.Info("posture alert", "duration_s", outcome.Duration)
		p.emit(types.AlertTriggeredEvent{DurationS: outcome.Duration, At: now})
	}
	if outcome.PostureCorrected {
		slog.Info("posture corrected", "previous_duration_s", outcome.PreviousDuration)
		p.emit(types.PostureCorrectedEvent{PreviousDurationS: outcome.PreviousDuration, At: now})
	}

	changed := p.journalChange(classification, est, now)

	if p.render != nil {
		frame = p.render(frame, est.Landmarks, posture.DisplayColor(classification))
	}

	var encoded []byte
	if p.encode != nil {
		encoded, err = p.encode(frame)
		if err != nil {
			return fmt.Errorf("frame encoding: %w", err)
		}
	}

	snap := types.Snapshot{
		Timestamp:   now,
		Posture:     classification,
		UserPresent: est.UserPresent,
		Confidence:  est.Confidence,
		FrameJPEG:   encoded,
		CameraState: p.health.State(),
		Alert:       outcome,
		TraceID:     frame.TraceID,
	}
	p.dist.Publish(snap)

	if changed {
		// Subscribers get the state change without the frame payload.
		snap.FrameJPEG = nil
		p.emit(types.SnapshotEvent{Snapshot: snap})
	}
	return nil
}

// journalChange appends a record when the classification differs from
// the previous cycle's. Steady state appends nothing.
func (p *Pipeline) journalChange(classification types.Posture, est types.Estimation, now time.Time) bool {
	p.mu.Lock()
	changed := classification != p.lastPosture
	p.lastPosture = classification
	p.mu.Unlock()

	if !changed || p.journal == nil {
		return changed
	}

	rec := types.PostureChangeRecord{
		Timestamp:   now,
		State:       classification.String(),
		UserPresent: est.UserPresent,
		Confidence:  est.Confidence,
		Metadata:    map[string]string{"instance_id": p.cfg.InstanceID},
	}
	if err := p.journal.Append(rec); err != nil {
		// Persistence is best-effort; the monitoring loop keeps going.
		slog.Error("posture journal append failed", "error", err)
	}
	return true
}

func (p *Pipeline) pauseBriefly(ctx context.Context) {
	pause := time.Duration(p.cfg.Pipeline.FaultPauseMS) * time.Millisecond
	if pause <= 0 {
		return
	}
	timer := p.clk.Timer(pause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (p *Pipeline) emit(event types.Event) {
	if err := p.sink.Publish(event); err != nil {
		slog.Warn("event publish failed", "type", event.Type(), "error", err)
	}
}

// Shutdown stops the worker with a bounded wait, then releases the
// capture device. Idempotent.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	if !p.running.CompareAndSwap(true, false) {
		return nil
	}

	slog.Info("pipeline shutting down")
	p.live.Stopping()

	p.mu.Lock()
	cancel := p.cancel
	started := p.started
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("worker join timed out, releasing device anyway")
	}

	if p.httpSrv != nil {
		if err := p.httpSrv.Shutdown(ctx); err != nil {
			slog.Warn("viewer server shutdown failed", "error", err)
		}
	}

	p.source.Release()
	p.dist.Close()

	if p.journal != nil {
		if err := p.journal.Close(); err != nil {
			slog.Error("journal close failed", "error", err)
		}
	}

	slog.Info("pipeline shutdown complete",
		"uptime", p.clk.Now().Sub(started),
		"cycles", atomic.LoadUint64(&p.cycles),
		"faults", atomic.LoadUint64(&p.faults),
	)
	return nil
}

// ShutdownTimeout returns the configured bounded join wait.
func (p *Pipeline) ShutdownTimeout() time.Duration {
	if p.cfg.ShutdownTimeoutS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(p.cfg.ShutdownTimeoutS) * time.Second
}
