package core

import (
	"sync/atomic"
	"time"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/control"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/types"
)

// Callbacks returns the control-plane wiring for this pipeline. Every
// command is idempotent and safe before the first snapshot exists.
func (p *Pipeline) Callbacks() control.CommandCallbacks {
	return control.CommandCallbacks{
		OnGetStatus: p.getStatus,
		OnPause:     p.Pause,
		OnResume:    p.Resume,
		OnShutdown:  p.shutdownViaControl,
	}
}

// Pause stops alert tracking. Capture and distribution keep running so
// viewers still see frames; only alerting goes quiet.
func (p *Pipeline) Pause() error {
	p.tracker.Pause()
	p.emitMonitoringStatus()
	return nil
}

// Resume re-enables alert tracking from a clean slate.
func (p *Pipeline) Resume() error {
	p.tracker.Resume()
	p.emitMonitoringStatus()
	return nil
}

func (p *Pipeline) emitMonitoringStatus() {
	s := p.tracker.Status()
	p.emit(types.MonitoringStatusEvent{
		Active:    s.Active,
		Threshold: s.ThresholdS,
		Cooldown:  s.CooldownS,
		At:        p.clk.Now(),
	})
}

func (p *Pipeline) getStatus() map[string]interface{} {
	trackerStatus := p.tracker.Status()
	sourceStats := p.source.Stats()
	bufStats := p.dist.Buffer().Stats()

	p.mu.Lock()
	started := p.started
	lastPosture := p.lastPosture
	p.mu.Unlock()

	var uptime float64
	if !started.IsZero() {
		uptime = p.clk.Now().Sub(started).Seconds()
	}

	return map[string]interface{}{
		"instance_id":  p.cfg.InstanceID,
		"uptime_s":     uptime,
		"running":      p.running.Load(),
		"monitoring":   trackerStatus,
		"last_posture": lastPosture.String(),
		"camera": map[string]interface{}{
			"state":       p.health.State().String(),
			"is_open":     sourceStats.IsOpen,
			"fps_real":    sourceStats.FPSReal,
			"frame_count": sourceStats.FrameCount,
			"read_errors": sourceStats.ReadErrors,
			"resolution":  sourceStats.Resolution,
			"reconnects":  sourceStats.Reconnects,
		},
		"distributor": map[string]interface{}{
			"viewers": p.dist.ViewerCount(),
			"pushes":  bufStats.Pushes,
			"drops":   bufStats.Drops,
		},
		"cycles": atomic.LoadUint64(&p.cycles),
		"faults": atomic.LoadUint64(&p.faults),
		"config": map[string]interface{}{
			"target_rate_hz":      p.cfg.Pipeline.TargetRateHz,
			"angle_threshold_deg": p.cfg.Posture.AngleThresholdDeg,
			"alert_threshold_s":   p.cfg.Alert.ThresholdS,
			"alert_cooldown_s":    p.cfg.Alert.CooldownS,
		},
	}
}

// shutdownViaControl triggers the same path as a signal: cancel the run
// context so main's shutdown sequence takes over.
func (p *Pipeline) shutdownViaControl() error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	// Give the ack a moment to flush before the connection drops.
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	return nil
}
