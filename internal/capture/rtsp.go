package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/types"
)

// RTSPSource reads frames from a network camera through a GStreamer
// pipeline. Unlike the webcam source the frames arrive asynchronously;
// Read drains the newest buffered frame without blocking so the caller's
// cycle cadence is preserved.
//
// The pipeline does not reconnect on its own. A pipeline error surfaces
// as a Read fault, and recovery happens through the caller's normal
// release/reopen path, same as for a local device.
type RTSPSource struct {
	url    string
	width  int
	height int
	warmup int

	discarded atomic.Uint32

	mu       sync.Mutex
	pipeline *gst.Pipeline
	open     bool
	frames   chan types.Frame
	busDone  chan struct{}

	fault atomic.Pointer[Diagnostic]

	seq        uint64
	readErrors uint64
	reconnects uint32
	started    time.Time
	lastFrame  time.Time
}

// RTSPConfig configures a network camera source.
type RTSPConfig struct {
	URL    string
	Width  int
	Height int
	// WarmupFrames are discarded after each open while the decoder and
	// jitter buffer settle.
	WarmupFrames int
}

// NewRTSPSource creates an unopened RTSP source.
func NewRTSPSource(cfg RTSPConfig) (*RTSPSource, error) {
	if cfg.URL == "" {
		return nil, errors.New("rtsp url is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid resolution: %dx%d", cfg.Width, cfg.Height)
	}
	return &RTSPSource{
		url:    cfg.URL,
		width:  cfg.Width,
		height: cfg.Height,
		warmup: cfg.WarmupFrames,
	}, nil
}

// Open builds and starts the GStreamer pipeline.
func (s *RTSPSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return nil
	}

	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return newDiagnostic(FaultDriverMalfunction, s.url, err)
	}

	rtspsrc, err := gst.NewElement("rtspsrc")
	if err != nil {
		return newDiagnostic(FaultDriverMalfunction, s.url, err)
	}
	rtspsrc.SetProperty("location", s.url)
	rtspsrc.SetProperty("protocols", 4) // TCP
	rtspsrc.SetProperty("latency", 200)

	rtph264depay, _ := gst.NewElement("rtph264depay")
	avdecH264, _ := gst.NewElement("avdec_h264")
	videoconvert, _ := gst.NewElement("videoconvert")
	videoscale, _ := gst.NewElement("videoscale")
	capsfilter, _ := gst.NewElement("capsfilter")
	capsfilter.SetProperty("caps", gst.NewCapsFromString(fmt.Sprintf(
		"video/x-raw,format=BGR,width=%d,height=%d", s.width, s.height,
	)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return newDiagnostic(FaultDriverMalfunction, s.url, err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)
	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onNewSample,
	})

	pipeline.AddMany(rtspsrc, rtph264depay, avdecH264, videoconvert, videoscale, capsfilter, appsink.Element)
	gst.ElementLinkMany(rtph264depay, avdecH264, videoconvert, videoscale, capsfilter, appsink.Element)

	rtspsrc.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
		if sinkPad := rtph264depay.GetStaticPad("sink"); sinkPad != nil {
			srcPad.Link(sinkPad)
		}
	})

	// Delivery state must exist before the first sample callback fires.
	s.frames = make(chan types.Frame, 1)
	s.busDone = make(chan struct{})
	s.fault.Store(nil)
	s.discarded.Store(0)
	seqBefore := atomic.LoadUint64(&s.seq)

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return newDiagnostic(FaultDriverMalfunction, s.url, err)
	}

	s.pipeline = pipeline
	s.open = true
	s.started = time.Now()
	atomic.AddUint32(&s.reconnects, 1)

	go s.watchBus(pipeline, s.busDone)

	// Block until frames actually flow so a read right after a
	// successful open can deliver, matching the webcam's synchronous
	// warm-up.
	if err := s.awaitFirstFrame(ctx, seqBefore); err != nil {
		s.releaseLocked()
		return err
	}

	slog.Info("rtsp source opened",
		"url", s.url,
		"resolution", fmt.Sprintf("%dx%d", s.width, s.height),
	)
	return nil
}

// firstFrameTimeout bounds how long an open waits for the stream to
// produce its first post-warm-up frame.
const firstFrameTimeout = 10 * time.Second

func (s *RTSPSource) awaitFirstFrame(ctx context.Context, seqBefore uint64) error {
	deadline := time.Now().Add(firstFrameTimeout)
	for time.Now().Before(deadline) {
		if diag := s.fault.Load(); diag != nil {
			return diag
		}
		if atomic.LoadUint64(&s.seq) > seqBefore {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return newDiagnostic(FaultDriverMalfunction, s.url,
		errors.New("stream produced no frames within timeout"))
}

// watchBus surfaces pipeline errors as Read faults.
func (s *RTSPSource) watchBus(pipeline *gst.Pipeline, done chan struct{}) {
	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-done:
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			s.fault.Store(newDiagnostic(FaultDriverMalfunction, s.url, errors.New("end of stream")))
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("rtsp pipeline error", "url", s.url, "error", gerr.Error())
			s.fault.Store(newDiagnostic(FaultDriverMalfunction, s.url, gerr))
			return
		}
	}
}

// admitFrame discards the configured warm-up run after each open.
func (s *RTSPSource) admitFrame() bool {
	if s.warmup <= 0 {
		return true
	}
	if int(s.discarded.Load()) >= s.warmup {
		return true
	}
	return int(s.discarded.Add(1)) > s.warmup
}

func (s *RTSPSource) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowEOS
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowError
	}

	mapInfo := buffer.Map(gst.MapRead)
	defer buffer.Unmap()
	raw := mapInfo.Bytes()
	if len(raw) == 0 {
		return gst.FlowOK
	}

	if !s.admitFrame() {
		return gst.FlowOK
	}

	data := make([]byte, len(raw))
	copy(data, raw)

	frame := types.Frame{
		Seq:       atomic.AddUint64(&s.seq, 1),
		Timestamp: time.Now(),
		Width:     s.width,
		Height:    s.height,
		Data:      data,
		TraceID:   uuid.New().String(),
	}

	// Latest wins; a stale undelivered frame is discarded.
	select {
	case s.frames <- frame:
	default:
		select {
		case <-s.frames:
		default:
		}
		select {
		case s.frames <- frame:
		default:
		}
	}
	return gst.FlowOK
}

// Read returns the newest buffered frame, if any.
func (s *RTSPSource) Read() (types.Frame, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return types.Frame{}, false, newDiagnostic(FaultUnknown, s.url, errors.New("source not open"))
	}
	if diag := s.fault.Load(); diag != nil {
		atomic.AddUint64(&s.readErrors, 1)
		return types.Frame{}, false, diag
	}

	select {
	case frame := <-s.frames:
		s.lastFrame = frame.Timestamp
		return frame, true, nil
	default:
		return types.Frame{}, false, nil
	}
}

// Release tears down the pipeline. Idempotent.
func (s *RTSPSource) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

func (s *RTSPSource) releaseLocked() {
	if !s.open {
		return
	}
	close(s.busDone)
	s.pipeline.SetState(gst.StateNull)
	s.pipeline = nil
	s.open = false

	slog.Info("rtsp source released",
		"url", s.url,
		"frames_read", atomic.LoadUint64(&s.seq),
	)
}

// Stats returns capture statistics.
func (s *RTSPSource) Stats() types.SourceStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	frameCount := atomic.LoadUint64(&s.seq)
	var fpsReal float64
	if s.open {
		if uptime := time.Since(s.started).Seconds(); uptime > 0 {
			fpsReal = float64(frameCount) / uptime
		}
	}
	reconnects := atomic.LoadUint32(&s.reconnects)
	if reconnects > 0 {
		reconnects--
	}
	return types.SourceStats{
		FrameCount:  frameCount,
		FPSReal:     fpsReal,
		Resolution:  fmt.Sprintf("%dx%d", s.width, s.height),
		Reconnects:  reconnects,
		IsOpen:      s.open,
		ReadErrors:  atomic.LoadUint64(&s.readErrors),
		LastFrameAt: s.lastFrame,
	}
}
