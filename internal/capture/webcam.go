package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/types"
)

// WebcamSource reads frames from a local V4L2 device through OpenCV.
type WebcamSource struct {
	deviceIndex  int
	width        int
	height       int
	warmupFrames int

	mu   sync.Mutex
	cap  *gocv.VideoCapture
	mat  gocv.Mat
	open bool

	seq        uint64
	readErrors uint64
	started    time.Time
	lastFrame  time.Time
}

// WebcamConfig configures a local capture device.
type WebcamConfig struct {
	DeviceIndex  int
	Width        int
	Height       int
	WarmupFrames int
}

// NewWebcamSource creates an unopened webcam source.
func NewWebcamSource(cfg WebcamConfig) (*WebcamSource, error) {
	if cfg.DeviceIndex < 0 {
		return nil, fmt.Errorf("invalid device index: %d", cfg.DeviceIndex)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid resolution: %dx%d", cfg.Width, cfg.Height)
	}
	return &WebcamSource{
		deviceIndex:  cfg.DeviceIndex,
		width:        cfg.Width,
		height:       cfg.Height,
		warmupFrames: cfg.WarmupFrames,
	}, nil
}

func (w *WebcamSource) devicePath() string {
	return fmt.Sprintf("/dev/video%d", w.deviceIndex)
}

// preflight checks device accessibility before OpenCV touches it, so
// open failures carry an actionable reason instead of an opaque OpenCV
// error string.
func (w *WebcamSource) preflight() *Diagnostic {
	device := w.devicePath()

	if _, err := os.Stat(device); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newDiagnostic(FaultDeviceNotFound, device, err)
		}
		return newDiagnostic(FaultUnknown, device, err)
	}

	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrPermission):
			return newDiagnostic(FaultPermissionDenied, device, err)
		case errors.Is(err, syscall.EBUSY):
			return newDiagnostic(FaultDeviceBusy, device, err)
		case errors.Is(err, syscall.EIO), errors.Is(err, syscall.ENXIO):
			return newDiagnostic(FaultDriverMalfunction, device, err)
		default:
			return newDiagnostic(FaultUnknown, device, err)
		}
	}
	f.Close()
	return nil
}

// Open runs the pre-flight check, opens the device, applies the
// resolution, and discards warm-up frames. The first frames after a cold
// open are frequently corrupted or mis-exposed; they never reach callers.
func (w *WebcamSource) Open(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.open {
		return nil
	}

	if diag := w.preflight(); diag != nil {
		slog.Error("capture pre-flight failed",
			"device", diag.Device,
			"reason", diag.Reason,
			"remediation", diag.Remediation,
		)
		return diag
	}

	cap, err := gocv.OpenVideoCapture(w.deviceIndex)
	if err != nil {
		return newDiagnostic(FaultDriverMalfunction, w.devicePath(), err)
	}

	cap.Set(gocv.VideoCaptureFrameWidth, float64(w.width))
	cap.Set(gocv.VideoCaptureFrameHeight, float64(w.height))
	cap.Set(gocv.VideoCaptureBufferSize, 1)

	w.cap = cap
	w.mat = gocv.NewMat()
	w.open = true
	w.started = time.Now()

	discarded := 0
	for i := 0; i < w.warmupFrames; i++ {
		select {
		case <-ctx.Done():
			w.releaseLocked()
			return ctx.Err()
		default:
		}
		if w.cap.Read(&w.mat) {
			discarded++
		}
	}

	slog.Info("capture device opened",
		"device", w.devicePath(),
		"resolution", fmt.Sprintf("%dx%d", w.width, w.height),
		"warmup_discarded", discarded,
	)
	return nil
}

// Read grabs one frame. (zero, false, nil) means no frame was ready;
// a non-nil error means the device itself failed.
func (w *WebcamSource) Read() (types.Frame, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.open || w.cap == nil {
		return types.Frame{}, false, newDiagnostic(FaultUnknown, w.devicePath(), errors.New("source not open"))
	}

	if !w.cap.Read(&w.mat) {
		atomic.AddUint64(&w.readErrors, 1)
		if !w.cap.IsOpened() {
			return types.Frame{}, false, newDiagnostic(FaultDriverMalfunction, w.devicePath(), errors.New("device closed mid-stream"))
		}
		return types.Frame{}, false, nil
	}
	if w.mat.Empty() {
		return types.Frame{}, false, nil
	}

	// BGR24 copy; the Mat buffer is reused on the next Read.
	src := w.mat.ToBytes()
	data := make([]byte, len(src))
	copy(data, src)

	now := time.Now()
	w.lastFrame = now

	frame := types.Frame{
		Seq:       atomic.AddUint64(&w.seq, 1),
		Timestamp: now,
		Width:     w.mat.Cols(),
		Height:    w.mat.Rows(),
		Data:      data,
		TraceID:   uuid.New().String(),
	}
	return frame, true, nil
}

// Release closes the device. Idempotent.
func (w *WebcamSource) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.releaseLocked()
}

func (w *WebcamSource) releaseLocked() {
	if !w.open {
		return
	}
	if w.cap != nil {
		if err := w.cap.Close(); err != nil {
			slog.Warn("capture close error", "device", w.devicePath(), "error", err)
		}
		w.cap = nil
	}
	w.mat.Close()
	w.open = false

	slog.Info("capture device released",
		"device", w.devicePath(),
		"frames_read", atomic.LoadUint64(&w.seq),
	)
}

// Stats returns capture statistics.
func (w *WebcamSource) Stats() types.SourceStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	frameCount := atomic.LoadUint64(&w.seq)
	var fpsReal float64
	if w.open {
		if uptime := time.Since(w.started).Seconds(); uptime > 0 {
			fpsReal = float64(frameCount) / uptime
		}
	}
	return types.SourceStats{
		FrameCount: frameCount,
		FPSReal:    fpsReal,
		Resolution: fmt.Sprintf("%dx%d", w.width, w.height),
		IsOpen:     w.open,
		ReadErrors: atomic.LoadUint64(&w.readErrors),
		LastFrameAt: w.lastFrame,
	}
}
