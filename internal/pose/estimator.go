package pose

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/types"
)

// Estimator runs a single-person pose network over frames.
//
// Detect is not safe for concurrent use; the worker loop is its only
// caller. A nil or malformed frame short-circuits to an absent result
// without touching the engine. Engine failures are returned to the
// caller untouched so per-cycle fault isolation can handle them.
type Estimator struct {
	net                gocv.Net
	inputSize          int
	presenceConfidence float64

	mu     sync.Mutex
	closed bool
}

// Config configures the estimator.
type Config struct {
	ModelPath          string
	InputSize          int
	PresenceConfidence float64
}

// NewEstimator loads the pose network from disk.
func NewEstimator(cfg Config) (*Estimator, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	if cfg.InputSize <= 0 {
		return nil, fmt.Errorf("invalid input size: %d", cfg.InputSize)
	}

	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load pose model from %s", cfg.ModelPath)
	}

	slog.Info("pose model loaded",
		"model", cfg.ModelPath,
		"input_size", cfg.InputSize,
	)

	return &Estimator{
		net:                net,
		inputSize:          cfg.InputSize,
		presenceConfidence: cfg.PresenceConfidence,
	}, nil
}

// Detect runs one inference pass over the frame.
func (e *Estimator) Detect(frame types.Frame) (types.Estimation, error) {
	if !frame.IsValid() {
		return types.Estimation{}, nil
	}

	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return types.Estimation{}, nil
	}
	defer mat.Close()
	if mat.Empty() {
		return types.Estimation{}, nil
	}

	blob := gocv.BlobFromImage(mat, 1.0/255.0,
		image.Pt(e.inputSize, e.inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	defer out.Close()

	if out.Empty() {
		return types.Estimation{}, errors.New("pose engine returned empty output")
	}

	raw, err := out.DataPtrFloat32()
	if err != nil {
		return types.Estimation{}, fmt.Errorf("reading pose output tensor: %w", err)
	}

	landmarks, err := parseLandmarks(raw, e.inputSize)
	if err != nil {
		return types.Estimation{}, fmt.Errorf("decoding pose output: %w", err)
	}

	// Presence confidence comes from the nose keypoint. It sits near the
	// image center for a seated user and its visibility is the most
	// stable of the face keypoints.
	nose, _ := landmarks.At(types.LandmarkNose)
	confidence := nose.Visibility
	if confidence < e.presenceConfidence {
		return types.Estimation{Confidence: confidence}, nil
	}

	return types.Estimation{
		Landmarks:   landmarks,
		UserPresent: true,
		Confidence:  confidence,
	}, nil
}

// Close releases the network. Idempotent.
func (e *Estimator) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.net.Close()
}
