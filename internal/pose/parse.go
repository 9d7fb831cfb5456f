// Package pose wraps a body-keypoint inference engine and turns frames
// into landmark sets with a presence confidence.
package pose

import (
	"fmt"
	"math"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/types"
)

// valuesPerLandmark is the engine's per-keypoint layout:
// x, y, z in input-pixel scale plus visibility and presence scores.
const valuesPerLandmark = 5

// parseLandmarks decodes the engine's flat float output into a landmark
// set with coordinates normalized to [0, 1] by the input size.
func parseLandmarks(raw []float32, inputSize int) (types.LandmarkSet, error) {
	want := types.LandmarkCount * valuesPerLandmark
	if len(raw) < want {
		return nil, fmt.Errorf("landmark tensor too short: got %d values, want %d", len(raw), want)
	}
	if inputSize <= 0 {
		return nil, fmt.Errorf("invalid input size: %d", inputSize)
	}

	size := float64(inputSize)
	set := make(types.LandmarkSet, types.LandmarkCount)
	for i := 0; i < types.LandmarkCount; i++ {
		base := i * valuesPerLandmark
		set[i] = types.Landmark{
			X:          float64(raw[base]) / size,
			Y:          float64(raw[base+1]) / size,
			Z:          float64(raw[base+2]) / size,
			Visibility: sigmoid(float64(raw[base+3])),
		}
	}
	return set, nil
}

// sigmoid squashes a raw visibility logit into [0, 1].
func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
