// Package posture classifies body landmarks into posture states using
// torso lean geometry. The classifier is pure and never panics: any
// unusable landmark set yields PostureUnknown.
package posture

import (
	"image/color"
	"math"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/types"
)

// Classifier derives a posture state from a landmark set.
type Classifier struct {
	// angleThresholdDeg is the torso lean beyond which posture is bad
	angleThresholdDeg float64
}

// NewClassifier creates a classifier with the given lean angle threshold
// in degrees.
func NewClassifier(angleThresholdDeg float64) *Classifier {
	return &Classifier{angleThresholdDeg: angleThresholdDeg}
}

// Classify computes the torso lean angle from the shoulder and hip
// midpoints and compares it against the threshold. A nil or truncated
// landmark set yields PostureUnknown.
func (c *Classifier) Classify(landmarks types.LandmarkSet) types.Posture {
	angle, ok := c.LeanAngle(landmarks)
	if !ok {
		return types.PostureUnknown
	}
	if math.Abs(angle) > c.angleThresholdDeg {
		return types.PostureBad
	}
	return types.PostureGood
}

// LeanAngle returns the signed torso lean angle in degrees and whether
// the landmark set was usable. Zero means perfectly upright; positive
// means leaning toward the frame's right.
func (c *Classifier) LeanAngle(landmarks types.LandmarkSet) (float64, bool) {
	ls, ok1 := landmarks.At(types.LandmarkLeftShoulder)
	rs, ok2 := landmarks.At(types.LandmarkRightShoulder)
	lh, ok3 := landmarks.At(types.LandmarkLeftHip)
	rh, ok4 := landmarks.At(types.LandmarkRightHip)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return 0, false
	}

	shoulderMidX := (ls.X + rs.X) / 2
	shoulderMidY := (ls.Y + rs.Y) / 2
	hipMidX := (lh.X + rh.X) / 2
	hipMidY := (lh.Y + rh.Y) / 2

	// Image coordinates grow downward, so the hip sits below the
	// shoulders when the torso is upright.
	dx := shoulderMidX - hipMidX
	dy := hipMidY - shoulderMidY

	return math.Atan2(dx, dy) * 180 / math.Pi, true
}

// Display colors per posture state. Bad posture renders amber rather
// than red to avoid alarming the user.
var (
	colorGood    = color.RGBA{R: 46, G: 204, B: 113, A: 255}
	colorBad     = color.RGBA{R: 255, G: 191, B: 0, A: 255}
	colorUnknown = color.RGBA{R: 128, G: 128, B: 128, A: 255}
)

// DisplayColor maps a posture state to its overlay color.
func DisplayColor(p types.Posture) color.RGBA {
	switch p {
	case types.PostureGood:
		return colorGood
	case types.PostureBad:
		return colorBad
	default:
		return colorUnknown
	}
}
