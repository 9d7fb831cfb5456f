package posture

import (
	"math"
	"testing"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/types"
)

// landmarksWithTorso builds a full landmark set whose shoulder and hip
// midpoints produce the given horizontal offset. Hips sit below the
// shoulders as in image coordinates.
func landmarksWithTorso(shoulderX, hipX float64) types.LandmarkSet {
	set := make(types.LandmarkSet, types.LandmarkCount)
	set[types.LandmarkLeftShoulder] = types.Landmark{X: shoulderX - 0.1, Y: 0.3, Visibility: 0.9}
	set[types.LandmarkRightShoulder] = types.Landmark{X: shoulderX + 0.1, Y: 0.3, Visibility: 0.9}
	set[types.LandmarkLeftHip] = types.Landmark{X: hipX - 0.08, Y: 0.6, Visibility: 0.9}
	set[types.LandmarkRightHip] = types.Landmark{X: hipX + 0.08, Y: 0.6, Visibility: 0.9}
	return set
}

func TestClassifyUpright(t *testing.T) {
	c := NewClassifier(15)

	got := c.Classify(landmarksWithTorso(0.5, 0.5))
	if got != types.PostureGood {
		t.Errorf("upright torso: expected good, got %s", got)
	}
}

func TestClassifyLeaning(t *testing.T) {
	c := NewClassifier(15)

	// Shoulder midpoint offset 0.2 over a 0.3 vertical span is
	// atan2(0.2, 0.3) ≈ 33.7°, well past the 15° threshold.
	got := c.Classify(landmarksWithTorso(0.7, 0.5))
	if got != types.PostureBad {
		t.Errorf("leaning torso: expected bad, got %s", got)
	}

	// Lean direction must not matter.
	got = c.Classify(landmarksWithTorso(0.3, 0.5))
	if got != types.PostureBad {
		t.Errorf("opposite lean: expected bad, got %s", got)
	}
}

func TestClassifyAtThresholdBoundary(t *testing.T) {
	c := NewClassifier(15)

	// Exactly the threshold is still good; bad requires strictly greater.
	offset := 0.3 * math.Tan(15*math.Pi/180)
	got := c.Classify(landmarksWithTorso(0.5+offset, 0.5))
	if got != types.PostureGood {
		t.Errorf("angle == threshold: expected good, got %s", got)
	}
}

func TestClassifyUnusableLandmarks(t *testing.T) {
	c := NewClassifier(15)

	tests := []struct {
		name      string
		landmarks types.LandmarkSet
	}{
		{"nil set", nil},
		{"empty set", types.LandmarkSet{}},
		{"truncated before hips", make(types.LandmarkSet, types.LandmarkLeftHip)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.landmarks); got != types.PostureUnknown {
				t.Errorf("expected unknown, got %s", got)
			}
		})
	}
}

func TestLeanAngleSign(t *testing.T) {
	c := NewClassifier(15)

	angle, ok := c.LeanAngle(landmarksWithTorso(0.7, 0.5))
	if !ok {
		t.Fatal("expected usable landmarks")
	}
	if angle <= 0 {
		t.Errorf("rightward lean should be positive, got %.2f", angle)
	}

	angle, _ = c.LeanAngle(landmarksWithTorso(0.3, 0.5))
	if angle >= 0 {
		t.Errorf("leftward lean should be negative, got %.2f", angle)
	}
}

func TestDisplayColor(t *testing.T) {
	if DisplayColor(types.PostureGood) != colorGood {
		t.Error("good posture should render green")
	}
	if DisplayColor(types.PostureBad) != colorBad {
		t.Error("bad posture should render amber")
	}
	if DisplayColor(types.PostureUnknown) != colorUnknown {
		t.Error("unknown posture should render gray")
	}
	// Amber, not red: the red channel alone should never dominate
	// with green near zero.
	if colorBad.G < 128 {
		t.Error("bad posture color must not be red")
	}
}
