package types

// Landmark is one estimated body keypoint in normalized image coordinates.
// X and Y are fractions of frame width/height, Z is depth relative to the
// hip midpoint, Visibility is the model's presence confidence for the point.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// LandmarkSet is the ordered collection of body keypoints produced by the
// pose estimator. Indices follow the 33-point full-body convention.
type LandmarkSet []Landmark

// Landmark indices used by the posture pipeline.
const (
	LandmarkNose          = 0
	LandmarkLeftShoulder  = 11
	LandmarkRightShoulder = 12
	LandmarkLeftHip       = 23
	LandmarkRightHip      = 24

	// LandmarkCount is the number of keypoints in a complete set.
	LandmarkCount = 33
)

// At returns the landmark at index i and whether it exists.
// A nil or truncated set yields ok=false instead of panicking.
func (s LandmarkSet) At(i int) (Landmark, bool) {
	if i < 0 || i >= len(s) {
		return Landmark{}, false
	}
	return s[i], true
}

// Estimation is the tagged result of one pose inference. A nil Landmarks
// with UserPresent=false means "no person in frame", which is distinct
// from a processing error (errors are returned separately by the caller).
type Estimation struct {
	Landmarks   LandmarkSet
	UserPresent bool
	Confidence  float64
}
