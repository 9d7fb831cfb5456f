package types

// Posture is the classified posture state for one frame.
type Posture int

const (
	// PostureUnknown means no person was present or the landmark set
	// was unusable. It is not a low-confidence good or bad.
	PostureUnknown Posture = iota
	// PostureGood means the torso lean angle is within the threshold.
	PostureGood
	// PostureBad means the torso lean angle exceeds the threshold.
	PostureBad
)

// String implements fmt.Stringer for Posture
func (p Posture) String() string {
	switch p {
	case PostureGood:
		return "good"
	case PostureBad:
		return "bad"
	default:
		return "unknown"
	}
}

// CameraState is the camera health state owned by the worker loop.
type CameraState int

const (
	// CameraConnected means reads are succeeding.
	CameraConnected CameraState = iota
	// CameraDegraded means a read failed and quick retries are in progress.
	CameraDegraded
	// CameraDisconnected means quick retries were exhausted and the
	// long-interval retry cycle is active.
	CameraDisconnected
)

// String implements fmt.Stringer for CameraState
func (c CameraState) String() string {
	switch c {
	case CameraConnected:
		return "connected"
	case CameraDegraded:
		return "degraded"
	default:
		return "disconnected"
	}
}
