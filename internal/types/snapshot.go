package types

import (
	"encoding/json"
	"time"
)

// AlertOutcome is the alert tracker's per-cycle output.
type AlertOutcome struct {
	// ShouldAlert is set on the cycle an alert fires.
	ShouldAlert bool `json:"should_alert"`
	// Duration is the accumulated bad-posture time, in whole seconds.
	Duration int `json:"duration"`
	// ThresholdReached is set while Duration is at or past the alert threshold.
	ThresholdReached bool `json:"threshold_reached"`
	// PostureCorrected is set on the cycle a tracked bad period ends with
	// a good observation.
	PostureCorrected bool `json:"posture_corrected,omitempty"`
	// PreviousDuration carries the total accumulated bad time when
	// PostureCorrected is set, in whole seconds.
	PreviousDuration int `json:"previous_duration,omitempty"`
}

// Snapshot is the per-cycle result bundle pushed into the distributor.
// It is immutable once constructed; viewers share it read-only.
type Snapshot struct {
	Timestamp   time.Time    `json:"timestamp"`
	Posture     Posture      `json:"-"`
	UserPresent bool         `json:"user_present"`
	Confidence  float64      `json:"confidence"`
	// FrameJPEG is the overlay-rendered frame, JPEG encoded.
	// Base64 in JSON by encoding/json convention.
	FrameJPEG   []byte       `json:"encoded_frame,omitempty"`
	CameraState CameraState  `json:"-"`
	Alert       AlertOutcome `json:"alert_outcome"`
	TraceID     string       `json:"trace_id,omitempty"`
}

// MarshalJSON renders the enum fields as their string forms.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		Timestamp:   s.Timestamp,
		Posture:     s.Posture.String(),
		UserPresent: s.UserPresent,
		Confidence:  s.Confidence,
		FrameJPEG:   s.FrameJPEG,
		CameraState: s.CameraState.String(),
		Alert:       s.Alert,
		TraceID:     s.TraceID,
	})
}

// snapshotJSON mirrors Snapshot with string forms of the enums.
type snapshotJSON struct {
	Timestamp   time.Time    `json:"timestamp"`
	Posture     string       `json:"posture_classification"`
	UserPresent bool         `json:"user_present"`
	Confidence  float64      `json:"confidence"`
	FrameJPEG   []byte       `json:"encoded_frame,omitempty"`
	CameraState string       `json:"camera_health_state"`
	Alert       AlertOutcome `json:"alert_outcome"`
	TraceID     string       `json:"trace_id,omitempty"`
}
