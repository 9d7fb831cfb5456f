package types

import (
	"encoding/json"
	"time"
)

// Event is the interface all outbound events implement.
type Event interface {
	// Type returns the event type (camera_status, posture_snapshot, ...)
	Type() string
	// Timestamp returns when the event was generated
	Timestamp() time.Time
	// ToJSON converts the event to JSON bytes
	ToJSON() ([]byte, error)
}

// CameraStatusEvent is emitted on every camera health transition.
type CameraStatusEvent struct {
	State string    `json:"state"`
	At    time.Time `json:"timestamp"`
}

func (e CameraStatusEvent) Type() string            { return "camera_status" }
func (e CameraStatusEvent) Timestamp() time.Time    { return e.At }
func (e CameraStatusEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

// SnapshotEvent wraps the per-cycle snapshot for subscribers.
type SnapshotEvent struct {
	Snapshot Snapshot
}

func (e SnapshotEvent) Type() string            { return "posture_snapshot" }
func (e SnapshotEvent) Timestamp() time.Time    { return e.Snapshot.Timestamp }
func (e SnapshotEvent) ToJSON() ([]byte, error) { return json.Marshal(e.Snapshot) }

// AlertTriggeredEvent is emitted when sustained bad posture crosses the
// alert threshold (respecting the cooldown).
type AlertTriggeredEvent struct {
	DurationS int       `json:"duration"`
	At        time.Time `json:"timestamp"`
}

func (e AlertTriggeredEvent) Type() string            { return "alert_triggered" }
func (e AlertTriggeredEvent) Timestamp() time.Time    { return e.At }
func (e AlertTriggeredEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

// PostureCorrectedEvent is emitted when a tracked bad period ends with a
// good observation.
type PostureCorrectedEvent struct {
	PreviousDurationS int       `json:"previous_duration"`
	At                time.Time `json:"timestamp"`
}

func (e PostureCorrectedEvent) Type() string            { return "posture_corrected" }
func (e PostureCorrectedEvent) Timestamp() time.Time    { return e.At }
func (e PostureCorrectedEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

// MonitoringStatusEvent reports the tracker's control state after a
// pause or resume.
type MonitoringStatusEvent struct {
	Active    bool      `json:"active"`
	Threshold int       `json:"threshold"`
	Cooldown  int       `json:"cooldown"`
	At        time.Time `json:"timestamp"`
}

func (e MonitoringStatusEvent) Type() string            { return "monitoring_status" }
func (e MonitoringStatusEvent) Timestamp() time.Time    { return e.At }
func (e MonitoringStatusEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

// PostureChangeRecord is the unit appended to the external event store on
// every posture change. The store is write-only from the core's side.
type PostureChangeRecord struct {
	Timestamp   time.Time         `msgpack:"timestamp" json:"timestamp"`
	State       string            `msgpack:"state" json:"state"`
	UserPresent bool              `msgpack:"user_present" json:"user_present"`
	Confidence  float64           `msgpack:"confidence" json:"confidence"`
	Metadata    map[string]string `msgpack:"metadata,omitempty" json:"metadata,omitempty"`
}
