// Package capture owns the physical frame source: open/read/release
// lifecycle, pre-flight accessibility diagnostics, and warm-up discard.
package capture

import (
	"context"
	"fmt"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/types"
)

// Source is a frame provider with an explicit lifecycle.
//
// Read distinguishes two failure categories. A return of (zero, false, nil)
// means no frame was ready this cycle, an ordinary condition the caller may
// simply retry. A non-nil error means a hardware-level fault; only these
// drive the camera health state machine. Errors from downstream stages
// (inference, encoding) never travel through this interface.
//
// Release is idempotent and safe to call on a source that never opened.
type Source interface {
	Open(ctx context.Context) error
	Read() (types.Frame, bool, error)
	Release()
	Stats() types.SourceStats
}

// FaultReason categorizes why a capture device could not be opened.
type FaultReason string

const (
	FaultPermissionDenied  FaultReason = "permission_denied"
	FaultDeviceBusy        FaultReason = "device_busy"
	FaultDeviceNotFound    FaultReason = "device_not_found"
	FaultDriverMalfunction FaultReason = "driver_malfunction"
	FaultUnknown           FaultReason = "unknown"
)

// RetryRecommended reports whether automatic reconnection can plausibly
// clear the fault. Missing devices and permission problems need an
// operator; retrying them just burns the retry budget.
func (r FaultReason) RetryRecommended() bool {
	switch r {
	case FaultPermissionDenied, FaultDeviceNotFound:
		return false
	default:
		return true
	}
}

// Diagnostic is the structured result of a failed open. It wraps the
// underlying cause and carries a remediation hint for the operator.
type Diagnostic struct {
	Reason      FaultReason
	Device      string
	Remediation string
	Cause       error
}

func (d *Diagnostic) Error() string {
	if d.Cause != nil {
		return fmt.Sprintf("capture %s: %s: %v", d.Device, d.Reason, d.Cause)
	}
	return fmt.Sprintf("capture %s: %s", d.Device, d.Reason)
}

func (d *Diagnostic) Unwrap() error { return d.Cause }

// remediationFor maps each fault reason to operator guidance.
func remediationFor(reason FaultReason, device string) string {
	switch reason {
	case FaultPermissionDenied:
		return fmt.Sprintf("add the service user to the video group or adjust permissions on %s", device)
	case FaultDeviceBusy:
		return fmt.Sprintf("another process holds %s; close it or pick a different device index", device)
	case FaultDeviceNotFound:
		return fmt.Sprintf("%s does not exist; check the cable and the configured device index", device)
	case FaultDriverMalfunction:
		return "the video driver returned an I/O fault; replug the camera or reload the driver module"
	default:
		return "unrecognized capture failure; check the service logs for the underlying error"
	}
}

func newDiagnostic(reason FaultReason, device string, cause error) *Diagnostic {
	return &Diagnostic{
		Reason:      reason,
		Device:      device,
		Remediation: remediationFor(reason, device),
		Cause:       cause,
	}
}
