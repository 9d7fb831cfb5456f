package capture

import (
	"context"
	"errors"
	"testing"
)

func TestFaultReasonRetryRecommended(t *testing.T) {
	cases := []struct {
		reason FaultReason
		want   bool
	}{
		{FaultPermissionDenied, false},
		{FaultDeviceNotFound, false},
		{FaultDeviceBusy, true},
		{FaultDriverMalfunction, true},
		{FaultUnknown, true},
	}
	for _, tc := range cases {
		if got := tc.reason.RetryRecommended(); got != tc.want {
			t.Errorf("%s: RetryRecommended() = %v, want %v", tc.reason, got, tc.want)
		}
	}
}

func TestDiagnosticWrapsCause(t *testing.T) {
	cause := errors.New("open /dev/video0: permission denied")
	diag := newDiagnostic(FaultPermissionDenied, "/dev/video0", cause)

	if !errors.Is(diag, cause) {
		t.Fatal("diagnostic does not wrap its cause")
	}
	if diag.Remediation == "" {
		t.Fatal("diagnostic missing remediation text")
	}

	var target *Diagnostic
	if !errors.As(error(diag), &target) {
		t.Fatal("errors.As failed to recover *Diagnostic")
	}
	if target.Reason != FaultPermissionDenied {
		t.Fatalf("reason = %s, want permission_denied", target.Reason)
	}
}

func TestEveryReasonHasRemediation(t *testing.T) {
	reasons := []FaultReason{
		FaultPermissionDenied,
		FaultDeviceBusy,
		FaultDeviceNotFound,
		FaultDriverMalfunction,
		FaultUnknown,
	}
	for _, r := range reasons {
		if remediationFor(r, "/dev/video0") == "" {
			t.Errorf("%s: empty remediation", r)
		}
	}
}

func TestMockSourceScript(t *testing.T) {
	fault := newDiagnostic(FaultDriverMalfunction, "mock", errors.New("io fault"))
	src := NewMockSource(4, 4,
		MockStep{OK: true},
		MockStep{OK: false},
		MockStep{Err: fault},
	)

	if err := src.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	frame, ok, err := src.Read()
	if !ok || err != nil {
		t.Fatalf("step 1: ok=%v err=%v", ok, err)
	}
	if !frame.IsValid() {
		t.Fatal("step 1: invalid synthetic frame")
	}

	if _, ok, err := src.Read(); ok || err != nil {
		t.Fatalf("step 2: ok=%v err=%v, want miss", ok, err)
	}

	if _, ok, err := src.Read(); ok || err == nil {
		t.Fatalf("step 3: ok=%v err=%v, want fault", ok, err)
	}

	// Script exhausted: frames flow again.
	if _, ok, err := src.Read(); !ok || err != nil {
		t.Fatalf("post-script: ok=%v err=%v", ok, err)
	}

	src.Release()
	src.Release()
	if src.ReleaseCalls != 2 {
		t.Fatalf("ReleaseCalls = %d, want 2", src.ReleaseCalls)
	}
}

func TestRTSPWarmupDiscard(t *testing.T) {
	s, err := NewRTSPSource(RTSPConfig{
		URL:          "rtsp://10.0.0.5:8554/desk",
		Width:        640,
		Height:       480,
		WarmupFrames: 3,
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if s.admitFrame() {
			t.Fatalf("warm-up frame %d was admitted", i+1)
		}
	}
	for i := 0; i < 5; i++ {
		if !s.admitFrame() {
			t.Fatalf("post-warm-up frame %d was discarded", i+1)
		}
	}
}

func TestRTSPWarmupZeroAdmitsEverything(t *testing.T) {
	s, err := NewRTSPSource(RTSPConfig{URL: "rtsp://10.0.0.5:8554/desk", Width: 640, Height: 480})
	if err != nil {
		t.Fatal(err)
	}
	if !s.admitFrame() {
		t.Fatal("first frame discarded with no warm-up configured")
	}
}
