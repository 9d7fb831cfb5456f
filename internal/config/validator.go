package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Defaults applied by Validate when fields are unset.
const (
	DefaultTargetRateHz       = 10.0
	DefaultAngleThresholdDeg  = 15.0
	DefaultAlertThresholdS    = 600
	DefaultAlertCooldownS     = 300
	DefaultWarmupFrames       = 5
	DefaultQuickRetries       = 3
	DefaultQuickRetryDelayMS  = 500
	DefaultLongRetryIntervalS = 30
	DefaultFaultPauseMS       = 500
	DefaultPoseInputSize      = 256
	DefaultPresenceConfidence = 0.5
	DefaultRelayTimeoutMS     = 500
)

// Validate checks the configuration and fills in defaults. It is called
// once at startup; the config is never mutated afterwards.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.Camera.DeviceIndex < 0 && cfg.Camera.RTSPURL == "" {
		return fmt.Errorf("camera.device_index must be >= 0 when no rtsp_url is set")
	}
	switch cfg.Camera.Resolution {
	case "", "480p", "720p", "1080p":
	default:
		return fmt.Errorf("camera.resolution must be one of 480p/720p/1080p, got %q", cfg.Camera.Resolution)
	}
	if cfg.Camera.Resolution == "" {
		cfg.Camera.Resolution = "480p"
	}
	if cfg.Camera.WarmupFrames <= 0 {
		cfg.Camera.WarmupFrames = DefaultWarmupFrames
	}
	if cfg.Camera.QuickRetries <= 0 {
		cfg.Camera.QuickRetries = DefaultQuickRetries
	}
	if cfg.Camera.QuickRetryDelayMS <= 0 {
		cfg.Camera.QuickRetryDelayMS = DefaultQuickRetryDelayMS
	}
	if cfg.Camera.LongRetryIntervalS <= 0 {
		cfg.Camera.LongRetryIntervalS = DefaultLongRetryIntervalS
	}

	if cfg.Pipeline.TargetRateHz < 0 || cfg.Pipeline.TargetRateHz > 30 {
		return fmt.Errorf("pipeline.target_rate_hz must be between 0 and 30, got %.2f", cfg.Pipeline.TargetRateHz)
	}
	if cfg.Pipeline.TargetRateHz == 0 {
		cfg.Pipeline.TargetRateHz = DefaultTargetRateHz
	}
	if cfg.Pipeline.FaultPauseMS <= 0 {
		cfg.Pipeline.FaultPauseMS = DefaultFaultPauseMS
	}

	if cfg.Pose.ModelPath == "" {
		return fmt.Errorf("pose.model_path is required")
	}
	if cfg.Pose.InputSize <= 0 {
		cfg.Pose.InputSize = DefaultPoseInputSize
	}
	if cfg.Pose.PresenceConfidence < 0 || cfg.Pose.PresenceConfidence > 1 {
		return fmt.Errorf("pose.presence_confidence must be in [0,1], got %.2f", cfg.Pose.PresenceConfidence)
	}
	if cfg.Pose.PresenceConfidence == 0 {
		cfg.Pose.PresenceConfidence = DefaultPresenceConfidence
	}

	if cfg.Posture.AngleThresholdDeg < 0 || cfg.Posture.AngleThresholdDeg >= 90 {
		return fmt.Errorf("posture.angle_threshold_deg must be in [0,90), got %.1f", cfg.Posture.AngleThresholdDeg)
	}
	if cfg.Posture.AngleThresholdDeg == 0 {
		cfg.Posture.AngleThresholdDeg = DefaultAngleThresholdDeg
	}

	if cfg.Alert.ThresholdS < 0 {
		return fmt.Errorf("alert.threshold_s must be >= 0")
	}
	if cfg.Alert.ThresholdS == 0 {
		cfg.Alert.ThresholdS = DefaultAlertThresholdS
	}
	if cfg.Alert.CooldownS < 0 {
		return fmt.Errorf("alert.cooldown_s must be >= 0")
	}
	if cfg.Alert.CooldownS == 0 {
		cfg.Alert.CooldownS = DefaultAlertCooldownS
	}

	if cfg.Viewer.RelayTimeoutMS <= 0 {
		cfg.Viewer.RelayTimeoutMS = DefaultRelayTimeoutMS
	}

	// MQTT is optional; when a broker is configured the topics default
	// to a per-instance namespace.
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topics.Control == "" {
			cfg.MQTT.Topics.Control = fmt.Sprintf("deskpulse/control/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Events == "" {
			cfg.MQTT.Topics.Events = fmt.Sprintf("deskpulse/events/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Health == "" {
			cfg.MQTT.Topics.Health = fmt.Sprintf("deskpulse/health/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS == nil {
			cfg.MQTT.QoS = map[string]byte{
				"control":           1,
				"camera_status":     1,
				"alert_triggered":   1,
				"posture_corrected": 1,
				"posture_snapshot":  0,
				"monitoring_status": 0,
				"health":            0,
			}
		}
	}

	return nil
}

// Resolution returns the pixel dimensions for the configured preset.
func (c CameraConfig) ResolutionPixels() (width, height int) {
	switch c.Resolution {
	case "720p":
		return 1280, 720
	case "1080p":
		return 1920, 1080
	default:
		return 640, 480
	}
}
