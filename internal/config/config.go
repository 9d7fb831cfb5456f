package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete DeskPulse configuration. It is loaded
// once at startup and read-only thereafter.
type Config struct {
	InstanceID       string         `yaml:"instance_id"`
	ShutdownTimeoutS int            `yaml:"shutdown_timeout_s"` // graceful shutdown timeout in seconds (default: 5)
	Camera           CameraConfig   `yaml:"camera"`
	Pipeline         PipelineConfig `yaml:"pipeline"`
	Pose             PoseConfig     `yaml:"pose"`
	Posture          PostureConfig  `yaml:"posture"`
	Alert            AlertConfig    `yaml:"alert"`
	Store            StoreConfig    `yaml:"store"`
	MQTT             MQTTConfig     `yaml:"mqtt"`
	Viewer           ViewerConfig   `yaml:"viewer"`
}

// CameraConfig contains capture device settings
type CameraConfig struct {
	// DeviceIndex selects the local V4L2 device (/dev/video<N>)
	DeviceIndex int `yaml:"device_index"`
	// RTSPURL, when set, selects the RTSP source instead of the local device
	RTSPURL string `yaml:"rtsp_url"`
	// Resolution preset: 480p, 720p, 1080p
	Resolution string `yaml:"resolution"`
	// WarmupFrames is the number of frames discarded after open
	WarmupFrames int `yaml:"warmup_frames"`
	// QuickRetries is the bounded number of fast reconnect attempts
	QuickRetries int `yaml:"quick_retries"`
	// QuickRetryDelayMS is the delay between quick attempts
	QuickRetryDelayMS int `yaml:"quick_retry_delay_ms"`
	// LongRetryIntervalS is the wait between retry cycles while disconnected
	LongRetryIntervalS int `yaml:"long_retry_interval_s"`
}

// PipelineConfig contains worker loop settings
type PipelineConfig struct {
	// TargetRateHz is the per-cycle rate of the worker loop
	TargetRateHz float64 `yaml:"target_rate_hz"`
	// FaultPauseMS is the brief pause after a processing-stage fault
	FaultPauseMS int `yaml:"fault_pause_ms"`
}

// PoseConfig contains pose inference settings
type PoseConfig struct {
	ModelPath string `yaml:"model_path"`
	// InputSize is the square model input in pixels
	InputSize int `yaml:"input_size"`
	// PresenceConfidence is the minimum visibility for user_present
	PresenceConfidence float64 `yaml:"presence_confidence"`
}

// PostureConfig contains posture classification settings
type PostureConfig struct {
	// AngleThresholdDeg is the lean angle beyond which posture is bad
	AngleThresholdDeg float64 `yaml:"angle_threshold_deg"`
}

// AlertConfig contains alert tracker settings
type AlertConfig struct {
	// ThresholdS is the sustained bad-posture duration before an alert
	ThresholdS int `yaml:"threshold_s"`
	// CooldownS is the minimum gap between consecutive alerts
	CooldownS int `yaml:"cooldown_s"`
}

// StoreConfig contains posture-change journal settings
type StoreConfig struct {
	// Path is the append-only journal file; empty disables persistence
	Path string `yaml:"path"`
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	// Broker host:port; empty disables the MQTT surfaces entirely
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic templates
type MQTTTopics struct {
	Control string `yaml:"control"`
	Events  string `yaml:"events"`
	Health  string `yaml:"health"`
}

// ViewerConfig contains the websocket/HTTP viewer surface settings
type ViewerConfig struct {
	// ListenAddr for the HTTP server serving /ws, /health, /readiness
	ListenAddr string `yaml:"listen_addr"`
	// RelayTimeoutMS is the relay poll timeout used to notice disconnects
	RelayTimeoutMS int `yaml:"relay_timeout_ms"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
