package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/capture"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/config"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/control"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/core"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/emitter"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/liveness"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/pose"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/store"
)

const defaultConfigPath = "config/deskpulse.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting deskpulse service",
		"config", *configPath,
		"debug", *debug,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	source, err := buildSource(cfg)
	if err != nil {
		slog.Error("failed to create capture source", "error", err)
		os.Exit(1)
	}

	estimator, err := pose.NewEstimator(pose.Config{
		ModelPath:          cfg.Pose.ModelPath,
		InputSize:          cfg.Pose.InputSize,
		PresenceConfidence: cfg.Pose.PresenceConfidence,
	})
	if err != nil {
		slog.Error("failed to load pose model", "error", err, "path", cfg.Pose.ModelPath)
		os.Exit(1)
	}
	defer estimator.Close()

	var journal *store.Journal
	if cfg.Store.Path != "" {
		journal, err = store.Open(cfg.Store.Path)
		if err != nil {
			slog.Error("failed to open posture journal", "error", err, "path", cfg.Store.Path)
			os.Exit(1)
		}
	}

	// An empty broker disables the MQTT surfaces entirely: no emitter,
	// no control plane, events stay local.
	var sink core.EventSink
	var mqttEmitter *emitter.MQTTEmitter
	if mqttEnabled(cfg) {
		mqttEmitter = emitter.NewMQTTEmitter(cfg)
		if err := mqttEmitter.Connect(ctx); err != nil {
			// The emitter reconnects on its own; a cold broker at boot
			// is not fatal for local monitoring.
			slog.Warn("mqtt broker unavailable at startup", "error", err, "broker", cfg.MQTT.Broker)
		}
		defer mqttEmitter.Disconnect()
		sink = mqttEmitter
	} else {
		slog.Info("mqtt disabled, no broker configured")
	}

	pipeline, err := core.NewPipeline(cfg, core.Deps{
		Source:   source,
		Detector: estimator,
		Sink:     sink,
		Journal:  journal,
		Live:     liveness.NewReporter(),
		Render:   pose.RenderOverlay,
		Encode:   pose.EncodeJPEG,
	})
	if err != nil {
		slog.Error("failed to create pipeline", "error", err)
		os.Exit(1)
	}

	if mqttEmitter != nil {
		handler := control.NewHandler(cfg, mqttEmitter.Client, pipeline.Callbacks())
		if err := handler.Start(ctx); err != nil {
			slog.Warn("control channel unavailable", "error", err)
		}
		defer handler.Stop()
	}

	pipeline.StartViewerServer()

	errChan := make(chan error, 1)
	go func() {
		errChan <- pipeline.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errChan:
		if err != nil {
			slog.Error("pipeline error", "error", err)
		} else {
			slog.Info("pipeline stopped (via control command)")
		}
	}

	shutdownTimeout := pipeline.ShutdownTimeout()
	slog.Info("shutting down gracefully", "timeout", shutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := pipeline.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
		os.Exit(1)
	}

	slog.Info("deskpulse service stopped")
}

// mqttEnabled reports whether the emitter and control plane should be
// wired at all.
func mqttEnabled(cfg *config.Config) bool {
	return cfg.MQTT.Broker != ""
}

// buildSource picks RTSP when a stream URL is configured, otherwise the
// local V4L2 webcam.
func buildSource(cfg *config.Config) (capture.Source, error) {
	width, height := cfg.Camera.ResolutionPixels()

	if cfg.Camera.RTSPURL != "" {
		return capture.NewRTSPSource(capture.RTSPConfig{
			URL:          cfg.Camera.RTSPURL,
			Width:        width,
			Height:       height,
			WarmupFrames: cfg.Camera.WarmupFrames,
		})
	}
	return capture.NewWebcamSource(capture.WebcamConfig{
		DeviceIndex:  cfg.Camera.DeviceIndex,
		Width:        width,
		Height:       height,
		WarmupFrames: cfg.Camera.WarmupFrames,
	})
}
