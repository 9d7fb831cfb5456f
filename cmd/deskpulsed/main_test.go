package main

import (
	"testing"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/capture"
	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/config"
)

func TestMQTTDisabledWithoutBroker(t *testing.T) {
	cfg := &config.Config{}
	if mqttEnabled(cfg) {
		t.Error("empty broker should disable the MQTT surfaces")
	}

	cfg.MQTT.Broker = "localhost:1883"
	if !mqttEnabled(cfg) {
		t.Error("configured broker should enable the MQTT surfaces")
	}
}

func TestBuildSourceSelection(t *testing.T) {
	cfg := &config.Config{}
	cfg.Camera.Resolution = "480p"

	src, err := buildSource(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := src.(*capture.WebcamSource); !ok {
		t.Errorf("source = %T, want webcam", src)
	}

	cfg.Camera.RTSPURL = "rtsp://10.0.0.5:8554/desk"
	src, err = buildSource(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := src.(*capture.RTSPSource); !ok {
		t.Errorf("source = %T, want rtsp", src)
	}
}
