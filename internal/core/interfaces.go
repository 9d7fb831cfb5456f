package core

import (
	"image/color"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/types"
)

// Detector turns a frame into landmarks plus a presence verdict.
type Detector interface {
	Detect(frame types.Frame) (types.Estimation, error)
}

// EventSink receives outbound monitoring events.
type EventSink interface {
	Publish(event types.Event) error
}

// RenderFunc draws a landmark overlay onto the frame.
type RenderFunc func(frame types.Frame, landmarks types.LandmarkSet, c color.RGBA) types.Frame

// EncodeFunc compresses a frame for transport.
type EncodeFunc func(frame types.Frame) ([]byte, error)

// nopSink drops events; used when no broker is configured.
type nopSink struct{}

func (nopSink) Publish(types.Event) error { return nil }
