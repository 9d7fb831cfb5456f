package types

import "time"

// Frame represents a single video frame
type Frame struct {
	// Seq is the monotonic sequence number
	Seq uint64
	// Timestamp is when the frame was captured/decoded
	Timestamp time.Time
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Data contains the frame data (BGR24 format)
	Data []byte
	// TraceID is a unique identifier for tracing a frame across the pipeline
	TraceID string
}

// IsValid reports whether the frame carries a plausible pixel buffer.
// A frame whose buffer does not match its declared geometry is treated
// as malformed by every downstream stage.
func (f *Frame) IsValid() bool {
	if f == nil {
		return false
	}
	if f.Width <= 0 || f.Height <= 0 {
		return false
	}
	return len(f.Data) == f.Width*f.Height*3
}

// SourceStats contains frame source statistics
type SourceStats struct {
	FrameCount  uint64
	FPSTarget   float64
	FPSReal     float64
	Resolution  string
	Reconnects  uint32
	IsOpen      bool
	ReadErrors  uint64
	LastFrameAt time.Time
}
