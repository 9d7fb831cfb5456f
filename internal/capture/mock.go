package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/types"
)

// MockSource is a scripted frame source for tests and bench setups.
// Each Read consumes one step from the script; when the script runs out
// the source keeps producing synthetic frames.
type MockSource struct {
	width  int
	height int

	mu     sync.Mutex
	script []MockStep
	pos    int
	open   bool

	seq          uint64
	OpenCalls    int
	ReleaseCalls int
	OpenErr      error
}

// MockStep describes the outcome of a single Read call.
type MockStep struct {
	OK  bool
	Err error
}

// NewMockSource creates a mock producing width x height synthetic frames.
func NewMockSource(width, height int, script ...MockStep) *MockSource {
	return &MockSource{width: width, height: height, script: script}
}

// Script replaces the remaining read script.
func (m *MockSource) Script(steps ...MockStep) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = steps
	m.pos = 0
}

func (m *MockSource) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenCalls++
	if m.OpenErr != nil {
		return m.OpenErr
	}
	m.open = true
	return nil
}

func (m *MockSource) Read() (types.Frame, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pos < len(m.script) {
		step := m.script[m.pos]
		m.pos++
		if step.Err != nil {
			return types.Frame{}, false, step.Err
		}
		if !step.OK {
			return types.Frame{}, false, nil
		}
	}
	return m.synthFrame(), true, nil
}

func (m *MockSource) synthFrame() types.Frame {
	return types.Frame{
		Seq:       atomic.AddUint64(&m.seq, 1),
		Timestamp: time.Now(),
		Width:     m.width,
		Height:    m.height,
		Data:      make([]byte, m.width*m.height*3),
		TraceID:   uuid.New().String(),
	}
}

func (m *MockSource) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReleaseCalls++
	m.open = false
}

func (m *MockSource) Stats() types.SourceStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return types.SourceStats{
		FrameCount: atomic.LoadUint64(&m.seq),
		Resolution: fmt.Sprintf("%dx%d", m.width, m.height),
		IsOpen:     m.open,
	}
}
