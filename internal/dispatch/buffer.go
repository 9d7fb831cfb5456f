// Package dispatch distributes result snapshots to viewers through a
// capacity-one latest-wins buffer and per-viewer relay loops.
package dispatch

import (
	"sync"
	"time"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/types"
)

// Buffer is a single-slot mailbox. Push always succeeds: if the slot is
// occupied the old snapshot is silently replaced, so memory stays
// bounded no matter how slow the consumer is. Receive consumes the slot.
type Buffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	snap   *types.Snapshot
	closed bool

	pushes uint64
	drops  uint64
}

// BufferStats counts buffer traffic.
type BufferStats struct {
	Pushes   uint64
	Drops    uint64
	Occupied bool
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	b := &Buffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Push inserts a snapshot, replacing any unconsumed one.
func (b *Buffer) Push(snap types.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if b.snap != nil {
		b.drops++
	}
	b.snap = &snap
	b.pushes++
	b.cond.Signal()
}

// Receive blocks until a snapshot is available, the buffer closes, or
// the timeout elapses. The second return is false on timeout or close.
func (b *Buffer) Receive(timeout time.Duration) (types.Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer timer.Stop()

	for b.snap == nil && !b.closed && time.Now().Before(deadline) {
		b.cond.Wait()
	}
	if b.snap == nil {
		return types.Snapshot{}, false
	}

	snap := *b.snap
	b.snap = nil
	return snap, true
}

// TryReceive consumes the slot without blocking.
func (b *Buffer) TryReceive() (types.Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.snap == nil {
		return types.Snapshot{}, false
	}
	snap := *b.snap
	b.snap = nil
	return snap, true
}

// Close wakes all blocked receivers. Push becomes a no-op. Idempotent.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.cond.Broadcast()
}

// Closed reports whether Close was called.
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Stats returns traffic counters.
func (b *Buffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Pushes:   b.pushes,
		Drops:    b.drops,
		Occupied: b.snap != nil,
	}
}
