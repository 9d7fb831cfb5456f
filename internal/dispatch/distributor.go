package dispatch

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/types"
)

// Distributor fans snapshots out from the shared buffer to any number of
// viewers. The producer pushes into the shared buffer; an internal relay
// loop drains it and copies the snapshot into each viewer's own
// single-slot mailbox. A slow or broken viewer only overwrites its own
// mailbox; it never blocks the producer or another viewer.
type Distributor struct {
	buf          *Buffer
	relayTimeout time.Duration

	mu      sync.Mutex
	viewers map[string]*viewerSlot
	closed  bool
	wg      sync.WaitGroup
}

type viewerSlot struct {
	mu     sync.Mutex
	cond   *sync.Cond
	snap   *types.Snapshot
	closed bool
	drops  uint64
}

// ViewerStats describes one attached viewer.
type ViewerStats struct {
	ID    string
	Drops uint64
}

// NewDistributor creates a distributor and starts its relay loop.
// relayTimeout bounds how long the loop blocks on the shared buffer so
// shutdown is noticed promptly.
func NewDistributor(relayTimeout time.Duration) *Distributor {
	d := &Distributor{
		buf:          NewBuffer(),
		relayTimeout: relayTimeout,
		viewers:      make(map[string]*viewerSlot),
	}
	d.wg.Add(1)
	go d.relayLoop()
	return d
}

// Publish pushes one snapshot toward all viewers. Never blocks.
func (d *Distributor) Publish(snap types.Snapshot) {
	d.buf.Push(snap)
}

// Buffer exposes the shared slot, mainly for stats.
func (d *Distributor) Buffer() *Buffer { return d.buf }

func (d *Distributor) relayLoop() {
	defer d.wg.Done()

	for {
		snap, ok := d.buf.Receive(d.relayTimeout)
		if d.buf.Closed() {
			return
		}
		if !ok {
			continue
		}

		d.mu.Lock()
		slots := make([]*viewerSlot, 0, len(d.viewers))
		for _, s := range d.viewers {
			slots = append(slots, s)
		}
		d.mu.Unlock()

		for _, s := range slots {
			s.deliver(snap)
		}
	}
}

func (s *viewerSlot) deliver(snap types.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.snap != nil {
		s.drops++
	}
	s.snap = &snap
	s.cond.Signal()
}

// receive blocks until a snapshot arrives, the viewer detaches, or the
// timeout elapses.
func (s *viewerSlot) receive(timeout time.Duration) (types.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()

	for s.snap == nil && !s.closed && time.Now().Before(deadline) {
		s.cond.Wait()
	}
	if s.snap == nil || s.closed {
		return types.Snapshot{}, false
	}

	snap := *s.snap
	s.snap = nil
	return snap, true
}

// Viewer is one attached consumer's handle onto the distributor.
type Viewer struct {
	id   string
	slot *viewerSlot
	d    *Distributor
}

// Receive blocks for the next snapshot. False means timeout or detach;
// check Detached to tell them apart.
func (v *Viewer) Receive(timeout time.Duration) (types.Snapshot, bool) {
	return v.slot.receive(timeout)
}

// Detached reports whether the viewer has been removed.
func (v *Viewer) Detached() bool {
	v.slot.mu.Lock()
	defer v.slot.mu.Unlock()
	return v.slot.closed
}

// ID returns the viewer's identifier.
func (v *Viewer) ID() string { return v.id }

// Close detaches the viewer. Idempotent.
func (v *Viewer) Close() { v.d.Detach(v.id) }

// Attach registers a viewer. Viewer IDs are unique per distributor.
func (d *Distributor) Attach(id string) (*Viewer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("distributor closed")
	}
	if _, exists := d.viewers[id]; exists {
		return nil, fmt.Errorf("viewer %q already attached", id)
	}

	slot := &viewerSlot{}
	slot.cond = sync.NewCond(&slot.mu)
	d.viewers[id] = slot

	slog.Info("viewer attached", "viewer_id", id, "viewers", len(d.viewers))

	return &Viewer{id: id, slot: slot, d: d}, nil
}

// Detach removes a viewer and wakes its blocked reader. Idempotent.
func (d *Distributor) Detach(id string) {
	d.mu.Lock()
	slot, ok := d.viewers[id]
	if ok {
		delete(d.viewers, id)
	}
	remaining := len(d.viewers)
	d.mu.Unlock()

	if !ok {
		return
	}

	slot.mu.Lock()
	slot.closed = true
	slot.snap = nil
	slot.cond.Broadcast()
	slot.mu.Unlock()

	slog.Info("viewer detached", "viewer_id", id, "viewers", remaining)
}

// ViewerCount returns the number of attached viewers.
func (d *Distributor) ViewerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.viewers)
}

// Viewers returns per-viewer stats.
func (d *Distributor) Viewers() []ViewerStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]ViewerStats, 0, len(d.viewers))
	for id, s := range d.viewers {
		s.mu.Lock()
		out = append(out, ViewerStats{ID: id, Drops: s.drops})
		s.mu.Unlock()
	}
	return out
}

// Close detaches all viewers and stops the relay loop. Idempotent.
func (d *Distributor) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	ids := make([]string, 0, len(d.viewers))
	for id := range d.viewers {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	for _, id := range ids {
		d.Detach(id)
	}
	d.buf.Close()
	d.wg.Wait()
}
