// Package store appends posture-change records to an append-only
// journal consumed by an external analytics collaborator. The journal is
// write-only from this process; it is never read back.
package store

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/types"
)

// Journal is a length-prefixed msgpack record log. Records are framed as
// a 4-byte big-endian length followed by the msgpack body, and each
// append is synced so a crash loses at most the record being written.
type Journal struct {
	mu   sync.Mutex
	f    *os.File
	path string

	appends uint64
	errors  uint64
}

// Open creates or appends to the journal at path, creating parent
// directories as needed.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	slog.Info("posture journal opened", "path", path)
	return &Journal{f: f, path: path}, nil
}

// Append writes one posture-change record.
func (j *Journal) Append(rec types.PostureChangeRecord) error {
	body, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding posture record: %w", err)
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.f == nil {
		return fmt.Errorf("journal closed")
	}
	if _, err := j.f.Write(header[:]); err != nil {
		j.errors++
		return fmt.Errorf("writing record header: %w", err)
	}
	if _, err := j.f.Write(body); err != nil {
		j.errors++
		return fmt.Errorf("writing record body: %w", err)
	}
	if err := j.f.Sync(); err != nil {
		j.errors++
		return fmt.Errorf("syncing journal: %w", err)
	}

	j.appends++
	return nil
}

// Stats contains journal counters.
type Stats struct {
	Appends uint64
	Errors  uint64
}

// Stats returns append counters.
func (j *Journal) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Stats{Appends: j.appends, Errors: j.errors}
}

// Close closes the underlying file. Idempotent.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil

	slog.Info("posture journal closed", "path", j.path, "appends", j.appends)
	return err
}
