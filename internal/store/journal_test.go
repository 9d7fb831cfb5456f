package store

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/types"
)

func testRecord(state string) types.PostureChangeRecord {
	return types.PostureChangeRecord{
		Timestamp:   time.Now().UTC().Truncate(time.Millisecond),
		State:       state,
		UserPresent: true,
		Confidence:  0.92,
		Metadata:    map[string]string{"instance": "test"},
	}
}

func TestJournalAppendAndFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events", "journal.bin")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	records := []types.PostureChangeRecord{
		testRecord("bad"),
		testRecord("good"),
		testRecord("unknown"),
	}
	for _, rec := range records {
		if err := j.Append(rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if stats := j.Stats(); stats.Appends != 3 || stats.Errors != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	// Decode frames back the way the downstream consumer would.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}

	var got []types.PostureChangeRecord
	for len(raw) > 0 {
		if len(raw) < 4 {
			t.Fatalf("truncated header, %d bytes left", len(raw))
		}
		n := binary.BigEndian.Uint32(raw[:4])
		raw = raw[4:]
		if uint32(len(raw)) < n {
			t.Fatalf("truncated body, want %d bytes, have %d", n, len(raw))
		}
		var rec types.PostureChangeRecord
		if err := msgpack.Unmarshal(raw[:n], &rec); err != nil {
			t.Fatalf("decode: %v", err)
		}
		got = append(got, rec)
		raw = raw[n:]
	}

	if len(got) != len(records) {
		t.Fatalf("decoded %d records, want %d", len(got), len(records))
	}
	for i, rec := range got {
		if rec.State != records[i].State {
			t.Errorf("record %d state = %s, want %s", i, rec.State, records[i].State)
		}
		if !rec.UserPresent {
			t.Errorf("record %d lost user_present", i)
		}
	}
}

func TestJournalAppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.bin")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := j.Append(testRecord("bad")); err != nil {
		t.Fatalf("append: %v", err)
	}
	j.Close()

	j, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := j.Append(testRecord("good")); err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	j.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("journal empty after two appends")
	}
}

func TestJournalClosedAppendFails(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.bin"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	j.Close()
	j.Close()

	if err := j.Append(testRecord("bad")); err == nil {
		t.Fatal("append on closed journal succeeded")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("empty path accepted")
	}
}
