package transcript

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pithecene-io/sluice/types"
)

func TestDeriveDay(t *testing.T) {
	// 23:30 UTC-8 rolls into the next UTC day
	loc := time.FixedZone("UTC-8", -8*60*60)
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"utc midday", time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC), "2026-02-03"},
		{"local evening crosses day", time.Date(2026, 2, 3, 23, 30, 0, 0, loc), "2026-02-04"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveDay(tt.t); got != tt.want {
				t.Errorf("DeriveDay() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewFSStore_RequiresRoot(t *testing.T) {
	if _, err := NewFSStore(""); err == nil {
		t.Error("NewFSStore(\"\") should fail")
	}
}

func TestFSStore_AppendAndOpen(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	defer store.Close()

	batch1 := []*Record{
		NewOpenRecord(testMeta()),
		NewFragmentRecord("sess-001", 2, "hello "),
	}
	batch2 := []*Record{
		NewFragmentRecord("sess-001", 3, "world\n"),
		NewCloseRecord("sess-001", 4, types.OutcomeCompleted, "", 2, 12),
	}

	if err := store.Append(t.Context(), "sess-001", batch1); err != nil {
		t.Fatalf("Append batch1 failed: %v", err)
	}
	if err := store.Append(t.Context(), "sess-001", batch2); err != nil {
		t.Fatalf("Append batch2 failed: %v", err)
	}

	rc, err := store.Open(t.Context(), "sess-001")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	records, err := ReadAll(rc)
	if cerr := rc.Close(); cerr != nil {
		t.Errorf("Close failed: %v", cerr)
	}
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}
	if records[0].Kind != RecordKindOpen {
		t.Errorf("records[0].Kind = %q, want open", records[0].Kind)
	}
	if records[3].Kind != RecordKindClose {
		t.Errorf("records[3].Kind = %q, want close", records[3].Kind)
	}
	for i, rec := range records {
		if rec.Seq != int64(i+1) {
			t.Errorf("records[%d].Seq = %d, want %d", i, rec.Seq, i+1)
		}
	}
}

func TestFSStore_FileLayout(t *testing.T) {
	root := t.TempDir()
	store, err := NewFSStore(root)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	if err := store.Append(t.Context(), "sess-001", []*Record{NewOpenRecord(testMeta())}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	want := filepath.Join(root, "day="+DeriveDay(time.Now()), "sess-001.slt")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("transcript file not at %s: %v", want, err)
	}
}

func TestFSStore_EmptyAppendIsNoop(t *testing.T) {
	root := t.TempDir()
	store, err := NewFSStore(root)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	if err := store.Append(t.Context(), "sess-001", nil); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	refs, err := store.List(t.Context())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("got %d refs after empty append, want 0", len(refs))
	}
}

func TestFSStore_OpenUnknownSession(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	_, err = store.Open(t.Context(), "no-such-session")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Open = %v, want ErrSessionNotFound", err)
	}
}

// A fresh store on the same root must find transcripts written by an
// earlier process.
func TestFSStore_OpenAcrossInstances(t *testing.T) {
	root := t.TempDir()

	writer, err := NewFSStore(root)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	if err := writer.Append(t.Context(), "sess-001", []*Record{NewOpenRecord(testMeta())}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	reader, err := NewFSStore(root)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	rc, err := reader.Open(t.Context(), "sess-001")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	records, err := ReadAll(rc)
	if cerr := rc.Close(); cerr != nil {
		t.Errorf("Close failed: %v", cerr)
	}
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(records) != 1 || records[0].Kind != RecordKindOpen {
		t.Errorf("got %d records, want single open record", len(records))
	}
}

func TestFSStore_List(t *testing.T) {
	root := t.TempDir()
	store, err := NewFSStore(root)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	for _, id := range []string{"sess-b", "sess-a"} {
		if err := store.Append(t.Context(), id, []*Record{NewOpenRecord(testMeta())}); err != nil {
			t.Fatalf("Append %s failed: %v", id, err)
		}
	}

	// Simulate a transcript left over from an earlier day
	oldDir := filepath.Join(root, "day=2020-01-01")
	if err := os.MkdirAll(oldDir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	data, err := encodeBatch([]*Record{NewOpenRecord(testMeta())})
	if err != nil {
		t.Fatalf("encodeBatch failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(oldDir, "sess-old.slt"), data, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	refs, err := store.List(t.Context())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(refs) != 3 {
		t.Fatalf("got %d refs, want 3", len(refs))
	}

	// Most recent day first, session id ascending within a day
	if refs[0].SessionID != "sess-a" || refs[1].SessionID != "sess-b" {
		t.Errorf("today's refs = %q, %q, want sess-a, sess-b", refs[0].SessionID, refs[1].SessionID)
	}
	if refs[2].SessionID != "sess-old" || refs[2].Day != "2020-01-01" {
		t.Errorf("refs[2] = %+v, want sess-old on 2020-01-01", refs[2])
	}
	today := DeriveDay(time.Now())
	if refs[0].Day != today {
		t.Errorf("refs[0].Day = %q, want %q", refs[0].Day, today)
	}
}
