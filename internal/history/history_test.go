package history_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/averro/voiceline/internal/history"
)

func TestFileStore_RoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "transcripts.jsonl")
	s := history.NewFileStore(path)
	defer s.Close()
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	writes := []history.Entry{
		{Role: history.RoleUser, Text: "hello", Timestamp: base},
		{Role: history.RoleAssistant, Text: "hi there", Timestamp: base.Add(time.Second)},
		{Role: history.RoleUser, Text: "I feel good", Timestamp: base.Add(2 * time.Second)},
	}
	for _, e := range writes {
		if err := s.WriteEntry(ctx, "sess-a", e); err != nil {
			t.Fatalf("WriteEntry: %v", err)
		}
	}
	// A second session interleaved in the same file.
	if err := s.WriteEntry(ctx, "sess-b", history.Entry{Role: history.RoleUser, Text: "other"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Entries(ctx, "sess-a", 0)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries for sess-a, want 3", len(got))
	}
	if got[0].Text != "hello" || got[2].Text != "I feel good" {
		t.Errorf("entries out of order: %+v", got)
	}
}

func TestFileStore_Limit(t *testing.T) {
	t.Parallel()
	s := history.NewFileStore(filepath.Join(t.TempDir(), "t.jsonl"))
	defer s.Close()
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		if err := s.WriteEntry(ctx, "s", history.Entry{Role: history.RoleUser, Text: text}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Entries(ctx, "s", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Text != "two" || got[1].Text != "three" {
		t.Errorf("limit kept wrong tail: %+v", got)
	}
}

func TestFileStore_MissingFile(t *testing.T) {
	t.Parallel()
	s := history.NewFileStore(filepath.Join(t.TempDir(), "absent.jsonl"))
	defer s.Close()

	got, err := s.Entries(context.Background(), "s", 0)
	if err != nil {
		t.Fatalf("Entries on missing file: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d entries from missing file", len(got))
	}
}

func TestFileStore_SkipsTornLines(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "t.jsonl")
	s := history.NewFileStore(path)
	defer s.Close()
	ctx := context.Background()

	if err := s.WriteEntry(ctx, "s", history.Entry{Role: history.RoleUser, Text: "intact"}); err != nil {
		t.Fatal(err)
	}
	// Simulate a crash mid-append.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"session":"s","role":"us`); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := s.Entries(ctx, "s", 0)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(got) != 1 || got[0].Text != "intact" {
		t.Errorf("torn line not skipped: %+v", got)
	}
}

func TestMemStore(t *testing.T) {
	t.Parallel()
	s := history.NewMemStore()
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.WriteEntry(ctx, "s", history.Entry{Role: history.RoleUser, Text: "msg"}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.Entries(ctx, "s", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("limit ignored: got %d entries", len(got))
	}
	other, err := s.Entries(ctx, "unknown", 0)
	if err != nil || len(other) != 0 {
		t.Errorf("unknown session returned %d entries, err=%v", len(other), err)
	}
}
