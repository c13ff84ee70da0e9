// Package history archives conversation transcripts.
//
// Every final user utterance and every assistant reply is written as an
// [Entry] keyed by session ID. Two stores ship in-repo: a JSONL file store
// (the default, zero infrastructure) and a PostgreSQL store for deployments
// that want transcripts queryable alongside other data. A memory store backs
// tests.
package history

import (
	"context"
	"sync"
	"time"
)

// Roles used in transcript entries.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one line of conversation.
type Entry struct {
	// Role is who spoke: [RoleUser] or [RoleAssistant].
	Role string `json:"role"`

	// Text is the utterance, post-STT for users and pre-TTS for assistants.
	Text string `json:"text"`

	// Timestamp is when the entry was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// Store persists transcript entries. Implementations must be safe for
// concurrent use.
type Store interface {
	// WriteEntry appends e to the transcript of sessionID.
	WriteEntry(ctx context.Context, sessionID string, e Entry) error

	// Entries returns up to limit most recent entries for sessionID in
	// chronological order. limit <= 0 means no limit.
	Entries(ctx context.Context, sessionID string, limit int) ([]Entry, error)

	// Close releases the store's resources.
	Close() error
}

// MemStore is an in-memory [Store] for tests and ephemeral runs.
type MemStore struct {
	mu      sync.Mutex
	entries map[string][]Entry
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string][]Entry)}
}

func (s *MemStore) WriteEntry(_ context.Context, sessionID string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = append(s.entries[sessionID], e)
	return nil
}

func (s *MemStore) Entries(_ context.Context, sessionID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.entries[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]Entry(nil), all...), nil
}

func (s *MemStore) Close() error { return nil }
