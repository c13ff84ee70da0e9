package history

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// jsonlRecord is the on-disk line format: an Entry plus its session key.
type jsonlRecord struct {
	Session string `json:"session"`
	Entry
}

// FileStore is a [Store] that appends JSON lines to a single file. Lines
// that fail to parse on read are skipped, so a torn final line from a crash
// does not poison the whole archive.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store writing to path. The file is created on the
// first WriteEntry.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) WriteEntry(_ context.Context, sessionID string, e Entry) error {
	line, err := json.Marshal(jsonlRecord{Session: sessionID, Entry: e})
	if err != nil {
		return fmt.Errorf("history: encode entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("history: open %q: %w", s.path, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("history: append to %q: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) Entries(_ context.Context, sessionID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: open %q: %w", s.path, err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec jsonlRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if rec.Session != sessionID {
			continue
		}
		entries = append(entries, rec.Entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("history: scan %q: %w", s.path, err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func (s *FileStore) Close() error { return nil }
