// Package journal persists the records produced by assistant tool calls.
//
// Two file formats are supported, matching the two assistant kinds:
//
//   - [CheckinLog] — a growing JSON array of wellness check-in records.
//     Each save appends one record; the whole file is rewritten.
//   - [OrderFile] — a single JSON object holding the most recent coffee
//     order. Each save overwrites the previous order.
//
// Both types treat a missing or unparseable file as empty history: Load
// returns no records and no error, so a fresh deployment (or a corrupted
// file) never blocks a conversation from starting.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// indent matches the pretty-printed layout the files have always used so
// existing logs stay diffable.
const indent = "    "

// CheckinRecord is one completed wellness check-in.
type CheckinRecord struct {
	// Timestamp is when the check-in was saved, RFC 3339 in JSON.
	Timestamp time.Time `json:"timestamp"`

	// Mood is the user's self-reported mood, free text.
	Mood string `json:"mood"`

	// Energy is the user's self-reported energy level, free text.
	Energy string `json:"energy"`

	// Goals lists the user's goals for the day.
	Goals []string `json:"goals"`

	// Summary is a one-sentence recap generated by the model.
	Summary string `json:"summary"`
}

// CheckinLog is an append-only check-in journal bound to a single file path.
//
// Writes are serialised by an internal mutex, but the file itself carries no
// cross-process locking: the deployment model is one assistant session per
// process, same as the order file.
type CheckinLog struct {
	path string
	mu   sync.Mutex
}

// NewCheckinLog returns a log bound to path. The file is not created until
// the first Append.
func NewCheckinLog(path string) *CheckinLog {
	return &CheckinLog{path: path}
}

// Path returns the file path this log writes to.
func (l *CheckinLog) Path() string { return l.path }

// Load reads all records from the log file. A missing or corrupt file yields
// an empty slice and a nil error — prior history is a nicety, never a
// startup requirement.
func (l *CheckinLog) Load() []CheckinRecord {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil
	}
	var records []CheckinRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil
	}
	return records
}

// Last returns the most recent record, or ok=false when the log is empty.
func (l *CheckinLog) Last() (CheckinRecord, bool) {
	records := l.Load()
	if len(records) == 0 {
		return CheckinRecord{}, false
	}
	return records[len(records)-1], true
}

// Append adds r to the log, rewriting the whole file. Unlike loads, write
// failures are returned: a check-in the user just dictated must not vanish
// silently.
func (l *CheckinLog) Append(r CheckinRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records := l.Load()
	records = append(records, r)

	data, err := json.MarshalIndent(records, "", indent)
	if err != nil {
		return fmt.Errorf("journal: encode check-in log: %w", err)
	}
	if err := writeFileAtomic(l.path, data); err != nil {
		return fmt.Errorf("journal: write check-in log %q: %w", l.path, err)
	}
	return nil
}

// OrderRecord is one completed coffee order. All fields are free text; menu
// normalisation happens upstream of the journal.
type OrderRecord struct {
	DrinkType string   `json:"drinkType"`
	Size      string   `json:"size"`
	Milk      string   `json:"milk"`
	Extras    []string `json:"extras"`
	Name      string   `json:"name"`
}

// OrderFile holds the latest coffee order, bound to a single file path.
// Each Save replaces the file contents entirely.
type OrderFile struct {
	path string
	mu   sync.Mutex
}

// NewOrderFile returns an order file bound to path.
func NewOrderFile(path string) *OrderFile {
	return &OrderFile{path: path}
}

// Path returns the file path this order file writes to.
func (f *OrderFile) Path() string { return f.path }

// Load returns the stored order, or ok=false when the file is missing or
// unparseable.
func (f *OrderFile) Load() (OrderRecord, bool) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return OrderRecord{}, false
	}
	var r OrderRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return OrderRecord{}, false
	}
	return r, true
}

// Save overwrites the file with r.
func (f *OrderFile) Save(r OrderRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(r, "", indent)
	if err != nil {
		return fmt.Errorf("journal: encode order: %w", err)
	}
	if err := writeFileAtomic(f.path, data); err != nil {
		return fmt.Errorf("journal: write order file %q: %w", f.path, err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place, so a crash mid-write never leaves a truncated file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
