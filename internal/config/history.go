package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var ErrRunNotFound = errors.New("run not found in history")

// DefaultHistoryLimit caps the stored runs when no limit is configured.
const DefaultHistoryLimit = 50

// HistoryOutcome is one provider's result within a stored run
type HistoryOutcome struct {
	Provider string `json:"provider"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Summary  string `json:"summary"`
}

// HistoryEntry represents a task run persisted in the history
type HistoryEntry struct {
	ID        string           `json:"id"`
	StartedAt time.Time        `json:"startedAt"`
	Duration  time.Duration    `json:"durationNs"`
	To        string           `json:"to"`
	Subject   string           `json:"subject"`
	Outcomes  []HistoryOutcome `json:"outcomes"`
}

// History manages run persistence, newest first
type History struct {
	Entries []HistoryEntry `json:"entries"`

	mu    sync.RWMutex
	path  string
	limit int
}

// HistoryPath returns the path to history.json
func HistoryPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.json"), nil
}

// LoadHistory reads the history at path from disk. A non-positive limit
// uses DefaultHistoryLimit.
func LoadHistory(path string, limit int) (*History, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	h := &History{
		Entries: []HistoryEntry{},
		path:    path,
		limit:   limit,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return h, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, h); err != nil {
		return nil, err
	}
	if h.Entries == nil {
		h.Entries = []HistoryEntry{}
	}
	return h, nil
}

// Save writes the history to disk with secure permissions
func (h *History) Save() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.saveLocked()
}

func (h *History) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(h.path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(h.path, data, 0600)
}

// Add records a run at the front and drops the oldest runs over the limit
func (h *History) Add(entry HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(entry.ID)
	h.Entries = append([]HistoryEntry{entry}, h.Entries...)
	if len(h.Entries) > h.limit {
		h.Entries = h.Entries[:h.limit]
	}
	return h.saveLocked()
}

// Get retrieves a run by ID
func (h *History) Get(id string) (*HistoryEntry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for i := range h.Entries {
		if h.Entries[i].ID == id {
			entry := h.Entries[i]
			return &entry, nil
		}
	}
	return nil, ErrRunNotFound
}

// List returns up to n runs, newest first. n <= 0 returns all.
func (h *History) List(n int) []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 || n > len(h.Entries) {
		n = len(h.Entries)
	}
	// Return copy to avoid race conditions
	result := make([]HistoryEntry, n)
	copy(result, h.Entries[:n])
	return result
}

// Clear removes every run and returns how many were removed
func (h *History) Clear() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.Entries)
	h.Entries = []HistoryEntry{}
	return n, h.saveLocked()
}

func (h *History) removeLocked(id string) bool {
	for i := range h.Entries {
		if h.Entries[i].ID == id {
			h.Entries = append(h.Entries[:i], h.Entries[i+1:]...)
			return true
		}
	}
	return false
}
