package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper to create a test run
func testEntry(id string) HistoryEntry {
	return HistoryEntry{
		ID:        id,
		StartedAt: time.Now(),
		Duration:  2 * time.Second,
		To:        "test@example.com",
		Subject:   "Meeting",
		Outcomes: []HistoryOutcome{
			{Provider: "gmail", Status: "Success", Summary: "Success"},
			{Provider: "outlook", Status: "Failure", Reason: "BotDetection", Summary: "Failed: Authentication failed: Bot detection triggered"},
		},
	}
}

// Helper to create history with temp directory
func setupHistory(t *testing.T, limit int) (*History, string) {
	path := filepath.Join(t.TempDir(), "history.json")
	h, err := LoadHistory(path, limit)
	require.NoError(t, err)
	return h, path
}

func TestLoadHistory(t *testing.T) {
	t.Run("missing file creates empty history", func(t *testing.T) {
		h, _ := setupHistory(t, 10)
		assert.Empty(t, h.List(0))
	})

	t.Run("loads existing runs", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "history.json")
		data := `{"entries":[{"id":"run-1","to":"a@b.com","outcomes":[{"provider":"gmail","status":"Success","summary":"Success"}]}]}`
		require.NoError(t, os.WriteFile(path, []byte(data), 0644))

		h, err := LoadHistory(path, 10)
		require.NoError(t, err)
		require.Len(t, h.List(0), 1)
		assert.Equal(t, "a@b.com", h.List(0)[0].To)
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "history.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

		_, err := LoadHistory(path, 10)
		assert.Error(t, err)
	})

	t.Run("default path under config dir", func(t *testing.T) {
		dir := setupDir(t)
		path, err := HistoryPath()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "history.json"), path)
	})
}

func TestHistory_Add(t *testing.T) {
	t.Run("newest first and persisted", func(t *testing.T) {
		h, path := setupHistory(t, 10)
		require.NoError(t, h.Add(testEntry("run-1")))
		require.NoError(t, h.Add(testEntry("run-2")))

		reloaded, err := LoadHistory(path, 10)
		require.NoError(t, err)
		entries := reloaded.List(0)
		require.Len(t, entries, 2)
		assert.Equal(t, "run-2", entries[0].ID)
		assert.Equal(t, "run-1", entries[1].ID)
		assert.Equal(t, "BotDetection", entries[0].Outcomes[1].Reason)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})

	t.Run("capped at limit", func(t *testing.T) {
		h, _ := setupHistory(t, 3)
		for i := 1; i <= 5; i++ {
			require.NoError(t, h.Add(testEntry(fmt.Sprintf("run-%d", i))))
		}

		entries := h.List(0)
		require.Len(t, entries, 3)
		assert.Equal(t, "run-5", entries[0].ID)
		assert.Equal(t, "run-3", entries[2].ID)
	})

	t.Run("same id replaces", func(t *testing.T) {
		h, _ := setupHistory(t, 10)
		require.NoError(t, h.Add(testEntry("run-1")))
		require.NoError(t, h.Add(testEntry("run-2")))
		require.NoError(t, h.Add(testEntry("run-1")))

		entries := h.List(0)
		require.Len(t, entries, 2)
		assert.Equal(t, "run-1", entries[0].ID)
	})

	t.Run("non-positive limit uses default", func(t *testing.T) {
		h, _ := setupHistory(t, 0)
		assert.Equal(t, DefaultHistoryLimit, h.limit)
	})
}

func TestHistory_GetListClear(t *testing.T) {
	h, path := setupHistory(t, 10)
	for i := 1; i <= 4; i++ {
		require.NoError(t, h.Add(testEntry(fmt.Sprintf("run-%d", i))))
	}

	entry, err := h.Get("run-2")
	require.NoError(t, err)
	assert.Equal(t, "run-2", entry.ID)

	_, err = h.Get("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	assert.Len(t, h.List(2), 2)
	assert.Len(t, h.List(100), 4)

	n, err := h.Clear()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	reloaded, err := LoadHistory(path, 10)
	require.NoError(t, err)
	assert.Empty(t, reloaded.List(0))
}

func TestHistory_ListReturnsCopy(t *testing.T) {
	h, _ := setupHistory(t, 10)
	require.NoError(t, h.Add(testEntry("run-1")))

	entries := h.List(0)
	entries[0].ID = "changed"
	assert.Equal(t, "run-1", h.List(0)[0].ID)
}

func TestHistory_ConcurrentAdd(t *testing.T) {
	h, _ := setupHistory(t, 100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, h.Add(testEntry(fmt.Sprintf("run-%d", i))))
		}(i)
	}
	wg.Wait()

	assert.Len(t, h.List(0), 10)
}
