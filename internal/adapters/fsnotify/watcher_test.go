package fsnotify

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitForCallback waits up to timeout for the callback channel to receive a value.
func waitForCallback(ch <-chan struct{}, timeout time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

func TestWatcher_DetectsFileChange(t *testing.T) {
	// Create a dataset file, start watching, modify it.
	// onChange fires after the write settles.
	dir := t.TempDir()
	dataFile := filepath.Join(dir, "section.h5ad")
	require.NoError(t, os.WriteFile(dataFile, []byte("v1"), 0644))

	w, err := NewWatcher()
	require.NoError(t, err)
	defer w.Stop()

	changed := make(chan struct{}, 10)
	err = w.Watch(dataFile, func() {
		changed <- struct{}{}
	})
	require.NoError(t, err)

	// Give the watcher time to start
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(dataFile, []byte("v2"), 0644))

	assert.True(t, waitForCallback(changed, 2*time.Second), "expected callback for file change")
}

func TestWatcher_DetectsRenameReplace(t *testing.T) {
	// Pipelines replace the dataset via save-and-rename. The directory
	// watch catches the new inode landing at the watched path.
	dir := t.TempDir()
	dataFile := filepath.Join(dir, "section.h5ad")
	require.NoError(t, os.WriteFile(dataFile, []byte("v1"), 0644))

	w, err := NewWatcher()
	require.NoError(t, err)
	defer w.Stop()

	changed := make(chan struct{}, 10)
	require.NoError(t, w.Watch(dataFile, func() {
		changed <- struct{}{}
	}))

	time.Sleep(50 * time.Millisecond)

	tmp := filepath.Join(dir, "section.h5ad.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("v2"), 0644))
	require.NoError(t, os.Rename(tmp, dataFile))

	assert.True(t, waitForCallback(changed, 2*time.Second), "expected callback for rename replace")
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	// Only the watched file triggers; other files in the directory don't.
	dir := t.TempDir()
	dataFile := filepath.Join(dir, "section.h5ad")
	require.NoError(t, os.WriteFile(dataFile, []byte("v1"), 0644))

	w, err := NewWatcher()
	require.NoError(t, err)
	defer w.Stop()

	changed := make(chan struct{}, 10)
	require.NoError(t, w.Watch(dataFile, func() {
		changed <- struct{}{}
	}))

	time.Sleep(50 * time.Millisecond)

	os.WriteFile(filepath.Join(dir, "other.h5ad"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644)

	assert.False(t, waitForCallback(changed, 600*time.Millisecond),
		"should not have received callback for sibling files")

	require.NoError(t, os.WriteFile(dataFile, []byte("v2"), 0644))
	assert.True(t, waitForCallback(changed, 2*time.Second), "expected callback for watched file")
}

func TestWatcher_DebouncesWriteBurst(t *testing.T) {
	// Many writes in quick succession collapse into one callback.
	dir := t.TempDir()
	dataFile := filepath.Join(dir, "section.h5ad")
	require.NoError(t, os.WriteFile(dataFile, []byte("v0"), 0644))

	w, err := NewWatcher()
	require.NoError(t, err)
	defer w.Stop()

	callCount := 0
	var mu sync.Mutex
	require.NoError(t, w.Watch(dataFile, func() {
		mu.Lock()
		callCount++
		mu.Unlock()
	}))

	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(dataFile, []byte{byte(i)}, 0644))
		time.Sleep(10 * time.Millisecond)
	}

	// Let the burst settle.
	time.Sleep(settleDelay + 500*time.Millisecond)

	mu.Lock()
	got := callCount
	mu.Unlock()
	assert.Equal(t, 1, got, "burst of writes should collapse into one callback")
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w, err := NewWatcher()
	require.NoError(t, err)
	defer w.Stop()

	err = w.Watch(filepath.Join(t.TempDir(), "nope", "section.h5ad"), func() {})
	assert.Error(t, err)
}

func TestWatcher_StopCleanup(t *testing.T) {
	// After Stop(), no more callbacks fire. Double-stop is safe.
	dir := t.TempDir()
	dataFile := filepath.Join(dir, "section.h5ad")
	require.NoError(t, os.WriteFile(dataFile, []byte("v1"), 0644))

	w, err := NewWatcher()
	require.NoError(t, err)

	callCount := 0
	var mu sync.Mutex
	require.NoError(t, w.Watch(dataFile, func() {
		mu.Lock()
		callCount++
		mu.Unlock()
	}))

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, w.Stop())

	mu.Lock()
	countAfterStop := callCount
	mu.Unlock()

	os.WriteFile(dataFile, []byte("v2"), 0644)
	time.Sleep(settleDelay + 200*time.Millisecond)

	mu.Lock()
	countAfterWrite := callCount
	mu.Unlock()

	assert.Equal(t, countAfterStop, countAfterWrite, "callbacks fired after Stop()")
	assert.NoError(t, w.Stop())
}
