package fsys

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/spak/internal/asset"
	"github.com/jchantrell/spak/internal/testutil"
)

// touch rewrites name and pushes its modification time forward so the
// change is visible on filesystems with coarse timestamps.
func touch(t *testing.T, dir, name string, data []byte, offset time.Duration) {
	t.Helper()
	full := testutil.WriteFile(t, dir, name, data)
	when := time.Now().Add(offset)
	require.NoError(t, os.Chtimes(full, when, when))
}

func newHotReload(t *testing.T, dir string, opts Options) *HotReload {
	t.Helper()
	h, err := NewHotReload(dir, opts)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHotReloadUpdate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, dir, "shader.glsl", []byte("v1"), -time.Hour)
	touch(t, dir, "other.glsl", []byte("stable"), -time.Hour)

	var reloaded []string
	h := newHotReload(t, dir, Options{OnReload: func(p string) { reloaded = append(reloaded, p) }})

	got, err := h.Fetch("shader.glsl")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
	_, err = h.Fetch("other.glsl")
	require.NoError(t, err)
	assert.Equal(t, []string{"other.glsl", "shader.glsl"}, h.Tracked())

	changed, err := h.Update()
	require.NoError(t, err)
	assert.Empty(t, changed)

	touch(t, dir, "shader.glsl", []byte("version 2"), 0)

	changed, err = h.Update()
	require.NoError(t, err)
	assert.Equal(t, []string{"shader.glsl"}, changed)
	assert.Equal(t, []string{"shader.glsl"}, reloaded)

	got, err = h.Fetch("shader.glsl")
	require.NoError(t, err)
	assert.Equal(t, []byte("version 2"), got)
}

func TestHotReloadServesTrackedCopy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, dir, "a.txt", []byte("original"), -time.Hour)

	h := newHotReload(t, dir, Options{})
	got, err := h.Fetch("a.txt")
	require.NoError(t, err)
	got[0] = 'X'

	// Changes only become visible through Update.
	touch(t, dir, "a.txt", []byte("rewritten"), 0)
	again, err := h.Fetch("a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}

func TestHotReloadDeletedFileIsDropped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, dir, "gone.txt", []byte("bye"), -time.Hour)

	h := newHotReload(t, dir, Options{})
	_, err := h.Fetch("gone.txt")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "gone.txt")))

	changed, err := h.Update()
	require.NoError(t, err)
	assert.Equal(t, []string{"gone.txt"}, changed)
	assert.Empty(t, h.Tracked())

	_, err = h.Fetch("gone.txt")
	assert.ErrorIs(t, err, asset.ErrNotFound)
}

func TestHotReloadMetadata(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, dir, "a.txt", []byte("a"), -time.Hour)
	testutil.WriteFile(t, dir, "a.txt"+MetaSuffix, []byte(`{"rev": 1}`))

	h := newHotReload(t, dir, Options{})

	meta, err := h.FetchMetadata("a.txt")
	require.NoError(t, err)
	assert.Equal(t, asset.Metadata{"rev": float64(1)}, meta)

	_, err = h.Fetch("a.txt")
	require.NoError(t, err)
	testutil.WriteFile(t, dir, "a.txt"+MetaSuffix, []byte(`{"rev": 2}`))
	touch(t, dir, "a.txt", []byte("ab"), 0)

	_, err = h.Update()
	require.NoError(t, err)
	meta, err = h.FetchMetadata("a.txt")
	require.NoError(t, err)
	assert.Equal(t, asset.Metadata{"rev": float64(2)}, meta)
}

func TestHotReloadMissingLenient(t *testing.T) {
	t.Parallel()

	h := newHotReload(t, t.TempDir(), Options{Policy: asset.LenientPolicy(nil)})
	got, err := h.Fetch("missing")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, h.Tracked())
}

func TestWatcherReportsChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, dir, "live.txt", []byte("one"), -time.Hour)

	h := newHotReload(t, dir, Options{})
	_, err := h.Fetch("live.txt")
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []string
	w := NewWatcher(h, 10*time.Millisecond, func(paths []string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, paths...)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	touch(t, dir, "live.txt", []byte("two two"), 0)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	assert.Equal(t, "live.txt", seen[0])
	mu.Unlock()

	got, err := h.Fetch("live.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("two two"), got)
}
