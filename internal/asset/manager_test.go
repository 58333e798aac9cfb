package asset_test

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/spak/internal/asset"
	"github.com/jchantrell/spak/internal/pak"
	"github.com/jchantrell/spak/internal/testutil"
)

func newManager(t *testing.T, src asset.Source, capacity int) *asset.Manager {
	t.Helper()
	m, err := asset.NewManager(src, capacity)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestNewManagerValidates(t *testing.T) {
	t.Parallel()

	_, err := asset.NewManager(nil, 4)
	assert.Error(t, err)

	_, err = asset.NewManager(testutil.NewCountingSource(nil), 0)
	assert.Error(t, err)
}

func TestGetAssetHitsCache(t *testing.T) {
	t.Parallel()

	src := testutil.NewCountingSource(map[string][]byte{"a": []byte("alpha")})
	m := newManager(t, src, 4)

	for range 3 {
		got, err := m.GetAsset("a")
		require.NoError(t, err)
		assert.Equal(t, []byte("alpha"), got)
	}
	assert.Equal(t, 1, src.Fetches("a"))

	stats := m.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, 1, stats.Len)
}

func TestGetAssetReturnsCopies(t *testing.T) {
	t.Parallel()

	src := testutil.NewCountingSource(map[string][]byte{"a": []byte("alpha")})
	m := newManager(t, src, 4)

	first, err := m.GetAsset("a")
	require.NoError(t, err)
	first[0] = 'X'

	second, err := m.GetAsset("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("alpha"), second)
}

func TestGetAssetEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	src := testutil.NewCountingSource(map[string][]byte{
		"a": []byte("A"), "b": []byte("B"), "c": []byte("C"),
	})
	m := newManager(t, src, 2)

	for _, p := range []string{"a", "b", "a", "c"} {
		_, err := m.GetAsset(p)
		require.NoError(t, err)
	}

	// b was least recently used when c arrived.
	_, err := m.GetAsset("a")
	require.NoError(t, err)
	assert.Equal(t, 1, src.Fetches("a"))

	_, err = m.GetAsset("b")
	require.NoError(t, err)
	assert.Equal(t, 2, src.Fetches("b"))
	assert.Equal(t, int64(2), m.Stats().Evictions)
}

func TestGetAssetErrors(t *testing.T) {
	t.Parallel()

	src := testutil.NewCountingSource(map[string][]byte{})
	m := newManager(t, src, 2)

	_, err := m.GetAsset("missing")
	assert.ErrorIs(t, err, asset.ErrNotFound)

	_, err = m.GetAsset("missing")
	assert.ErrorIs(t, err, asset.ErrNotFound)
	assert.Equal(t, 2, src.Fetches("missing"), "failures are not cached")
}

type lenientSource struct{ calls int }

func (s *lenientSource) Fetch(string) ([]byte, error) {
	s.calls++
	return nil, nil
}

func (s *lenientSource) FetchMetadata(string) (asset.Metadata, error) {
	return asset.Metadata{}, nil
}

func TestLenientMissesAreNotCached(t *testing.T) {
	t.Parallel()

	src := &lenientSource{}
	m := newManager(t, src, 2)

	for range 2 {
		got, err := m.GetAsset("missing")
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	assert.Equal(t, 2, src.calls)
	assert.Zero(t, m.Stats().Len)
}

// fetchCounter wraps a source and counts Fetch calls.
type fetchCounter struct {
	asset.Source
	fetches int
}

func (c *fetchCounter) Fetch(path string) ([]byte, error) {
	c.fetches++
	return c.Source.Fetch(path)
}

func TestEmptyAssetsAreCached(t *testing.T) {
	t.Parallel()

	data, _ := testutil.BuildPackage(t, []testutil.Asset{
		{Path: "empty.txt", Data: []byte{}},
	})
	r, err := pak.OpenReaderAt(bytes.NewReader(data), int64(len(data)), pak.Options{})
	require.NoError(t, err)

	src := &fetchCounter{Source: r}
	m := newManager(t, src, 2)

	for range 3 {
		got, err := m.GetAsset("empty.txt")
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
	assert.Equal(t, 1, src.fetches)

	stats := m.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, 1, stats.Len)
}

func TestGetMetadataIsNotCached(t *testing.T) {
	t.Parallel()

	src := testutil.NewCountingSource(map[string][]byte{"a": []byte("A")})
	src.SetMetadata("a", asset.Metadata{"kind": "sound"})
	m := newManager(t, src, 2)

	for range 2 {
		meta, err := m.GetMetadata("a")
		require.NoError(t, err)
		assert.Equal(t, asset.Metadata{"kind": "sound"}, meta)
	}
	assert.Equal(t, 2, src.MetadataCalls())

	_, err := m.GetMetadata("b")
	assert.ErrorIs(t, err, asset.ErrNotFound)
}

func TestInvalidate(t *testing.T) {
	t.Parallel()

	src := testutil.NewCountingSource(map[string][]byte{"a": []byte("v1")})
	m := newManager(t, src, 2)

	_, err := m.GetAsset("a")
	require.NoError(t, err)

	src.Set("a", []byte("v2"))
	got, err := m.GetAsset("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got, "cached copy until invalidated")

	assert.True(t, m.Invalidate("a"))
	assert.False(t, m.Invalidate("a"))

	got, err = m.GetAsset("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestCloseOwnsSource(t *testing.T) {
	t.Parallel()

	src := testutil.NewCountingSource(map[string][]byte{"a": []byte("A")})
	m, err := asset.NewManager(src, 2)
	require.NoError(t, err)

	_, err = m.GetAsset("a")
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, 1, src.Closed())

	_, err = m.GetAsset("a")
	assert.ErrorIs(t, err, asset.ErrClosed)
	_, err = m.GetMetadata("a")
	assert.ErrorIs(t, err, asset.ErrClosed)
	assert.Zero(t, m.Stats().Len)
}

func TestConcurrentGetAsset(t *testing.T) {
	t.Parallel()

	payloads := map[string][]byte{}
	for _, p := range []string{"a", "b", "c", "d", "e"} {
		payloads[p] = []byte("payload-" + p)
	}
	src := testutil.NewCountingSource(payloads)
	m := newManager(t, src, 3)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				p := string(rune('a' + (i+j)%5))
				got, err := m.GetAsset(p)
				if err != nil {
					errs <- err
					return
				}
				if string(got) != "payload-"+p {
					errs <- errors.New("unexpected payload for " + p)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.LessOrEqual(t, m.Stats().Len, 3)
}
