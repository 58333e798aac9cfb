// Package testutil builds package fixtures and stub sources for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"

	"github.com/jchantrell/spak/internal/asset"
)

// Magic is the package trailer signature.
const Magic = "SPAK"

// Asset describes one fixture entry. Compression "" stores the payload as is.
type Asset struct {
	Path        string
	Data        []byte
	Compression string
	Meta        map[string]any
	// Digest adds a blake3 digest of Data to the index record.
	Digest bool
}

// Record mirrors one JSON index record. Tests that need malformed indices
// build these by hand.
type Record struct {
	Path         string         `json:"path"`
	Offset       uint64         `json:"offset"`
	Size         uint64         `json:"size"`
	OriginalSize uint64         `json:"originalSize"`
	Compressed   bool           `json:"compressed"`
	Compression  string         `json:"compression"`
	Meta         map[string]any `json:"meta,omitempty"`
	Digest       string         `json:"digest,omitempty"`
}

// Compress encodes data with algorithm.
func Compress(t testing.TB, algorithm string, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	switch algorithm {
	case "zlib":
		w := zlib.NewWriter(&buf)
		_, err := w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case "gzip":
		w := gzip.NewWriter(&buf)
		_, err := w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case "deflate":
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case "zstd":
		enc, err := zstd.NewWriter(nil)
		require.NoError(t, err)
		defer enc.Close()
		return enc.EncodeAll(data, nil)
	case "lz4":
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		require.NoError(t, err)
		require.NotZero(t, n, "lz4 fixture data must be compressible")
		return dst[:n]
	default:
		t.Fatalf("testutil: no compressor for %q", algorithm)
	}
	return buf.Bytes()
}

// Digest returns the index digest string for data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return "blake3:" + hex.EncodeToString(sum[:])
}

// BuildPackage lays out blobs back to back followed by the JSON index and
// trailer, returning the package bytes and the records written.
func BuildPackage(t testing.TB, assets []Asset) ([]byte, []Record) {
	t.Helper()

	var body bytes.Buffer
	records := make([]Record, 0, len(assets))
	for _, a := range assets {
		stored := a.Data
		if a.Compression != "" {
			stored = Compress(t, a.Compression, a.Data)
		}
		rec := Record{
			Path:         a.Path,
			Offset:       uint64(body.Len()),
			Size:         uint64(len(stored)),
			OriginalSize: uint64(len(a.Data)),
			Compressed:   a.Compression != "",
			Compression:  a.Compression,
			Meta:         a.Meta,
		}
		if rec.Compression == "" {
			rec.Compression = "none"
		}
		if a.Digest {
			rec.Digest = Digest(a.Data)
		}
		body.Write(stored)
		records = append(records, rec)
	}

	index, err := json.Marshal(records)
	require.NoError(t, err)
	return AppendIndex(body.Bytes(), index), records
}

// AppendIndex appends a raw index document and a valid trailer to body.
func AppendIndex(body, index []byte) []byte {
	out := make([]byte, 0, len(body)+len(index)+12)
	out = append(out, body...)
	out = append(out, index...)
	out = binary.LittleEndian.AppendUint64(out, uint64(len(index)))
	return append(out, Magic...)
}

// WriteFile writes data to name under dir and returns the full path.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()

	full := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, data, 0o644))
	return full
}

// CountingSource is an in-memory asset.Source that counts calls.
type CountingSource struct {
	mu         sync.Mutex
	assets     map[string][]byte
	meta       map[string]asset.Metadata
	fetches    map[string]int
	metaCalls  int
	closeCalls int
}

// NewCountingSource returns a source serving assets.
func NewCountingSource(assets map[string][]byte) *CountingSource {
	return &CountingSource{
		assets:  assets,
		meta:    make(map[string]asset.Metadata),
		fetches: make(map[string]int),
	}
}

// SetMetadata attaches metadata to path.
func (s *CountingSource) SetMetadata(path string, meta asset.Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[path] = meta
}

// Set replaces the payload for path.
func (s *CountingSource) Set(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[path] = data
}

func (s *CountingSource) Fetch(path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetches[path]++
	data, ok := s.assets[path]
	if !ok {
		return nil, asset.NotFound("fetch", path)
	}
	return bytes.Clone(data), nil
}

func (s *CountingSource) FetchMetadata(path string) (asset.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metaCalls++
	meta, ok := s.meta[path]
	if !ok {
		return nil, asset.NotFound("metadata", path)
	}
	return meta.Clone(), nil
}

// Close counts calls so tests can check ownership.
func (s *CountingSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

// Fetches returns how many times path was fetched.
func (s *CountingSource) Fetches(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[path]
}

// MetadataCalls returns the number of FetchMetadata calls.
func (s *CountingSource) MetadataCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metaCalls
}

// Closed returns how many times Close was called.
func (s *CountingSource) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// String is handy in failure messages.
func (r Record) String() string {
	return fmt.Sprintf("%s@%d+%d", r.Path, r.Offset, r.Size)
}
