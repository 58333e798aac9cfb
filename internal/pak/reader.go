// Package pak reads SPAK package files: asset blobs laid out back to back,
// followed by a JSON index and a 12 byte trailer holding the index length
// and the "SPAK" signature.
//
// The index is located from the end of the file, so packages need no header.
package pak

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/zeebo/blake3"

	"github.com/jchantrell/spak/internal/asset"
	"github.com/jchantrell/spak/internal/codec"
)

// Options configures how a package is opened.
type Options struct {
	// Policy decides how missing lookups propagate. Index errors ignore it.
	Policy asset.Policy

	// LegacyScan accepts packages without a trailer by scanning the tail of
	// the file for the start of the JSON index.
	LegacyScan bool

	// ScanWindow is how many trailing bytes the legacy scan inspects.
	// Defaults to DefaultScanWindow.
	ScanWindow int64
}

func (o Options) scanWindow() int64 {
	if o.ScanWindow <= 0 {
		return DefaultScanWindow
	}
	return o.ScanWindow
}

// Reader serves assets out of one package. Reads are positioned (ReadAt),
// so concurrent Fetch calls are safe; Close must not race with them.
type Reader struct {
	name   string
	data   io.ReaderAt
	closer io.Closer
	size   int64
	index  *Index
	policy asset.Policy
}

var _ asset.Source = (*Reader)(nil)

// Open opens the package at path and parses its index. On any failure the
// file is closed and no reader is returned.
func Open(path string, opts Options) (*Reader, error) {
	if path == "" {
		return nil, fmt.Errorf("package path cannot be empty")
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, asset.Wrap(asset.ErrNotFound, "open", path, err)
		}
		return nil, asset.Wrap(asset.ErrIO, "open", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, asset.Wrap(asset.ErrIO, "stat", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, asset.Wrap(asset.ErrIO, "open", path, fmt.Errorf("is a directory"))
	}

	r, err := OpenReaderAt(f, info.Size(), opts)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("loading package index %s: %w", path, err)
	}
	r.name = path
	r.closer = f

	slog.Debug("Package index loaded", "path", path, "entries", r.index.Len(), "size", info.Size())
	return r, nil
}

// OpenReaderAt reads a package of size bytes from data.
func OpenReaderAt(data io.ReaderAt, size int64, opts Options) (*Reader, error) {
	if data == nil {
		return nil, fmt.Errorf("package data cannot be nil")
	}

	idx, err := loadIndex(data, size, opts)
	if err != nil {
		return nil, err
	}

	return &Reader{
		data:   data,
		size:   size,
		index:  idx,
		policy: opts.Policy,
	}, nil
}

// Fetch returns the decoded contents of path.
func (r *Reader) Fetch(path string) ([]byte, error) {
	data, err := r.fetch(path)
	if err != nil {
		return nil, r.policy.Tolerate(err)
	}
	return data, nil
}

func (r *Reader) fetch(path string) ([]byte, error) {
	e, ok := r.index.entries[path]
	if !ok {
		return nil, asset.NotFound("fetch", path)
	}

	stored := make([]byte, e.Size)
	if n, err := r.data.ReadAt(stored, int64(e.Offset)); uint64(n) != e.Size {
		return nil, asset.Wrap(asset.ErrIO, "fetch", path,
			fmt.Errorf("read %d of %d bytes at offset %d: %w", n, e.Size, e.Offset, err))
	}

	data := stored
	if e.Compressed {
		var err error
		data, err = codec.Decompress(stored, e.OriginalSize, e.Compression)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", path, err)
		}
	}

	if e.sum != nil {
		sum := blake3.Sum256(data)
		if !bytes.Equal(sum[:], e.sum) {
			return nil, asset.Wrap(asset.ErrDecompression, "verify", path, fmt.Errorf("blake3 digest mismatch"))
		}
	}

	return data, nil
}

// FetchMetadata returns a copy of the metadata recorded for path.
func (r *Reader) FetchMetadata(path string) (asset.Metadata, error) {
	e, ok := r.index.entries[path]
	if !ok {
		if err := r.policy.Tolerate(asset.NotFound("metadata", path)); err != nil {
			return nil, err
		}
		return asset.Metadata{}, nil
	}
	return e.Meta.Clone(), nil
}

// Entry returns the index entry for path.
func (r *Reader) Entry(path string) (Entry, bool) {
	return r.index.Lookup(path)
}

// Paths returns every asset path in the package, sorted.
func (r *Reader) Paths() []string {
	return r.index.Paths()
}

// Len returns the number of assets in the package.
func (r *Reader) Len() int {
	return r.index.Len()
}

// Name returns the file the reader was opened from, if any.
func (r *Reader) Name() string {
	return r.name
}

// Size returns the package size in bytes.
func (r *Reader) Size() int64 {
	return r.size
}

// Close releases the package file.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	if err != nil {
		return fmt.Errorf("closing package %s: %w", r.name, err)
	}
	return nil
}
