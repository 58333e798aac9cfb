package pak

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/jchantrell/spak/internal/asset"
)

const (
	// TrailerSize is the fixed footer: u64 LE index length plus magic.
	TrailerSize = 12
	// Magic closes every package file.
	Magic = "SPAK"
	// DefaultScanWindow bounds the legacy tail scan.
	DefaultScanWindow = 1 << 20

	digestPrefix = "blake3:"
)

var errBadMagic = errors.New("bad trailer signature")

// Entry describes one asset stored in a package.
type Entry struct {
	Path         string
	Offset       uint64
	Size         uint64
	OriginalSize uint64
	Compressed   bool
	Compression  string
	Digest       string
	Meta         asset.Metadata

	sum []byte
}

// Index maps logical paths to entries. It is immutable once parsed.
type Index struct {
	entries map[string]Entry
	paths   []string
}

// record is the on-disk shape of an index entry. Pointers let us tell a
// missing field apart from a zero value.
type record struct {
	Path         *string         `json:"path"`
	Offset       *uint64         `json:"offset"`
	Size         *uint64         `json:"size"`
	OriginalSize *uint64         `json:"originalSize"`
	Compressed   *bool           `json:"compressed"`
	Compression  *string         `json:"compression"`
	Meta         json.RawMessage `json:"meta"`
	Digest       string          `json:"digest"`
}

// ParseIndex parses a JSON index document for a package of fileSize bytes.
// Any malformed record, out of bounds entry or duplicate path fails the
// whole index.
func ParseIndex(data []byte, fileSize uint64) (*Index, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, formatError(fmt.Errorf("index is not a JSON array"))
	}

	var records []record
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, formatError(fmt.Errorf("decoding index: %w", err))
	}

	idx := &Index{
		entries: make(map[string]Entry, len(records)),
		paths:   make([]string, 0, len(records)),
	}

	for i, rec := range records {
		e, err := rec.entry(fileSize)
		if err != nil {
			return nil, formatError(fmt.Errorf("record %d: %w", i, err))
		}
		if _, exists := idx.entries[e.Path]; exists {
			return nil, formatError(fmt.Errorf("record %d: duplicate path %q", i, e.Path))
		}
		idx.entries[e.Path] = e
		idx.paths = append(idx.paths, e.Path)
	}

	sort.Strings(idx.paths)
	return idx, nil
}

func (rec record) entry(fileSize uint64) (Entry, error) {
	var missing []string
	if rec.Path == nil {
		missing = append(missing, "path")
	}
	if rec.Offset == nil {
		missing = append(missing, "offset")
	}
	if rec.Size == nil {
		missing = append(missing, "size")
	}
	if rec.OriginalSize == nil {
		missing = append(missing, "originalSize")
	}
	if rec.Compressed == nil {
		missing = append(missing, "compressed")
	}
	if rec.Compression == nil {
		missing = append(missing, "compression")
	}
	if len(missing) > 0 {
		return Entry{}, fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}

	e := Entry{
		Path:         *rec.Path,
		Offset:       *rec.Offset,
		Size:         *rec.Size,
		OriginalSize: *rec.OriginalSize,
		Compressed:   *rec.Compressed,
		Compression:  *rec.Compression,
		Digest:       rec.Digest,
		Meta:         asset.Metadata{},
	}

	if e.Path == "" {
		return Entry{}, fmt.Errorf("empty path")
	}

	end := e.Offset + e.Size
	if end < e.Offset || end > fileSize {
		return Entry{}, fmt.Errorf("%q: range %d+%d exceeds file length %d", e.Path, e.Offset, e.Size, fileSize)
	}

	if len(rec.Meta) > 0 && !bytes.Equal(rec.Meta, []byte("null")) {
		if err := json.Unmarshal(rec.Meta, &e.Meta); err != nil {
			return Entry{}, fmt.Errorf("%q: meta must be a JSON object: %w", e.Path, err)
		}
	}

	if e.Digest != "" {
		sum, err := parseDigest(e.Digest)
		if err != nil {
			return Entry{}, fmt.Errorf("%q: %w", e.Path, err)
		}
		e.sum = sum
	}

	return e, nil
}

func parseDigest(s string) ([]byte, error) {
	hexSum, ok := strings.CutPrefix(s, digestPrefix)
	if !ok {
		return nil, fmt.Errorf("unsupported digest %q", s)
	}
	sum, err := hex.DecodeString(hexSum)
	if err != nil || len(sum) != 32 {
		return nil, fmt.Errorf("malformed blake3 digest %q", s)
	}
	return sum, nil
}

// Lookup returns the entry for path. The returned metadata is a copy.
func (idx *Index) Lookup(path string) (Entry, bool) {
	e, ok := idx.entries[path]
	if !ok {
		return Entry{}, false
	}
	e.Meta = e.Meta.Clone()
	return e, true
}

// Paths returns every logical path in the index, sorted.
func (idx *Index) Paths() []string {
	out := make([]string, len(idx.paths))
	copy(out, idx.paths)
	return out
}

// Len returns the number of entries.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// readTrailer validates the footer and returns the declared index length.
func readTrailer(r io.ReaderAt, size int64) (uint64, error) {
	if size < TrailerSize {
		return 0, formatError(fmt.Errorf("file is %d bytes, shorter than the %d byte trailer", size, TrailerSize))
	}

	var trailer [TrailerSize]byte
	if n, err := r.ReadAt(trailer[:], size-TrailerSize); n != TrailerSize {
		return 0, asset.Wrap(asset.ErrIO, "read trailer", "", err)
	}

	if string(trailer[8:]) != Magic {
		return 0, formatError(fmt.Errorf("%w: got %q", errBadMagic, trailer[8:]))
	}

	indexLen := binary.LittleEndian.Uint64(trailer[:8])
	if indexLen > uint64(size-TrailerSize) {
		return 0, formatError(fmt.Errorf("index length %d exceeds available %d bytes", indexLen, size-TrailerSize))
	}
	return indexLen, nil
}

// loadIndex locates and parses the index of a package of size bytes.
func loadIndex(r io.ReaderAt, size int64, opts Options) (*Index, error) {
	indexLen, err := readTrailer(r, size)
	if err != nil {
		if opts.LegacyScan && errors.Is(err, errBadMagic) {
			slog.Debug("No package trailer, scanning tail for index", "window", opts.scanWindow())
			return scanIndex(r, size, opts.scanWindow())
		}
		return nil, err
	}

	data := make([]byte, indexLen)
	start := size - TrailerSize - int64(indexLen)
	if n, err := r.ReadAt(data, start); uint64(n) != indexLen {
		return nil, asset.Wrap(asset.ErrIO, "read index", "", fmt.Errorf("read %d of %d bytes at %d: %w", n, indexLen, start, err))
	}

	return ParseIndex(data, uint64(size))
}

// scanIndex handles packages written without a trailer: everything from the
// first '[' in the tail window that parses as a complete index up to the end
// of the file is the index.
func scanIndex(r io.ReaderAt, size int64, window int64) (*Index, error) {
	if window > size {
		window = size
	}
	tail := make([]byte, window)
	if n, err := r.ReadAt(tail, size-window); int64(n) != window {
		return nil, asset.Wrap(asset.ErrIO, "scan index", "", fmt.Errorf("read %d of %d tail bytes: %w", n, window, err))
	}

	var lastErr error
	for pos := 0; pos < len(tail); {
		i := bytes.IndexByte(tail[pos:], '[')
		if i < 0 {
			break
		}
		pos += i

		idx, err := ParseIndex(tail[pos:], uint64(size))
		if err == nil {
			return idx, nil
		}
		lastErr = err
		pos++
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no '[' in the last %d bytes", window)
	}
	return nil, asset.Wrap(asset.ErrFormat, "scan index", "", lastErr)
}

func formatError(err error) error {
	return asset.Wrap(asset.ErrFormat, "parse index", "", err)
}
