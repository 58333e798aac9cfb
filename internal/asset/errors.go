package asset

import (
	"errors"
	"fmt"
	"io/fs"
)

// Error kinds. Every failure surfaced by a source wraps exactly one of these,
// so callers can branch with errors.Is.
var (
	// ErrIO is an open, seek or read failure at the OS boundary
	ErrIO = errors.New("i/o failure")

	// ErrFormat covers bad magic, truncated trailers, malformed indices,
	// duplicate paths and out of bounds entries
	ErrFormat = errors.New("invalid package format")

	// ErrNotFound is returned for paths absent from an index or filesystem.
	// It also matches fs.ErrNotExist.
	ErrNotFound = fmt.Errorf("asset not found: %w", fs.ErrNotExist)

	// ErrDecompression is a codec failure or an output size mismatch
	ErrDecompression = errors.New("decompression failed")

	// ErrUnsupportedCodec is returned for unknown compression tags
	ErrUnsupportedCodec = errors.New("unsupported codec")

	// ErrClosed is returned by a Manager after Close
	ErrClosed = errors.New("asset manager is closed")
)

// Error records a failed operation on a logical asset path.
type Error struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap builds an *Error of the given kind. err may be nil.
func Wrap(kind error, op, path string, err error) error {
	return &Error{Op: op, Path: path, Kind: kind, Err: err}
}

// NotFound is shorthand for Wrap(ErrNotFound, op, path, nil).
func NotFound(op, path string) error {
	return &Error{Op: op, Path: path, Kind: ErrNotFound}
}

// KindOf returns the sentinel kind of err, or nil when err carries none.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrFormat, ErrDecompression, ErrUnsupportedCodec, ErrIO, ErrClosed} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
