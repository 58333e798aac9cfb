// Package fsys serves assets from loose files under a root directory, with
// metadata in "<asset>.meta.json" sidecars. HotReload adds modification
// time tracking on top.
package fsys

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/jchantrell/spak/internal/asset"
)

// MetaSuffix is appended to an asset path to find its metadata sidecar.
const MetaSuffix = ".meta.json"

// Options configures a filesystem source.
type Options struct {
	Policy asset.Policy

	// RelativeOnly rejects absolute roots.
	RelativeOnly bool

	// OnReload is called by HotReload after a path is reloaded or dropped.
	OnReload func(path string)
}

// Filesystem reads assets relative to a root directory. Names cannot escape
// the root.
type Filesystem struct {
	dir    string
	root   *os.Root
	policy asset.Policy
}

var _ asset.Source = (*Filesystem)(nil)

// New validates dir and opens it as the asset root.
func New(dir string, opts Options) (*Filesystem, error) {
	if dir == "" {
		return nil, fmt.Errorf("asset root must be a non-empty path")
	}
	if opts.RelativeOnly && filepath.IsAbs(dir) {
		return nil, fmt.Errorf("asset root must be a relative path: %s", dir)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("asset root %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("asset root %s is not a directory", dir)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("opening asset root %s: %w", dir, err)
	}

	return &Filesystem{
		dir:    dir,
		root:   root,
		policy: opts.Policy,
	}, nil
}

// Dir returns the root directory.
func (f *Filesystem) Dir() string {
	return f.dir
}

// Fetch reads the whole asset file.
func (f *Filesystem) Fetch(name string) ([]byte, error) {
	data, err := f.readAsset(name)
	if err != nil {
		return nil, f.policy.Tolerate(err)
	}
	return data, nil
}

// FetchMetadata reads and parses the asset's sidecar. Comments and trailing
// commas are accepted.
func (f *Filesystem) FetchMetadata(name string) (asset.Metadata, error) {
	meta, err := f.readMetadata(name)
	if err != nil {
		if err := f.policy.Tolerate(err); err != nil {
			return nil, err
		}
		return asset.Metadata{}, nil
	}
	return meta, nil
}

// Close releases the root directory handle.
func (f *Filesystem) Close() error {
	return f.root.Close()
}

func (f *Filesystem) open(op, name string) (*os.File, error) {
	file, err := f.root.Open(filepath.FromSlash(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, asset.Wrap(asset.ErrNotFound, op, name, err)
		}
		return nil, asset.Wrap(asset.ErrIO, op, name, err)
	}
	return file, nil
}

// readAsset sizes the file by seeking to its end and reads exactly that
// many bytes.
func (f *Filesystem) readAsset(name string) ([]byte, error) {
	file, err := f.open("fetch", name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, asset.Wrap(asset.ErrIO, "fetch", name, err)
	}
	if info.IsDir() {
		return nil, asset.Wrap(asset.ErrIO, "fetch", name, fmt.Errorf("is a directory"))
	}

	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, asset.Wrap(asset.ErrIO, "fetch", name, err)
	}
	if size <= 0 || uint64(size) > math.MaxInt {
		return nil, asset.Wrap(asset.ErrIO, "fetch", name, fmt.Errorf("invalid asset file size %d", size))
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, asset.Wrap(asset.ErrIO, "fetch", name, err)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(file, buf); err != nil {
		return nil, asset.Wrap(asset.ErrIO, "fetch", name, fmt.Errorf("short read: %w", err))
	}
	return buf, nil
}

func (f *Filesystem) readMetadata(name string) (asset.Metadata, error) {
	file, err := f.open("metadata", name+MetaSuffix)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, asset.Wrap(asset.ErrIO, "metadata", name, err)
	}

	meta, err := ParseMetadata(data)
	if err != nil {
		return nil, asset.Wrap(asset.ErrFormat, "metadata", name, err)
	}
	return meta, nil
}

func (f *Filesystem) stat(name string) (os.FileInfo, error) {
	return f.root.Stat(filepath.FromSlash(name))
}

// ParseMetadata decodes a sidecar document, which must be a JSON object.
func ParseMetadata(data []byte) (asset.Metadata, error) {
	var meta asset.Metadata
	if err := json.Unmarshal(jsonc.ToJSON(data), &meta); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	if meta == nil {
		return nil, fmt.Errorf("metadata must be a JSON object")
	}
	return meta, nil
}
