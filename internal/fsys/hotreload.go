package fsys

import (
	"bytes"
	"errors"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/jchantrell/spak/internal/asset"
)

// HotReload is a filesystem source that remembers every asset it served,
// together with the file's modification time, and refreshes its copy when
// Update notices the file changed on disk.
//
// The copies held here exist for change detection only; they do not replace
// the Manager's cache, which callers must invalidate themselves using the
// paths Update returns.
type HotReload struct {
	fs       *Filesystem
	onReload func(path string)

	mu      sync.Mutex
	tracked map[string]*tracked
}

type tracked struct {
	modTime time.Time
	size    int64
	data    []byte
	meta    asset.Metadata
	metaErr error
}

var _ asset.Source = (*HotReload)(nil)

// NewHotReload opens dir as a hot reloading asset root.
func NewHotReload(dir string, opts Options) (*HotReload, error) {
	fsys, err := New(dir, opts)
	if err != nil {
		return nil, err
	}
	return &HotReload{
		fs:       fsys,
		onReload: opts.OnReload,
		tracked:  make(map[string]*tracked),
	}, nil
}

// Dir returns the root directory.
func (h *HotReload) Dir() string {
	return h.fs.Dir()
}

// Fetch serves the tracked copy of name, loading and tracking it on first
// use.
func (h *HotReload) Fetch(name string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t, ok := h.tracked[name]; ok {
		return bytes.Clone(t.data), nil
	}

	t, err := h.load(name)
	if err != nil {
		return nil, h.fs.policy.Tolerate(err)
	}
	h.tracked[name] = t
	h.fs.policy.Log().Debug("Tracking asset for hot reload", "path", name, "mod_time", t.modTime)
	return bytes.Clone(t.data), nil
}

// FetchMetadata serves tracked metadata, falling back to the sidecar on
// disk for paths that were never fetched.
func (h *HotReload) FetchMetadata(name string) (asset.Metadata, error) {
	h.mu.Lock()
	t, ok := h.tracked[name]
	h.mu.Unlock()

	if !ok {
		return h.fs.FetchMetadata(name)
	}
	if t.metaErr != nil {
		if err := h.fs.policy.Tolerate(t.metaErr); err != nil {
			return nil, err
		}
		return asset.Metadata{}, nil
	}
	return t.meta.Clone(), nil
}

// load stats before reading so a write racing the read shows up as a newer
// timestamp on the next Update.
func (h *HotReload) load(name string) (*tracked, error) {
	info, err := h.fs.stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, asset.Wrap(asset.ErrNotFound, "fetch", name, err)
		}
		return nil, asset.Wrap(asset.ErrIO, "fetch", name, err)
	}

	data, err := h.fs.readAsset(name)
	if err != nil {
		return nil, err
	}

	t := &tracked{
		modTime: info.ModTime(),
		size:    info.Size(),
		data:    data,
	}
	t.meta, t.metaErr = h.fs.readMetadata(name)
	return t, nil
}

// Update re-stats every tracked path and reloads the ones whose timestamp
// or size changed. Paths whose file disappeared stop being tracked. It
// returns every path that was reloaded or dropped.
//
// In lenient mode failures are logged and Update returns a nil error; in
// strict mode they are joined into the returned error. A path that fails to
// reload keeps its previous contents.
func (h *HotReload) Update() ([]string, error) {
	h.mu.Lock()

	names := make([]string, 0, len(h.tracked))
	for name := range h.tracked {
		names = append(names, name)
	}
	sort.Strings(names)

	log := h.fs.policy.Log()
	var changed []string
	var errs []error

	for _, name := range names {
		old := h.tracked[name]

		info, err := h.fs.stat(name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				delete(h.tracked, name)
				changed = append(changed, name)
				log.Info("Asset removed, no longer tracked", "path", name)
				continue
			}
			errs = append(errs, asset.Wrap(asset.ErrIO, "update", name, err))
			continue
		}

		if info.ModTime().Equal(old.modTime) && info.Size() == old.size {
			continue
		}

		t, err := h.load(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		h.tracked[name] = t
		changed = append(changed, name)
		log.Info("Reloaded asset", "path", name, "size", len(t.data))
	}

	h.mu.Unlock()

	if h.onReload != nil {
		for _, name := range changed {
			h.onReload(name)
		}
	}

	err := errors.Join(errs...)
	if err != nil && h.fs.policy.Mode == asset.Lenient {
		for _, e := range errs {
			log.Warn("Hot reload failed", "error", e)
		}
		return changed, nil
	}
	return changed, err
}

// Tracked returns the tracked paths, sorted.
func (h *HotReload) Tracked() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]string, 0, len(h.tracked))
	for name := range h.tracked {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close drops every tracked copy and releases the root.
func (h *HotReload) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	clear(h.tracked)
	return h.fs.Close()
}
