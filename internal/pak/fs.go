package pak

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// FS returns a read-only fs.FS view of the package. Directories are implied
// by the "/" separators in asset paths. Files are decoded when opened, and
// errors bypass the reader's policy.
func (r *Reader) FS() fs.FS {
	return packageFS{r}
}

type packageFS struct {
	r *Reader
}

var _ fs.FS = packageFS{}

func (p packageFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	if name == "." {
		return p.dir(""), nil
	}

	if e, ok := p.r.index.entries[name]; ok {
		data, err := p.r.fetch(name)
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
		return &file{Reader: bytes.NewReader(data), info: fileInfo{e}}, nil
	}

	prefix := name + "/"
	paths := p.r.index.paths
	i := sort.SearchStrings(paths, prefix)
	if i < len(paths) && strings.HasPrefix(paths[i], prefix) {
		return p.dir(prefix), nil
	}

	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// dir lists the immediate children of prefix. Paths sharing a prefix are
// contiguous in the sorted index, so the scan stops at the first miss.
func (p packageFS) dir(prefix string) *dir {
	paths := p.r.index.paths
	d := &dir{name: path.Base(strings.TrimSuffix(prefix, "/"))}
	if prefix == "" {
		d.name = "."
	}

	seen := make(map[string]bool)
	for i := sort.SearchStrings(paths, prefix); i < len(paths) && strings.HasPrefix(paths[i], prefix); i++ {
		rest := paths[i][len(prefix):]
		if slash := strings.IndexByte(rest, '/'); slash >= 0 {
			sub := rest[:slash]
			if !seen[sub] {
				seen[sub] = true
				d.entries = append(d.entries, dirEntry{dirInfo{sub}})
			}
			continue
		}
		d.entries = append(d.entries, dirEntry{fileInfo{p.r.index.entries[paths[i]]}})
	}

	sort.Slice(d.entries, func(i, j int) bool {
		return d.entries[i].Name() < d.entries[j].Name()
	})
	return d
}

type file struct {
	*bytes.Reader
	info fileInfo
}

func (f *file) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *file) Close() error               { return nil }

type dir struct {
	name    string
	entries []fs.DirEntry
	offset  int
}

func (d *dir) Stat() (fs.FileInfo, error) { return dirInfo{d.name}, nil }
func (d *dir) Close() error               { return nil }

func (d *dir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: errors.New("is a directory")}
}

func (d *dir) ReadDir(n int) ([]fs.DirEntry, error) {
	rest := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return append([]fs.DirEntry(nil), rest...), nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(rest))
	d.offset += n
	return append([]fs.DirEntry(nil), rest[:n]...), nil
}

// fileInfo reports the decoded size of an entry.
type fileInfo struct {
	e Entry
}

func (fi fileInfo) Name() string { return path.Base(fi.e.Path) }

func (fi fileInfo) Size() int64 {
	if fi.e.Compressed {
		return int64(fi.e.OriginalSize)
	}
	return int64(fi.e.Size)
}

func (fi fileInfo) Mode() fs.FileMode  { return 0o444 }
func (fi fileInfo) ModTime() time.Time { return time.Unix(0, 0) }
func (fi fileInfo) IsDir() bool        { return false }
func (fi fileInfo) Sys() any           { return nil }

type dirInfo struct {
	name string
}

func (di dirInfo) Name() string       { return di.name }
func (di dirInfo) Size() int64        { return 0 }
func (di dirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o555 }
func (di dirInfo) ModTime() time.Time { return time.Unix(0, 0) }
func (di dirInfo) IsDir() bool        { return true }
func (di dirInfo) Sys() any           { return nil }

type dirEntry struct {
	info fs.FileInfo
}

func (de dirEntry) Name() string               { return de.info.Name() }
func (de dirEntry) IsDir() bool                { return de.info.IsDir() }
func (de dirEntry) Type() fs.FileMode          { return de.info.Mode().Type() }
func (de dirEntry) Info() (fs.FileInfo, error) { return de.info, nil }
