// Package asset defines the Source capability shared by every asset backend,
// the error taxonomy and policy they report through, and the Manager facade
// that puts an LRU cache in front of a Source.
package asset

// Source is anything that can resolve a logical path to bytes and metadata.
// Implemented by pak.Reader, fsys.Filesystem and fsys.HotReload.
type Source interface {
	// Fetch returns the full, decoded contents of path. A lenient miss is
	// reported as nil; an empty asset is a non-nil empty slice.
	Fetch(path string) ([]byte, error)
	// FetchMetadata returns the structured metadata attached to path.
	FetchMetadata(path string) (Metadata, error)
}

// Metadata is the JSON object attached to an asset. The zero value for an
// absent document is the empty object, never nil.
type Metadata map[string]any

// Clone returns a deep copy of m. Nested objects and arrays are copied so the
// result shares nothing with the receiver.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case Metadata:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return v
	}
}
