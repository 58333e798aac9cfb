package pak

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/spak/internal/asset"
	"github.com/jchantrell/spak/internal/testutil"
)

func openBytes(t *testing.T, data []byte, opts Options) (*Reader, error) {
	t.Helper()
	return OpenReaderAt(bytes.NewReader(data), int64(len(data)), opts)
}

func mustOpen(t *testing.T, data []byte, opts Options) *Reader {
	t.Helper()
	r, err := openBytes(t, data, opts)
	require.NoError(t, err)
	return r
}

func fixtureAssets() []testutil.Asset {
	text := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 64)
	return []testutil.Asset{
		{Path: "raw/plain.bin", Data: []byte{0x00, 0x01, 0x02, 0xff, '[', ']'}},
		{Path: "textures/zlib.txt", Data: text, Compression: "zlib", Meta: map[string]any{"kind": "texture", "mips": float64(3)}},
		{Path: "textures/gzip.txt", Data: text, Compression: "gzip"},
		{Path: "shaders/deflate.txt", Data: text, Compression: "deflate"},
		{Path: "levels/zstd.txt", Data: text, Compression: "zstd", Digest: true},
		{Path: "levels/lz4.txt", Data: text, Compression: "lz4"},
		{Path: "empty.txt", Data: []byte{}},
	}
}

func TestRoundTripMixedCompression(t *testing.T) {
	t.Parallel()

	assets := fixtureAssets()
	data, _ := testutil.BuildPackage(t, assets)
	r := mustOpen(t, data, Options{})

	assert.Equal(t, len(assets), r.Len())
	for _, a := range assets {
		got, err := r.Fetch(a.Path)
		require.NoError(t, err, a.Path)
		assert.Equal(t, a.Data, got, a.Path)
	}
}

func TestOpenFromFile(t *testing.T) {
	t.Parallel()

	data, _ := testutil.BuildPackage(t, fixtureAssets())
	path := testutil.WriteFile(t, t.TempDir(), "assets.spak", data)

	r, err := Open(path, Options{})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, path, r.Name())
	assert.Equal(t, int64(len(data)), r.Size())

	got, err := r.Fetch("textures/zlib.txt")
	require.NoError(t, err)
	assert.Equal(t, fixtureAssets()[1].Data, got)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "close is idempotent")
}

func TestOpenMissingFile(t *testing.T) {
	t.Parallel()

	r, err := Open(filepath.Join(t.TempDir(), "nope.spak"), Options{})
	assert.Nil(t, r)
	assert.ErrorIs(t, err, asset.ErrNotFound)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.NotErrorIs(t, err, asset.ErrIO)

	_, err = Open(t.TempDir(), Options{})
	assert.ErrorIs(t, err, asset.ErrIO)
	assert.NotErrorIs(t, err, asset.ErrNotFound)

	_, err = Open("", Options{})
	assert.Error(t, err)
}

func TestCorruptTrailerFailsConstruction(t *testing.T) {
	t.Parallel()

	data, _ := testutil.BuildPackage(t, fixtureAssets())
	copy(data[len(data)-4:], "KAPS")

	r, err := openBytes(t, data, Options{})
	assert.Nil(t, r)
	assert.ErrorIs(t, err, asset.ErrFormat)
	assert.ErrorIs(t, err, errBadMagic)

	path := testutil.WriteFile(t, t.TempDir(), "bad.spak", data)
	fr, err := Open(path, Options{})
	assert.Nil(t, fr)
	assert.ErrorIs(t, err, asset.ErrFormat)
}

func TestIndexFormatErrors(t *testing.T) {
	t.Parallel()

	body := []byte("0123456789")
	valid := func() map[string]any {
		return map[string]any{
			"path": "a", "offset": 0, "size": 4, "originalSize": 4,
			"compressed": false, "compression": "none",
		}
	}
	encode := func(records ...map[string]any) []byte {
		b, err := json.Marshal(records)
		require.NoError(t, err)
		return b
	}

	outOfBounds := valid()
	outOfBounds["offset"] = 9
	outOfBounds["size"] = 1 << 20

	overflow := valid()
	overflow["offset"] = uint64(1 << 63)
	overflow["size"] = uint64(1 << 63)

	missing := valid()
	delete(missing, "originalSize")

	emptyPath := valid()
	emptyPath["path"] = ""

	badMeta := valid()
	badMeta["meta"] = []int{1, 2}

	badDigest := valid()
	badDigest["digest"] = "md5:abcd"

	second := valid()
	second["offset"] = 4

	tests := []struct {
		name  string
		index []byte
	}{
		{"duplicate path", encode(valid(), second)},
		{"out of bounds", encode(outOfBounds)},
		{"offset overflow", encode(overflow)},
		{"missing field", encode(missing)},
		{"empty path", encode(emptyPath)},
		{"meta not an object", encode(badMeta)},
		{"bad digest", encode(badDigest)},
		{"not an array", []byte(`{"path":"a"}`)},
		{"null", []byte(`null`)},
		{"malformed json", []byte(`[{"path":`)},
		{"trailing garbage", append(encode(valid()), []byte(" xx")...)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, err := openBytes(t, testutil.AppendIndex(body, tc.index), Options{})
			assert.Nil(t, r)
			assert.ErrorIs(t, err, asset.ErrFormat)
		})
	}
}

func TestTrailerErrors(t *testing.T) {
	t.Parallel()

	t.Run("shorter than trailer", func(t *testing.T) {
		_, err := openBytes(t, []byte("SPAK"), Options{})
		assert.ErrorIs(t, err, asset.ErrFormat)
	})

	t.Run("index length past start of file", func(t *testing.T) {
		data := testutil.AppendIndex([]byte("xx"), []byte("[]"))
		data[len(data)-12] = 0xff
		_, err := openBytes(t, data, Options{})
		assert.ErrorIs(t, err, asset.ErrFormat)
	})
}

func TestEmptyIndexIsValid(t *testing.T) {
	t.Parallel()

	r := mustOpen(t, testutil.AppendIndex(nil, []byte("[]")), Options{})
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Paths())
}

func TestUnknownPath(t *testing.T) {
	t.Parallel()

	data, _ := testutil.BuildPackage(t, fixtureAssets())

	strict := mustOpen(t, data, Options{Policy: asset.StrictPolicy()})
	_, err := strict.Fetch("missing")
	assert.ErrorIs(t, err, asset.ErrNotFound)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = strict.FetchMetadata("missing")
	assert.ErrorIs(t, err, asset.ErrNotFound)

	lenient := mustOpen(t, data, Options{Policy: asset.LenientPolicy(nil)})
	got, err := lenient.Fetch("missing")
	require.NoError(t, err)
	assert.Empty(t, got)
	meta, err := lenient.FetchMetadata("missing")
	require.NoError(t, err)
	assert.Equal(t, asset.Metadata{}, meta)
}

func TestMetadataIsACopy(t *testing.T) {
	t.Parallel()

	data, _ := testutil.BuildPackage(t, fixtureAssets())
	r := mustOpen(t, data, Options{})

	meta, err := r.FetchMetadata("textures/zlib.txt")
	require.NoError(t, err)
	assert.Equal(t, asset.Metadata{"kind": "texture", "mips": float64(3)}, meta)
	meta["kind"] = "mutated"

	again, err := r.FetchMetadata("textures/zlib.txt")
	require.NoError(t, err)
	assert.Equal(t, "texture", again["kind"])

	none, err := r.FetchMetadata("raw/plain.bin")
	require.NoError(t, err)
	assert.Equal(t, asset.Metadata{}, none)
}

func TestUnsupportedCodec(t *testing.T) {
	t.Parallel()

	index := []byte(`[{"path":"a","offset":0,"size":4,"originalSize":8,"compressed":true,"compression":"brotli"}]`)
	r := mustOpen(t, testutil.AppendIndex([]byte("abcd"), index), Options{Policy: asset.LenientPolicy(nil)})

	_, err := r.Fetch("a")
	assert.ErrorIs(t, err, asset.ErrUnsupportedCodec, "lenient mode must not hide codec errors")
}

func TestTruncatedCompressedEntry(t *testing.T) {
	t.Parallel()

	original := bytes.Repeat([]byte("payload "), 128)
	compressed := testutil.Compress(t, "zlib", original)
	truncated := compressed[:len(compressed)/2]

	rec := testutil.Record{
		Path: "a", Offset: 0, Size: uint64(len(truncated)), OriginalSize: uint64(len(original)),
		Compressed: true, Compression: "zlib",
	}
	index, err := json.Marshal([]testutil.Record{rec})
	require.NoError(t, err)

	r := mustOpen(t, testutil.AppendIndex(truncated, index), Options{})
	got, err := r.Fetch("a")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, asset.ErrDecompression)
}

func TestDigestMismatch(t *testing.T) {
	t.Parallel()

	rec := testutil.Record{
		Path: "a", Offset: 0, Size: 4, OriginalSize: 4, Compression: "none",
		Digest: testutil.Digest([]byte("abcd")),
	}
	index, err := json.Marshal([]testutil.Record{rec})
	require.NoError(t, err)

	r := mustOpen(t, testutil.AppendIndex([]byte("abce"), index), Options{})
	_, err = r.Fetch("a")
	assert.ErrorIs(t, err, asset.ErrDecompression)
}

func TestLegacyTailScan(t *testing.T) {
	t.Parallel()

	// Blob data containing brackets ahead of the index must be skipped.
	body := []byte("[not json] [[ more")
	rec := testutil.Record{Path: "a", Offset: 0, Size: 10, OriginalSize: 10, Compression: "none"}
	index, err := json.Marshal([]testutil.Record{rec})
	require.NoError(t, err)
	data := append(append([]byte{}, body...), index...)

	_, err = openBytes(t, data, Options{})
	assert.ErrorIs(t, err, asset.ErrFormat, "scan is opt-in")

	r := mustOpen(t, data, Options{LegacyScan: true})
	got, err := r.Fetch("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("[not json]"), got)

	_, err = openBytes(t, []byte("no index here at all"), Options{LegacyScan: true})
	assert.ErrorIs(t, err, asset.ErrFormat)
	assert.False(t, errors.Is(err, asset.ErrIO))
}

func TestPathsAndEntry(t *testing.T) {
	t.Parallel()

	data, records := testutil.BuildPackage(t, fixtureAssets())
	r := mustOpen(t, data, Options{})

	paths := r.Paths()
	assert.IsIncreasing(t, paths)
	assert.Len(t, paths, len(records))

	e, ok := r.Entry("levels/zstd.txt")
	require.True(t, ok)
	assert.True(t, e.Compressed)
	assert.Equal(t, "zstd", e.Compression)
	assert.Equal(t, records[4].Offset, e.Offset)
	assert.NotEmpty(t, e.Digest)

	_, ok = r.Entry("missing")
	assert.False(t, ok)
}
