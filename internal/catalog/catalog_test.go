package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/spak/internal/pak"
	"github.com/jchantrell/spak/internal/testutil"
)

func openCatalog(t *testing.T) *Database {
	t.Helper()
	db, err := Open(DefaultOptions(filepath.Join(t.TempDir(), "nested", "catalog.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.CreateSchema(context.Background()))
	return db
}

func openPackage(t *testing.T, assets []testutil.Asset) *pak.Reader {
	t.Helper()
	data, _ := testutil.BuildPackage(t, assets)
	path := testutil.WriteFile(t, t.TempDir(), "assets.spak", data)
	r, err := pak.Open(path, pak.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestOpenValidates(t *testing.T) {
	t.Parallel()

	_, err := Open(nil)
	assert.Error(t, err)
	_, err = Open(&Options{})
	assert.Error(t, err)
}

func TestWritePackage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openCatalog(t)
	r := openPackage(t, []testutil.Asset{
		{Path: "a.txt", Data: []byte("aaaa aaaa aaaa aaaa"), Compression: "zlib", Meta: map[string]any{"kind": "text"}},
		{Path: "b.bin", Data: []byte{1, 2, 3}, Digest: true},
		{Path: "c.bin", Data: []byte{4}},
	})

	n, err := NewWriter(db, 2).WritePackage(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var count int
	require.NoError(t, db.QueryRow(ctx, `SELECT entry_count FROM packages WHERE name = ?`, r.Name()).Scan(&count))
	assert.Equal(t, 3, count)

	var compression, kind string
	var original int64
	require.NoError(t, db.QueryRow(ctx,
		`SELECT compression, original_size, json_extract(meta, '$.kind') FROM entries WHERE path = 'a.txt'`,
	).Scan(&compression, &original, &kind))
	assert.Equal(t, "zlib", compression)
	assert.Equal(t, int64(19), original)
	assert.Equal(t, "text", kind)

	var digested int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM entries WHERE digest IS NOT NULL`).Scan(&digested))
	assert.Equal(t, 1, digested)
}

func TestWritePackageReplacesPreviousCatalog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openCatalog(t)
	r := openPackage(t, []testutil.Asset{{Path: "a", Data: []byte("a")}, {Path: "b", Data: []byte("b")}})

	w := NewWriter(db, 0)
	for range 2 {
		_, err := w.WritePackage(ctx, r)
		require.NoError(t, err)
	}

	var packages, entries int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM packages`).Scan(&packages))
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM entries`).Scan(&entries))
	assert.Equal(t, 1, packages)
	assert.Equal(t, 2, entries)
}

func TestTables(t *testing.T) {
	t.Parallel()

	db := openCatalog(t)
	tables, err := db.Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"entries", "packages"}, tables)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
	_, err = db.Tables(context.Background())
	assert.Error(t, err)
}
