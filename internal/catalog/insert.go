package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jchantrell/spak/internal/pak"
)

const insertEntrySQL = `INSERT INTO entries
	(package_id, path, data_offset, size, original_size, compressed, compression, digest, meta)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Writer records package indices in batches
type Writer struct {
	db        *Database
	batchSize int
}

// NewWriter creates a writer. A batchSize of zero or less uses 1000.
func NewWriter(db *Database, batchSize int) *Writer {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Writer{db: db, batchSize: batchSize}
}

// Package is the subset of a package reader the catalog needs
type Package interface {
	Name() string
	Size() int64
	Paths() []string
	Entry(path string) (pak.Entry, bool)
}

// WritePackage replaces any previous catalog of p with its current index and
// returns the number of entries written.
func (w *Writer) WritePackage(ctx context.Context, p Package) (int, error) {
	paths := p.Paths()

	id, err := w.replacePackage(ctx, p, len(paths))
	if err != nil {
		return 0, err
	}

	for i := 0; i < len(paths); i += w.batchSize {
		end := min(i+w.batchSize, len(paths))
		if err := w.insertBatch(ctx, id, p, paths[i:end]); err != nil {
			return i, fmt.Errorf("inserting entries %d-%d for %s: %w", i, end-1, p.Name(), err)
		}
		slog.Debug("Catalogued batch", "package", p.Name(), "from", i, "to", end-1)
	}

	return len(paths), nil
}

func (w *Writer) replacePackage(ctx context.Context, p Package, count int) (int64, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	// Entries go with their package via ON DELETE CASCADE.
	if _, err := tx.ExecContext(ctx, `DELETE FROM packages WHERE name = ?`, p.Name()); err != nil {
		return 0, fmt.Errorf("removing previous catalog for %s: %w", p.Name(), err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO packages (name, size, entry_count, cataloged_at) VALUES (?, ?, ?, ?)`,
		p.Name(), p.Size(), count, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("recording package %s: %w", p.Name(), err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading package id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return id, nil
}

func (w *Writer) insertBatch(ctx context.Context, id int64, p Package, paths []string) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // Safe to call even after commit

	stmt, err := tx.PrepareContext(ctx, insertEntrySQL)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, path := range paths {
		e, ok := p.Entry(path)
		if !ok {
			continue
		}

		meta, err := encodeMeta(e)
		if err != nil {
			return fmt.Errorf("encoding metadata for %s: %w", path, err)
		}

		var digest sql.NullString
		if e.Digest != "" {
			digest = sql.NullString{String: e.Digest, Valid: true}
		}

		if _, err := stmt.ExecContext(ctx, id, e.Path, int64(e.Offset), int64(e.Size),
			int64(e.OriginalSize), e.Compressed, e.Compression, digest, meta); err != nil {
			return fmt.Errorf("inserting %s: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// encodeMeta stores metadata as a JSON document so SQLite's json functions
// can query it.
func encodeMeta(e pak.Entry) (sql.NullString, error) {
	if len(e.Meta) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(e.Meta)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
