package catalog

import (
	"context"
	"fmt"
	"log/slog"
)

// schema is applied in order. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS packages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		size INTEGER NOT NULL,
		entry_count INTEGER NOT NULL,
		cataloged_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS entries (
		package_id INTEGER NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		data_offset INTEGER NOT NULL,
		size INTEGER NOT NULL,
		original_size INTEGER NOT NULL,
		compressed INTEGER NOT NULL,
		compression TEXT NOT NULL,
		digest TEXT,
		meta TEXT,
		PRIMARY KEY (package_id, path)
	)`,
	`CREATE INDEX IF NOT EXISTS entries_path ON entries(path)`,
	`CREATE INDEX IF NOT EXISTS entries_compression ON entries(compression)`,
}

// CreateSchema creates the catalog tables when they do not exist yet.
func (d *Database) CreateSchema(ctx context.Context) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating catalog schema: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema: %w", err)
	}

	slog.Debug("Catalog schema ready", "database", d.path)
	return nil
}
