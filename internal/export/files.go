// Package export writes assets from any source out to a directory tree that
// the filesystem source can serve again.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jchantrell/spak/internal/asset"
	"github.com/jchantrell/spak/internal/fsys"
)

// Options configures an export
type Options struct {
	// Jobs bounds the number of assets fetched and written at once
	Jobs int

	// Metadata writes a "<asset>.meta.json" sidecar next to each asset that
	// has metadata
	Metadata bool

	// Flatten writes every asset into the top level directory, replacing
	// slashes with @
	Flatten bool
}

// ProgressCallback is called after each asset is written. It may be called
// from several goroutines.
type ProgressCallback func(path string)

// Exporter handles exporting assets to disk
type Exporter struct {
	source    asset.Source
	outputDir string
	opts      Options
}

// NewExporter creates a new exporter. source must be safe for concurrent use
// when opts.Jobs is above one.
func NewExporter(source asset.Source, outputDir string, opts Options) *Exporter {
	if opts.Jobs <= 0 {
		opts.Jobs = 1
	}
	return &Exporter{
		source:    source,
		outputDir: outputDir,
		opts:      opts,
	}
}

// ExportFiles writes files below the output directory. The first failure
// cancels the remaining work. Output paths cannot escape the directory.
func (e *Exporter) ExportFiles(ctx context.Context, files []string, progress ProgressCallback) error {
	if len(files) == 0 {
		return nil
	}

	if err := os.MkdirAll(e.outputDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	root, err := os.OpenRoot(e.outputDir)
	if err != nil {
		return fmt.Errorf("opening output directory: %w", err)
	}
	defer root.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Jobs)

	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := e.exportFile(root, file); err != nil {
				return err
			}
			if progress != nil {
				progress(file)
			}
			return nil
		})
	}

	return g.Wait()
}

func (e *Exporter) exportFile(root *os.Root, file string) error {
	data, err := e.source.Fetch(file)
	if err != nil {
		return fmt.Errorf("loading asset %s: %w", file, err)
	}
	if data == nil {
		slog.Warn("Skipping missing asset", "path", file)
		return nil
	}

	name := e.outputName(file)
	if dir := filepath.Dir(name); dir != "." {
		if err := root.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", file, err)
		}
	}

	if err := root.WriteFile(name, data, 0644); err != nil {
		return fmt.Errorf("writing asset %s: %w", file, err)
	}
	slog.Debug("Exported asset", "path", file, "output", name, "size", len(data))

	if !e.opts.Metadata {
		return nil
	}

	meta, err := e.source.FetchMetadata(file)
	if err != nil {
		return fmt.Errorf("loading metadata for %s: %w", file, err)
	}
	if len(meta) == 0 {
		return nil
	}

	doc, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata for %s: %w", file, err)
	}
	if err := root.WriteFile(name+fsys.MetaSuffix, append(doc, '\n'), 0644); err != nil {
		return fmt.Errorf("writing metadata for %s: %w", file, err)
	}
	return nil
}

func (e *Exporter) outputName(file string) string {
	if e.opts.Flatten {
		return sanitizePath(file)
	}
	return filepath.FromSlash(path.Clean(strings.TrimPrefix(file, "/")))
}

// sanitizePath sanitizes a file path for use as a filename
// Replaces forward slashes with @ symbols
func sanitizePath(path string) string {
	return strings.ReplaceAll(path, "/", "@")
}
