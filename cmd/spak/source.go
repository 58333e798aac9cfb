package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/jchantrell/spak/internal/asset"
	"github.com/jchantrell/spak/internal/config"
	"github.com/jchantrell/spak/internal/fsys"
	"github.com/jchantrell/spak/internal/pak"
)

func policy() asset.Policy {
	p := cfg.Policy()
	p.Logger = slog.Default()
	return p
}

func openPackage() (*pak.Reader, error) {
	if cfg.Package == "" {
		return nil, fmt.Errorf("no package given, use --package or set package in the config file")
	}
	return pak.Open(cfg.Package, pak.Options{
		Policy:     policy(),
		LegacyScan: cfg.LegacyScan,
		ScanWindow: cfg.ScanWindow,
	})
}

func fsysOptions() fsys.Options {
	return fsys.Options{
		Policy:       policy(),
		RelativeOnly: cfg.RelativeRoot,
	}
}

// openSource opens the configured source. The caller owns the result.
func openSource() (asset.Source, error) {
	if err := cfg.ValidateSource(); err != nil {
		return nil, err
	}

	switch cfg.Source {
	case config.SourcePackage:
		return openPackage()
	case config.SourceFilesystem:
		return fsys.New(cfg.Root, fsysOptions())
	case config.SourceHotReload:
		return fsys.NewHotReload(cfg.Root, fsysOptions())
	default:
		return nil, fmt.Errorf("unsupported source %q", cfg.Source)
	}
}

func openManager() (*asset.Manager, error) {
	src, err := openSource()
	if err != nil {
		return nil, err
	}

	m, err := asset.NewManager(src, cfg.CacheCapacity, asset.WithLogger(slog.Default()))
	if err != nil {
		if c, ok := src.(io.Closer); ok {
			c.Close()
		}
		return nil, err
	}
	return m, nil
}

// progressEnabled mirrors when a bar would fight with log output.
func progressEnabled() bool {
	return !(noProgress || cfg.LogFormat == "json" || cfg.LogLevel == "debug")
}
