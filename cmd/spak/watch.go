package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jchantrell/spak/internal/asset"
	"github.com/jchantrell/spak/internal/fsys"
)

var watchFiles []string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Serve a directory with hot reload and report changed assets",
	Long: `Watch opens the asset root as a hot reloading source behind the asset
manager, loads the assets named by --files and then reloads them whenever
they change on disk, dropping stale copies from the manager's cache.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Root == "" {
			return fmt.Errorf("no asset root given, use --root or set root in the config file")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		src, err := fsys.NewHotReload(cfg.Root, fsysOptions())
		if err != nil {
			return err
		}

		m, err := asset.NewManager(src, cfg.CacheCapacity, asset.WithLogger(slog.Default()))
		if err != nil {
			src.Close()
			return err
		}
		defer m.Close()

		for _, path := range watchFiles {
			data, err := m.GetAsset(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			slog.Info("Loaded asset", "path", path, "size", len(data))
		}

		w := fsys.NewWatcher(src, cfg.WatchInterval, func(paths []string) {
			for _, path := range paths {
				m.Invalidate(path)
				fmt.Println(path)
			}
		})
		return w.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringSliceVar(&watchFiles, "files", []string{}, "comma-separated list of assets to load and track")
}
