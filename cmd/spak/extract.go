package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jchantrell/spak/internal/export"
	"github.com/jchantrell/spak/internal/pak"
	"github.com/jchantrell/spak/internal/utils"
)

var (
	extractOut     string
	extractFiles   []string
	extractMeta    bool
	extractFlatten bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Write assets out to a directory",
	Long: `Extract writes assets from the configured source to a directory that the
filesystem source can serve. With a package source every entry is extracted
unless --files narrows the list; other sources need --files.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		start := time.Now()

		src, err := openSource()
		if err != nil {
			return err
		}
		if c, ok := src.(io.Closer); ok {
			defer c.Close()
		}

		files := extractFiles
		if len(files) == 0 {
			r, ok := src.(*pak.Reader)
			if !ok {
				return fmt.Errorf("--files is required for the %s source", cfg.Source)
			}
			files = r.Paths()
		}

		slog.Info("Starting extract...", "assets", len(files), "output", extractOut, "jobs", cfg.Jobs)

		progress := utils.NewProgress(len(files), progressEnabled())
		exporter := export.NewExporter(src, extractOut, export.Options{
			Jobs:     cfg.Jobs,
			Metadata: extractMeta,
			Flatten:  extractFlatten,
		})

		err = exporter.ExportFiles(ctx, files, progress.Increment)
		progress.Finish()
		if err != nil {
			return fmt.Errorf("extracting assets: %w", err)
		}

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		fmt.Printf("Assets extracted: %s\n", utils.Number(int64(len(files))))
		fmt.Printf("Total duration: %s\n", utils.Duration(time.Since(start)))
		fmt.Printf("Memory usage: %s\n", utils.Bytes(mem.Alloc))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", "extracted", "output directory")
	extractCmd.Flags().StringSliceVar(&extractFiles, "files", []string{}, "comma-separated list of assets to extract")
	extractCmd.Flags().BoolVar(&extractMeta, "meta", true, "write metadata sidecars")
	extractCmd.Flags().BoolVar(&extractFlatten, "flatten", false, "write every asset to the top level, replacing / with @")
}
