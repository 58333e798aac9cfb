package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/jchantrell/spak/internal/catalog"
	"github.com/jchantrell/spak/internal/utils"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Record a package index in the SQLite catalog",
	Long: `Catalog writes every entry of the package into the catalog database, replacing
any earlier catalog of the same package. Metadata is stored as JSON so it can be
queried with SQLite's json functions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		start := time.Now()

		r, err := openPackage()
		if err != nil {
			return err
		}
		defer r.Close()

		db, err := catalog.Open(catalog.DefaultOptions(cfg.Database))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		if err := db.CreateSchema(ctx); err != nil {
			return err
		}

		n, err := catalog.NewWriter(db, 1000).WritePackage(ctx, r)
		if err != nil {
			return err
		}

		slog.Info("Catalogued package", "package", r.Name(), "entries", n, "database", db.Path())
		fmt.Printf("Entries catalogued: %s\n", utils.Number(int64(n)))
		fmt.Printf("Total duration: %s\n", utils.Duration(time.Since(start)))
		fmt.Println("Try running: spak query \"SELECT path, size FROM entries ORDER BY size DESC LIMIT 10\"")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}
