package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	getOut  string
	getMeta bool
)

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Fetch one asset, or its metadata, through the asset manager",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openManager()
		if err != nil {
			return err
		}
		defer m.Close()

		path := args[0]

		if getMeta {
			meta, err := m.GetMetadata(path)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(meta)
		}

		data, err := m.GetAsset(path)
		if err != nil {
			return err
		}

		if getOut == "" {
			_, err = os.Stdout.Write(data)
			return err
		}

		if err := os.WriteFile(getOut, data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", getOut, err)
		}
		slog.Info("Wrote asset", "path", path, "output", getOut, "size", len(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().StringVarP(&getOut, "out", "o", "", "write the asset to this file instead of stdout")
	getCmd.Flags().BoolVar(&getMeta, "meta", false, "print the asset's metadata as JSON")
}
