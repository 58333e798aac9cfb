package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jchantrell/spak/internal/codec"
)

var codecsCmd = &cobra.Command{
	Use:   "codecs",
	Short: "List supported compression tags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range codec.Names() {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(codecsCmd)
}
