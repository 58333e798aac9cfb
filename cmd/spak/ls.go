package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jchantrell/spak/internal/utils"
)

var lsCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "List the entries of a package",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openPackage()
		if err != nil {
			return err
		}
		defer r.Close()

		prefix := ""
		if len(args) > 0 {
			prefix = args[0]
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PATH\tSTORED\tORIGINAL\tCOMPRESSION")

		var count int
		var stored, original uint64
		for _, path := range r.Paths() {
			if !strings.HasPrefix(path, prefix) {
				continue
			}
			e, _ := r.Entry(path)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Path, utils.Bytes(e.Size), utils.Bytes(e.OriginalSize), e.Compression)
			count++
			stored += e.Size
			original += e.OriginalSize
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "%s entries, %s stored, %s original\n",
			utils.Number(int64(count)), utils.Bytes(stored), utils.Bytes(original))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
