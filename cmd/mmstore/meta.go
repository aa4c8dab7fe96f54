package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/mmstore/memory"
)

func newMetaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "meta <region-files>",
		Short: "print region sidecars",
		Long: `
Print the sidecar of each region file: its kind, allocated bytes, capacity
and the codec that wrote it. Arguments may name the data file or the
sidecar itself.
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tTYPE\tALLOCATED\tCAPACITY\tCODEC")

			for _, arg := range args {
				path := strings.TrimSuffix(arg, memory.MetaSuffix)

				meta, err := memory.LoadMeta(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}

				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", path, meta.Type, meta.Allocated, meta.Capacity, meta.Codec)
			}

			return tw.Flush()
		},
	}
}
