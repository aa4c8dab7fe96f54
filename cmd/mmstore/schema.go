package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/mmstore/record"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <schema-file>",
		Short: "validate a record schema and print its layout",
		Long: `
Parse a JSON or YAML schema document, validate it and print where each
field lives in the fixed record layout.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := loadSchema(args[0])
			if err != nil {
				return err
			}

			acc := record.NewAccessor(meta)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TAG\tNAME\tTYPE\tCOUNT\tBITS\tBYTE OFF\tBYTE SIZE\tBIT OFF\tBIT SIZE")

			for _, f := range meta.Fields() {
				b, _ := acc.Block(f.Tag)
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
					f.Tag, f.Name, f.Type, f.Count, f.Width(),
					b.ByteOffset, b.ByteSize, b.BitOffset, b.BitSize)
			}

			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\nrecord size: %d bytes (byte region %d, bit region %d)\n",
				acc.Size(), acc.ByteRegionSize(), acc.BitRegionSize())

			return nil
		},
	}
}

func loadSchema(path string) (*record.RecordMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return record.ParseJSON(data)
	default:
		return record.ParseYAML(data)
	}
}
