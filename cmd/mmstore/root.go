package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hupe1980/mmstore"
)

type rootT struct {
	logFormat string
	logLevel  string
}

func newRootCmd() *cobra.Command {
	r := &rootT{}

	root := &cobra.Command{
		Use:           "mmstore",
		Short:         "mmstore region and snapshot tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&r.logFormat, "log-format", "text", "log format (text, json)")
	root.PersistentFlags().StringVar(&r.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newMetaCmd(),
		newSchemaCmd(),
		newExportCmd(r),
		newImportCmd(r),
		newManifestCmd(),
	)

	return root
}

func (r *rootT) logger(cmd *cobra.Command) (*slog.Logger, error) {
	level, err := mmstore.ParseLevel(r.logLevel)
	if err != nil {
		return nil, err
	}

	return mmstore.NewLogger(cmd.ErrOrStderr(), r.logFormat, level), nil
}
