package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"

	"github.com/hupe1980/mmstore/metrics/prom"
	"github.com/hupe1980/mmstore/snapshot"
)

type transferFlags struct {
	store       string
	compression string
	concurrency int
	bytesPerSec int64
	maxInFlight int64
	metrics     bool
}

func (f *transferFlags) register(cmd *cobra.Command, withCompression bool) {
	cmd.Flags().StringVar(&f.store, "store", "", "blob store (path, file://, s3://bucket/prefix, minio://host/bucket/prefix)")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", snapshot.DefaultConcurrency, "files transferred in parallel")
	cmd.Flags().Int64Var(&f.bytesPerSec, "bytes-per-sec", 0, "transfer rate limit (0 = unlimited)")
	cmd.Flags().Int64Var(&f.maxInFlight, "max-in-flight", 0, "bytes buffered by concurrent transfers (0 = unlimited)")
	cmd.Flags().BoolVar(&f.metrics, "metrics", false, "print transfer metrics when done")

	if withCompression {
		cmd.Flags().StringVar(&f.compression, "compression", "zstd", "compression (none, zstd, lz4)")
	}

	_ = cmd.MarkFlagRequired("store")
}

func (f *transferFlags) options(r *rootT, cmd *cobra.Command, collector *prom.Collector) ([]snapshot.Option, error) {
	logger, err := r.logger(cmd)
	if err != nil {
		return nil, err
	}

	opts := []snapshot.Option{
		snapshot.WithConcurrency(f.concurrency),
		snapshot.WithBytesPerSec(f.bytesPerSec),
		snapshot.WithMaxInFlightBytes(f.maxInFlight),
		snapshot.WithLogger(logger),
		snapshot.WithMetrics(collector),
	}

	if f.compression != "" {
		c, err := snapshot.ParseCompression(f.compression)
		if err != nil {
			return nil, err
		}

		opts = append(opts, snapshot.WithCompression(c))
	}

	return opts, nil
}

func newExportCmd(r *rootT) *cobra.Command {
	f := &transferFlags{}

	cmd := &cobra.Command{
		Use:   "export <dir> <prefix>",
		Short: "upload a dumped directory as a snapshot",
		Long: `
Upload every file of a dumped directory to the blob store below prefix and
write the snapshot manifest last. Dump (and close) all regions first.
`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), f.store)
			if err != nil {
				return err
			}

			collector := prom.NewCollector("mmstore")

			opts, err := f.options(r, cmd, collector)
			if err != nil {
				return err
			}

			m, err := snapshot.Export(cmd.Context(), args[0], store, args[1], opts...)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "exported %d files, %d bytes (%d stored)\n", len(m.Files), m.Size(), m.StoredSize())

			if f.metrics {
				return printMetrics(cmd.OutOrStdout(), collector)
			}

			return nil
		},
	}

	f.register(cmd, true)

	return cmd
}

func newImportCmd(r *rootT) *cobra.Command {
	f := &transferFlags{}

	cmd := &cobra.Command{
		Use:   "import <prefix> <dir>",
		Short: "download a snapshot into a directory",
		Long: `
Download the snapshot below prefix into dir, verifying the size and CRC32C
of every file against the manifest.
`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), f.store)
			if err != nil {
				return err
			}

			collector := prom.NewCollector("mmstore")

			opts, err := f.options(r, cmd, collector)
			if err != nil {
				return err
			}

			m, err := snapshot.Import(cmd.Context(), store, args[0], args[1], opts...)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d files, %d bytes\n", len(m.Files), m.Size())

			if f.metrics {
				return printMetrics(cmd.OutOrStdout(), collector)
			}

			return nil
		},
	}

	f.register(cmd, false)

	return cmd
}

func newManifestCmd() *cobra.Command {
	var storeURL string

	cmd := &cobra.Command{
		Use:   "manifest <prefix>",
		Short: "print a snapshot manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), storeURL)
			if err != nil {
				return err
			}

			m, err := snapshot.Load(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "created: %s\n\n", m.Created.Format("2006-01-02T15:04:05Z07:00"))

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tSTORED\tCOMPRESSION\tCRC32C")

			for _, file := range m.Files {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%08x\n", file.Name, file.Size, file.StoredSize, file.Compression, file.CRC32C)
			}

			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&storeURL, "store", "", "blob store (path, file://, s3://bucket/prefix, minio://host/bucket/prefix)")
	_ = cmd.MarkFlagRequired("store")

	return cmd
}

// printMetrics gathers the collector and prints counters and histogram
// counts as "name{labels} value" lines.
func printMetrics(w io.Writer, collector *prom.Collector) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collector); err != nil {
		return err
	}

	families, err := reg.Gather()
	if err != nil {
		return err
	}

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fmt.Fprintf(w, "%s%s %s\n", mf.GetName(), labels(m), value(mf.GetType(), m))
		}
	}

	return nil
}

func labels(m *dto.Metric) string {
	if len(m.GetLabel()) == 0 {
		return ""
	}

	s := "{"
	for i, l := range m.GetLabel() {
		if i > 0 {
			s += ","
		}

		s += fmt.Sprintf("%s=%q", l.GetName(), l.GetValue())
	}

	return s + "}"
}

func value(t dto.MetricType, m *dto.Metric) string {
	switch t {
	case dto.MetricType_COUNTER:
		return fmt.Sprint(m.GetCounter().GetValue())
	case dto.MetricType_GAUGE:
		return fmt.Sprint(m.GetGauge().GetValue())
	case dto.MetricType_HISTOGRAM:
		h := m.GetHistogram()
		return fmt.Sprintf("count=%d sum=%gs", h.GetSampleCount(), h.GetSampleSum())
	default:
		return "?"
	}
}
