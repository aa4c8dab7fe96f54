package snapshot

import (
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/hupe1980/mmstore/internal/resource"
	"github.com/hupe1980/mmstore/metrics"
)

// DefaultConcurrency is the number of files transferred in parallel.
const DefaultConcurrency = 4

type options struct {
	compression Compression
	limits      resource.Config
	clock       clock.Clock
	logger      *slog.Logger
	metrics     metrics.Collector
}

// Option configures Export and Import.
type Option func(*options)

// WithCompression sets the compression for exported files. Import reads the
// compression of each file from the manifest.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithConcurrency sets the number of files transferred in parallel.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.limits.MaxWorkers = int64(n)
	}
}

// WithMaxInFlightBytes caps the file bytes buffered by concurrent transfers.
func WithMaxInFlightBytes(n int64) Option {
	return func(o *options) {
		o.limits.MaxInFlightBytes = n
	}
}

// WithBytesPerSec limits the transferred (stored) bytes per second.
func WithBytesPerSec(n int64) Option {
	return func(o *options) {
		o.limits.BytesPerSec = n
	}
}

// WithClock sets the clock used for manifest timestamps.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		compression: CompressionZstd,
		limits:      resource.Config{MaxWorkers: DefaultConcurrency},
		clock:       clock.New(),
		logger:      slog.New(slog.DiscardHandler),
	}

	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	o.metrics = metrics.OrNoop(o.metrics)

	return o
}
