package kv

import (
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/hupe1980/mmstore/alloc"
	"github.com/hupe1980/mmstore/metrics"
)

// DefaultMaxKeys is the default capacity of the key map.
const DefaultMaxKeys = 1 << 20

type options struct {
	maxKeys     uint64
	loadFactor  float64
	readOnly    bool
	maxSize     uint64
	allocConfig alloc.Config
	clock       clock.Clock
	logger      *slog.Logger
	metrics     metrics.Collector
}

// Option configures a KV.
type Option func(*options)

// WithMaxKeys sets the number of keys the store is sized for. It is fixed
// when the store is created.
func WithMaxKeys(n uint64) Option {
	return func(o *options) {
		o.maxKeys = n
	}
}

// WithLoadFactor sets the load factor of the key map.
func WithLoadFactor(lf float64) Option {
	return func(o *options) {
		o.loadFactor = lf
	}
}

// WithReadOnly opens every region read-only.
func WithReadOnly() Option {
	return func(o *options) {
		o.readOnly = true
	}
}

// WithMaxSize sets the hard size limit of each backing region.
func WithMaxSize(size uint64) Option {
	return func(o *options) {
		o.maxSize = size
	}
}

// WithAllocConfig configures the allocator holding strings and arrays.
func WithAllocConfig(cfg alloc.Config) Option {
	return func(o *options) {
		o.allocConfig = cfg
	}
}

// WithClock sets the clock of the delay queue.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLogger configures structured logging. Pass nil to disable logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics configures a metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		maxKeys:     DefaultMaxKeys,
		allocConfig: alloc.DefaultConfig(),
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
