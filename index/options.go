package index

import (
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/hupe1980/mmstore/alloc"
	"github.com/hupe1980/mmstore/metrics"
)

// DefaultMaxKeys is the default number of keys an index is sized for.
const DefaultMaxKeys = 1 << 16

// DefaultIDField is the record field that holds the posting id.
const DefaultIDField = "id"

type options struct {
	maxKeys     uint64
	loadFactor  float64
	readOnly    bool
	maxSize     uint64
	allocConfig alloc.Config
	clock       clock.Clock
	idField     string
	vectorField string
	logger      *slog.Logger
	metrics     metrics.Collector
}

// Option configures an Index.
type Option func(*options)

// WithMaxKeys sets the number of keys the index is sized for. It is fixed
// when the index is created.
func WithMaxKeys(n uint64) Option {
	return func(o *options) {
		o.maxKeys = n
	}
}

// WithLoadFactor sets the load factor of the bucket map.
func WithLoadFactor(lf float64) Option {
	return func(o *options) {
		o.loadFactor = lf
	}
}

// WithReadOnly opens the index read-only.
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

// WithAllocConfig configures the posting allocator.
func WithAllocConfig(cfg alloc.Config) Option {
	return func(o *options) {
		o.allocConfig = cfg
	}
}

// WithClock sets the clock of the posting allocator delay queue.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithIDField names the integer record field holding the posting id.
func WithIDField(name string) Option {
	return func(o *options) {
		o.idField = name
	}
}

// WithVectorField names the float or double array field copied into
// postings. Vector backends require it.
func WithVectorField(name string) Option {
	return func(o *options) {
		o.vectorField = name
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
		idField:     DefaultIDField,
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
