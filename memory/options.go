package memory

import (
	"log/slog"

	"github.com/hupe1980/mmstore/codec"
	"github.com/hupe1980/mmstore/metrics"
)

const (
	// DefaultInitialSize is the initial capacity of a fresh region (1 MiB).
	DefaultInitialSize = 1 << 20
	// DefaultExpandSize is the minimum growth step (16 MiB).
	DefaultExpandSize = 1 << 24
	// DefaultMaxSize is the default hard limit of an mmap region (64 GiB of address space).
	DefaultMaxSize = 1 << 36
	// DefaultHeapMaxSize is the default hard limit of a heap region (4 GiB of address space).
	DefaultHeapMaxSize = 1 << 32
)

type options struct {
	initialSize uint64
	expandSize  uint64
	maxSize     uint64
	readOnly    bool
	name        string
	codec       codec.Codec
	logger      *slog.Logger
	metrics     metrics.Collector
}

// Option configures a Memory.
type Option func(*options)

// WithInitialSize sets the capacity of a freshly created region.
func WithInitialSize(size uint64) Option {
	return func(o *options) {
		o.initialSize = size
	}
}

// WithExpandSize sets the minimum number of bytes added on growth.
func WithExpandSize(size uint64) Option {
	return func(o *options) {
		o.expandSize = size
	}
}

// WithMaxSize sets the hard capacity limit. The whole range is reserved as
// address space when the region is opened.
func WithMaxSize(size uint64) Option {
	return func(o *options) {
		o.maxSize = size
	}
}

// WithReadOnly opens the region without write access.
func WithReadOnly() Option {
	return func(o *options) {
		o.readOnly = true
	}
}

// WithName sets the component name reported to the metrics collector.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithCodec sets the codec used to write the sidecar metadata.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		o.codec = c
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

func applyOptions(maxSize uint64, optFns []Option) options {
	o := options{
		initialSize: DefaultInitialSize,
		expandSize:  DefaultExpandSize,
		maxSize:     maxSize,
		name:        "memory",
	}

	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	o.codec = codec.OrDefault(o.codec)
	o.metrics = metrics.OrNoop(o.metrics)

	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	if o.initialSize > o.maxSize {
		o.initialSize = o.maxSize
	}

	if o.expandSize == 0 {
		o.expandSize = DefaultExpandSize
	}

	return o
}
