package alloc

import (
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/hupe1980/mmstore/metrics"
)

// ReclaimFunc is called with a block that leaves the delay queue, right
// before it is pushed onto its free stack.
type ReclaimFunc func(off uint64, block []byte)

type options struct {
	name    string
	replace bool
	clock   clock.Clock
	reclaim ReclaimFunc
	logger  *slog.Logger
	metrics metrics.Collector
}

// Option configures an allocator.
type Option func(*options)

// WithName sets the component name reported to the metrics collector.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithReplace enables the single-generation mode of Bump: a deallocation
// marks the region stale and the next allocation resets it.
func WithReplace() Option {
	return func(o *options) {
		o.replace = true
	}
}

// WithClock sets the clock driving the delay queue of Recycled.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithReclaimHook registers a callback invoked when a block of Recycled
// becomes reusable.
func WithReclaimHook(fn ReclaimFunc) Option {
	return func(o *options) {
		o.reclaim = fn
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
	o := options{name: "alloc"}

	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	if o.clock == nil {
		o.clock = clock.New()
	}

	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	o.metrics = metrics.OrNoop(o.metrics)

	return o
}
