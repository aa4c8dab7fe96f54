package hashmap

import "log/slog"

// DefaultLoadFactor is the target load factor at the expected maximum size.
const DefaultLoadFactor = 0.8

type options[K comparable] struct {
	loadFactor float64
	hasher     func(K) uint64
	logger     *slog.Logger
}

// Option configures a Map.
type Option[K comparable] func(*options[K])

// WithLoadFactor sets the target load factor. Values above 1 are clamped.
func WithLoadFactor[K comparable](lf float64) Option[K] {
	return func(o *options[K]) {
		o.loadFactor = lf
	}
}

// WithHasher overrides the key hash. The default hashes the raw key bytes
// with xxhash.
func WithHasher[K comparable](fn func(K) uint64) Option[K] {
	return func(o *options[K]) {
		o.hasher = fn
	}
}

// WithLogger configures structured logging. Pass nil to disable logging.
func WithLogger[K comparable](l *slog.Logger) Option[K] {
	return func(o *options[K]) {
		o.logger = l
	}
}

func applyOptions[K comparable](optFns []Option[K]) options[K] {
	o := options[K]{loadFactor: DefaultLoadFactor}

	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	switch {
	case !(o.loadFactor > 0):
		o.loadFactor = DefaultLoadFactor
	case o.loadFactor > 1:
		o.loadFactor = 1
	}

	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	return o
}
