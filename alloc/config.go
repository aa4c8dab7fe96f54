package alloc

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hupe1980/mmstore/internal/conv"
)

// Config describes the size classes and reuse policy of a Recycled allocator.
type Config struct {
	// MinMemSize is the smallest size class. Values below 8 are raised to 8
	// because a free block stores the next free offset in its first 8 bytes.
	MinMemSize uint64 `json:"min_mem_size" yaml:"min_mem_size"`
	// MaxMemSize is the largest size class. Larger requests fail with ErrTooLarge.
	MaxMemSize uint64 `json:"max_mem_size" yaml:"max_mem_size"`
	// Rate is the growth factor between consecutive size classes.
	Rate float64 `json:"rate" yaml:"rate"`
	// ExpandFactor bounds the size class that may satisfy a request:
	// levels up to LevelOf(size*ExpandFactor) are searched for a free block.
	ExpandFactor float64 `json:"expand_factor" yaml:"expand_factor"`
	// DelayTime is how long a freed block waits before it can be reused.
	DelayTime time.Duration `json:"delay_time" yaml:"delay_time"`
	// DelayQueueSize is the initial capacity of the delay queue.
	DelayQueueSize uint64 `json:"delay_queue_size" yaml:"delay_queue_size"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		MinMemSize:     8,
		MaxMemSize:     1 << 26,
		Rate:           1.25,
		ExpandFactor:   1.5,
		DelayTime:      time.Second,
		DelayQueueSize: 1024,
	}
}

func (c Config) normalize() (Config, error) {
	c.MinMemSize = conv.AlignUp(max(c.MinMemSize, 8), 8)
	c.MaxMemSize = conv.AlignUp(c.MaxMemSize, 8)

	if c.MaxMemSize < c.MinMemSize || c.MaxMemSize > MaxLength {
		return c, fmt.Errorf("%w: max mem size %d (min %d)", ErrInvalidConfig, c.MaxMemSize, c.MinMemSize)
	}

	if !(c.Rate > 1) || math.IsInf(c.Rate, 0) {
		return c, fmt.Errorf("%w: rate %v must be > 1", ErrInvalidConfig, c.Rate)
	}

	if !(c.ExpandFactor >= 1) || math.IsInf(c.ExpandFactor, 0) {
		c.ExpandFactor = 1
	}

	if c.DelayTime < 0 {
		return c, fmt.Errorf("%w: negative delay time", ErrInvalidConfig)
	}

	if c.DelayQueueSize == 0 {
		c.DelayQueueSize = DefaultConfig().DelayQueueSize
	}

	return c, nil
}

// levels returns the strictly increasing, 8-aligned size classes from
// MinMemSize to MaxMemSize.
func (c Config) levels() []uint64 {
	sizes := []uint64{c.MinMemSize}

	for cur := c.MinMemSize; cur < c.MaxMemSize; {
		next := conv.AlignUp(uint64(math.Ceil(float64(cur)*c.Rate)), 8)
		if next <= cur {
			next = cur + 8
		}

		next = min(next, c.MaxMemSize)
		sizes = append(sizes, next)
		cur = next
	}

	return sizes
}

// levelOf returns the smallest level whose size is >= size.
func levelOf(sizes []uint64, size uint64) (int, bool) {
	l := sort.Search(len(sizes), func(i int) bool { return sizes[i] >= size })

	return l, l < len(sizes)
}
