package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds transfer limits. Zero values mean unlimited, except
// MaxWorkers which defaults to 1.
type Config struct {
	// MaxInFlightBytes caps the bytes held in memory by concurrent transfers.
	// A single request larger than the cap is clamped to it.
	MaxInFlightBytes int64

	// MaxWorkers is the maximum number of concurrent transfers.
	MaxWorkers int64

	// BytesPerSec limits transfer throughput.
	BytesPerSec int64
}

// Controller enforces a Config.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	workers *semaphore.Weighted

	limiter *rate.Limiter // nil if unlimited
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}

	c := &Controller{
		cfg:     cfg,
		workers: semaphore.NewWeighted(cfg.MaxWorkers),
	}

	if cfg.MaxInFlightBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MaxInFlightBytes)
	}

	if cfg.BytesPerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.BytesPerSec), int(cfg.BytesPerSec))
	}

	return c
}

// Workers returns the number of concurrent transfers allowed.
func (c *Controller) Workers() int {
	if c == nil {
		return 1
	}

	return int(c.cfg.MaxWorkers)
}

func (c *Controller) weight(bytes int64) int64 {
	if c.cfg.MaxInFlightBytes > 0 && bytes > c.cfg.MaxInFlightBytes {
		return c.cfg.MaxInFlightBytes
	}

	return bytes
}

// AcquireMemory blocks until bytes can be buffered.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, c.weight(bytes)); err != nil {
			return err
		}
	}

	c.memUsed.Add(bytes)

	return nil
}

// TryAcquireMemory reserves bytes without blocking.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	if c.memSem != nil && !c.memSem.TryAcquire(c.weight(bytes)) {
		return false
	}

	c.memUsed.Add(bytes)

	return true
}

// ReleaseMemory releases bytes reserved by AcquireMemory or TryAcquireMemory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(c.weight(bytes))
	}

	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the bytes currently reserved.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}

	return c.memUsed.Load()
}

// AcquireWorker blocks until a transfer slot is free.
func (c *Controller) AcquireWorker(ctx context.Context) error {
	if c == nil {
		return nil
	}

	return c.workers.Acquire(ctx, 1)
}

// TryAcquireWorker reserves a transfer slot without blocking.
func (c *Controller) TryAcquireWorker() bool {
	if c == nil {
		return true
	}

	return c.workers.TryAcquire(1)
}

// ReleaseWorker releases a transfer slot.
func (c *Controller) ReleaseWorker() {
	if c == nil {
		return
	}

	c.workers.Release(1)
}

// AcquireIO waits until the rate limit allows bytes. Requests larger than
// the bucket are split into bucket-sized waits.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.limiter == nil {
		return nil
	}

	burst := c.limiter.Burst()

	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.limiter.WaitN(ctx, n); err != nil {
			return err
		}

		bytes -= n
	}

	return nil
}
