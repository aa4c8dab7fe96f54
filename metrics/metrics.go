// Package metrics defines the collector interface the storage components
// report to, together with a no-op and an in-memory implementation.
package metrics

import (
	"sync/atomic"
	"time"
)

// Collector receives operational events from memory regions, allocators and
// the kv/index layers. Implementations must be safe for concurrent use.
//
// Example Prometheus integration:
//
//	c := prom.NewCollector("mmstore")
//	prometheus.MustRegister(c)
//	store, _ := kv.Open[uint64](dir, meta, kv.WithMetrics(c))
type Collector interface {
	// RecordGrow is called after a region extended its capacity.
	RecordGrow(component string, capacity uint64)

	// RecordAlloc is called after each successful allocation. reused is true
	// when the block came from a free stack instead of fresh memory.
	RecordAlloc(component string, bytes uint64, reused bool)

	// RecordFree is called when a block enters the delay queue.
	RecordFree(component string, bytes uint64)

	// RecordOp is called after a kv or index operation.
	RecordOp(component, op string, duration time.Duration, err error)
}

// Noop is a no-op implementation of Collector.
type Noop struct{}

func (Noop) RecordGrow(string, uint64)                     {}
func (Noop) RecordAlloc(string, uint64, bool)              {}
func (Noop) RecordFree(string, uint64)                     {}
func (Noop) RecordOp(string, string, time.Duration, error) {}

// OrNoop returns c, or Noop when c is nil.
func OrNoop(c Collector) Collector {
	if c == nil {
		return Noop{}
	}

	return c
}

// Basic provides simple in-memory metrics collection.
// Useful for debugging and tests without external dependencies.
type Basic struct {
	Grows        atomic.Int64
	Capacity     atomic.Uint64
	Allocs       atomic.Int64
	ReusedAllocs atomic.Int64
	AllocBytes   atomic.Uint64
	Frees        atomic.Int64
	FreeBytes    atomic.Uint64
	Ops          atomic.Int64
	OpErrors     atomic.Int64
	OpNanos      atomic.Int64
}

// RecordGrow implements Collector.
func (b *Basic) RecordGrow(_ string, capacity uint64) {
	b.Grows.Add(1)
	b.Capacity.Store(capacity)
}

// RecordAlloc implements Collector.
func (b *Basic) RecordAlloc(_ string, bytes uint64, reused bool) {
	b.Allocs.Add(1)
	b.AllocBytes.Add(bytes)
	if reused {
		b.ReusedAllocs.Add(1)
	}
}

// RecordFree implements Collector.
func (b *Basic) RecordFree(_ string, bytes uint64) {
	b.Frees.Add(1)
	b.FreeBytes.Add(bytes)
}

// RecordOp implements Collector.
func (b *Basic) RecordOp(_, _ string, duration time.Duration, err error) {
	b.Ops.Add(1)
	b.OpNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.OpErrors.Add(1)
	}
}

// Stats is a point-in-time copy of a Basic collector.
type Stats struct {
	Grows        int64
	Capacity     uint64
	Allocs       int64
	ReusedAllocs int64
	AllocBytes   uint64
	Frees        int64
	FreeBytes    uint64
	Ops          int64
	OpErrors     int64
	OpAvgNanos   int64
}

// GetStats returns a snapshot of the collected values.
func (b *Basic) GetStats() Stats {
	s := Stats{
		Grows:        b.Grows.Load(),
		Capacity:     b.Capacity.Load(),
		Allocs:       b.Allocs.Load(),
		ReusedAllocs: b.ReusedAllocs.Load(),
		AllocBytes:   b.AllocBytes.Load(),
		Frees:        b.Frees.Load(),
		FreeBytes:    b.FreeBytes.Load(),
		Ops:          b.Ops.Load(),
		OpErrors:     b.OpErrors.Load(),
	}
	if s.Ops > 0 {
		s.OpAvgNanos = b.OpNanos.Load() / s.Ops
	}

	return s
}
