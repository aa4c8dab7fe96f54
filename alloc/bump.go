package alloc

import (
	"fmt"
	"sync"

	"github.com/hupe1980/mmstore/memory"
)

var _ Allocator = (*Bump)(nil)

// Bump is an allocator that never reuses memory.
type Bump struct {
	blocks

	opts  options
	mu    sync.Mutex
	stale bool
}

// NewBump creates a bump allocator over mem.
func NewBump(mem memory.Memory, optFns ...Option) *Bump {
	return &Bump{
		blocks: blocks{mem: mem},
		opts:   applyOptions(optFns),
	}
}

// Allocate carves a block of exactly size bytes from the region.
func (b *Bump) Allocate(size uint64) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stale {
		if err := b.mem.Reset(); err != nil {
			return 0, fmt.Errorf("alloc: reset stale region: %w", err)
		}

		b.stale = false
		b.opts.logger.Debug("bump region replaced", "component", b.opts.name)
	}

	off, err := b.carve(size)
	if err != nil {
		b.opts.logger.Warn("bump allocation failed", "component", b.opts.name, "size", size, "error", err)
		return 0, err
	}

	b.opts.metrics.RecordAlloc(b.opts.name, size, false)

	return off, nil
}

// Deallocate is a no-op unless replace mode is enabled, in which case the
// whole region is reset on the next Allocate.
func (b *Bump) Deallocate(off uint64) error {
	if off == 0 || b.Borrowed(off) {
		return nil
	}

	if b.mem.ReadOnly() {
		return memory.ErrReadOnly
	}

	if b.opts.replace {
		b.mu.Lock()
		b.stale = true
		b.mu.Unlock()
	}

	return nil
}

// Dump persists the underlying region.
func (b *Bump) Dump() error {
	return b.mem.Dump()
}
