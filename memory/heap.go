package memory

import (
	"fmt"

	"github.com/hupe1980/mmstore/internal/conv"
	"github.com/hupe1980/mmstore/internal/mmap"
)

var _ Memory = (*Heap)(nil)

// Heap is an ephemeral Memory backed by an anonymous mapping. Nothing is
// persisted; Dump is a no-op.
type Heap struct {
	region

	mapping *mmap.Mapping
}

// NewHeap reserves an anonymous region of WithMaxSize bytes
// (DefaultHeapMaxSize unless overridden).
func NewHeap(optFns ...Option) (*Heap, error) {
	o := applyOptions(DefaultHeapMaxSize, optFns)
	o.readOnly = false

	size, err := conv.Uint64ToInt(o.maxSize)
	if err != nil {
		return nil, err
	}

	mapping, err := mmap.MapAnon(size)
	if err != nil {
		return nil, fmt.Errorf("memory: reserve heap region: %w", err)
	}

	h := &Heap{
		region:  region{opts: o, kind: KindHeap, data: mapping.Bytes()},
		mapping: mapping,
	}
	// Anonymous pages are already addressable; growth is bookkeeping only.
	h.extend = func(uint64) error { return nil }
	h.allocated.Store(StartOffset)
	h.capacity.Store(o.initialSize)

	return h, nil
}

// Dump is a no-op for heap regions.
func (h *Heap) Dump() error { return nil }

// Close releases the anonymous mapping.
func (h *Heap) Close() error {
	if h.closed.Swap(true) {
		return nil
	}

	h.data = nil

	return h.mapping.Close()
}
