package alloc

import (
	"sync"
	"unsafe"
)

var _ Allocator = (*Heap)(nil)

type heapBlock struct {
	buf      []byte
	borrowed bool
}

// Heap is an allocator backed by the Go heap. Offsets are opaque handles
// that stay unique for the lifetime of the allocator. Nothing is persisted.
type Heap struct {
	opts options

	mu     sync.RWMutex
	next   uint64
	blocks map[uint64]*heapBlock
}

// NewHeap creates an empty heap allocator.
func NewHeap(optFns ...Option) *Heap {
	o := applyOptions(optFns)
	if o.name == "alloc" {
		o.name = "heap"
	}

	return &Heap{
		opts:   o,
		next:   HeaderSize,
		blocks: make(map[uint64]*heapBlock),
	}
}

func (h *Heap) Allocate(size uint64) (uint64, error) {
	if size > MaxLength {
		return 0, ErrTooLarge
	}

	// Backed by uint64 words so that blocks are 8-byte aligned like
	// region-backed blocks.
	words := make([]uint64, (size+7)/8)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), len(words)*8)[:size:size]

	h.mu.Lock()
	off := h.next
	h.next += HeaderSize
	h.blocks[off] = &heapBlock{buf: buf}
	h.mu.Unlock()

	h.opts.metrics.RecordAlloc(h.opts.name, size, false)

	return off, nil
}

func (h *Heap) Deallocate(off uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.blocks[off]
	if !ok || b.borrowed {
		return nil
	}

	delete(h.blocks, off)
	h.opts.metrics.RecordFree(h.opts.name, uint64(len(b.buf)))

	return nil
}

func (h *Heap) block(off uint64) *heapBlock {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.blocks[off]
}

func (h *Heap) Bytes(off uint64) []byte {
	if b := h.block(off); b != nil {
		return b.buf
	}

	return nil
}

func (h *Heap) Size(off uint64) uint64 {
	return uint64(len(h.Bytes(off)))
}

func (h *Heap) Pointer(off uint64) unsafe.Pointer {
	if b := h.block(off); b != nil {
		return unsafe.Pointer(unsafe.SliceData(b.buf))
	}

	return nil
}

func (h *Heap) Borrowed(off uint64) bool {
	if b := h.block(off); b != nil {
		return b.borrowed
	}

	return false
}

func (h *Heap) SetBorrowed(off uint64, borrowed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if b, ok := h.blocks[off]; ok {
		b.borrowed = borrowed
	}
}

// Len returns the number of live blocks.
func (h *Heap) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.blocks)
}

// Dump is a no-op.
func (h *Heap) Dump() error { return nil }
