package memory

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/hupe1980/mmstore/internal/conv"
)

// region implements the bump accounting shared by MMap and Heap. The backing
// store supplies data (the full reserved range) and extend.
type region struct {
	opts options
	kind Kind
	data []byte

	mu        sync.Mutex
	allocated atomic.Uint64
	capacity  atomic.Uint64
	closed    atomic.Bool

	// extend makes [0, newCap) accessible.
	extend func(newCap uint64) error
}

func (r *region) Kind() Kind { return r.kind }

func (r *region) Allocated() uint64 { return r.allocated.Load() }

func (r *region) Capacity() uint64 { return r.capacity.Load() }

func (r *region) ReadOnly() bool { return r.opts.readOnly }

func (r *region) Allocate(size uint64) (uint64, error) {
	if r.opts.readOnly {
		return 0, ErrReadOnly
	}

	if r.closed.Load() {
		return 0, ErrClosed
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	off := conv.AlignUp(r.allocated.Load(), Alignment)
	end := off + size

	if end < off || end > r.opts.maxSize {
		r.opts.logger.Warn("allocation exceeds region limit",
			"size", size,
			"allocated", r.allocated.Load(),
			"max_size", r.opts.maxSize,
		)

		return 0, fmt.Errorf("allocate %d bytes: %w", size, ErrOutOfSpace)
	}

	if end > r.capacity.Load() {
		if err := r.grow(end); err != nil {
			r.opts.logger.Warn("region growth failed",
				"size", size,
				"capacity", r.capacity.Load(),
				"error", err,
			)

			return 0, err
		}
	}

	r.allocated.Store(end)

	return off, nil
}

// grow must be called with mu held.
func (r *region) grow(need uint64) error {
	capacity := r.capacity.Load()
	newCap := capacity + max(r.opts.expandSize, need-capacity)
	newCap = min(newCap, r.opts.maxSize)

	if newCap < need {
		return fmt.Errorf("grow to %d bytes: %w", need, ErrOutOfSpace)
	}

	if err := r.extend(newCap); err != nil {
		return fmt.Errorf("grow to %d bytes: %w", newCap, err)
	}

	r.capacity.Store(newCap)
	r.opts.metrics.RecordGrow(r.opts.name, newCap)
	r.opts.logger.Debug("region grown", "capacity", newCap)

	return nil
}

func (r *region) Bytes(off, n uint64) []byte {
	end := off + n
	return r.data[off:end:end]
}

func (r *region) Pointer(off uint64) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(r.data[off:]))
}

func (r *region) Reset() error {
	if r.opts.readOnly {
		return ErrReadOnly
	}

	if r.closed.Load() {
		return ErrClosed
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.data[:r.allocated.Load()])
	r.allocated.Store(StartOffset)
	r.opts.logger.Debug("region reset", "capacity", r.capacity.Load())

	return nil
}

func (r *region) meta() Meta {
	return Meta{
		Type:      r.kind.String(),
		Allocated: r.allocated.Load(),
		Capacity:  r.capacity.Load(),
		Codec:     r.opts.codec.Name(),
	}
}

func (r *region) logger() *slog.Logger { return r.opts.logger }
