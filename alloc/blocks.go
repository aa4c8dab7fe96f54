package alloc

import (
	"unsafe"

	"github.com/hupe1980/mmstore/memory"
)

// blocks implements header-based block access over a memory region. It is
// embedded by the memory-backed allocators.
type blocks struct {
	mem memory.Memory
}

// Memory returns the underlying region.
func (b *blocks) Memory() memory.Memory { return b.mem }

func (b *blocks) header(off uint64) *uint64 {
	return headerAt(b.mem.Pointer(off - HeaderSize))
}

func (b *blocks) Bytes(off uint64) []byte {
	if off == 0 {
		return nil
	}

	return b.mem.Bytes(off, b.Size(off))
}

func (b *blocks) Size(off uint64) uint64 {
	if off == 0 {
		return 0
	}

	n, _ := DecodeHeader(*b.header(off))

	return n
}

func (b *blocks) Pointer(off uint64) unsafe.Pointer {
	if off == 0 {
		return nil
	}

	return b.mem.Pointer(off)
}

func (b *blocks) Borrowed(off uint64) bool {
	if off == 0 {
		return false
	}

	_, borrowed := DecodeHeader(*b.header(off))

	return borrowed
}

func (b *blocks) SetBorrowed(off uint64, borrowed bool) {
	if off == 0 || b.mem.ReadOnly() {
		return
	}

	h := b.header(off)
	n, _ := DecodeHeader(*h)
	*h = EncodeHeader(n, borrowed)
}

// carve allocates a fresh block with a header of the given length.
func (b *blocks) carve(length uint64) (uint64, error) {
	if length > MaxLength {
		return 0, ErrTooLarge
	}

	h, err := b.mem.Allocate(HeaderSize + length)
	if err != nil {
		return 0, err
	}

	*headerAt(b.mem.Pointer(h)) = EncodeHeader(length, false)

	return h + HeaderSize, nil
}
