package kv

import (
	"fmt"
	"math/bits"
	"sync/atomic"
	"unsafe"

	"github.com/hupe1980/mmstore/memory"
)

const bitmaskMagic = 0x6d6d626d61736b31 // "mmbmask1"

type bitmaskHeader struct {
	Magic uint64
	Words uint64
	Base  uint64 // offset of the first word
}

// BitMaskMap is a growable bit set stored in a memory region. Bits beyond
// the current size, and all bits of newly grown words, read as set.
type BitMaskMap struct {
	mem memory.Memory
	hdr *bitmaskHeader
}

// NewBitMaskMap creates a bit set in mem or attaches to the one stored there.
func NewBitMaskMap(mem memory.Memory) (*BitMaskMap, error) {
	hdrSize := uint64(unsafe.Sizeof(bitmaskHeader{}))

	if !memory.Empty(mem) {
		if mem.Allocated() < memory.FirstOffset+hdrSize {
			return nil, fmt.Errorf("%w: bitmask region too small", ErrCorrupt)
		}

		hdr := (*bitmaskHeader)(mem.Pointer(memory.FirstOffset))
		if hdr.Magic != bitmaskMagic || hdr.Base+hdr.Words*8 > mem.Allocated() {
			return nil, fmt.Errorf("%w: bitmask header", ErrCorrupt)
		}

		return &BitMaskMap{mem: mem, hdr: hdr}, nil
	}

	off, err := mem.Allocate(hdrSize)
	if err != nil {
		return nil, fmt.Errorf("kv: allocate bitmask header: %w", err)
	}

	hdr := (*bitmaskHeader)(mem.Pointer(off))
	hdr.Magic = bitmaskMagic
	hdr.Base = off + hdrSize

	return &BitMaskMap{mem: mem, hdr: hdr}, nil
}

// Len returns the number of addressable bits.
func (m *BitMaskMap) Len() uint64 { return m.hdr.Words * 64 }

func (m *BitMaskMap) word(i uint64) *atomic.Uint64 {
	return (*atomic.Uint64)(m.mem.Pointer(m.hdr.Base + i*8))
}

// Test reports whether bit id is set.
func (m *BitMaskMap) Test(id uint64) bool {
	w := id / 64
	if w >= m.hdr.Words {
		return true
	}

	return m.word(w).Load()&(1<<(id%64)) != 0
}

// Set sets bit id.
func (m *BitMaskMap) Set(id uint64) error {
	if err := m.Ensure(id); err != nil {
		return err
	}

	m.word(id / 64).Or(1 << (id % 64))

	return nil
}

// Clear clears bit id.
func (m *BitMaskMap) Clear(id uint64) error {
	if err := m.Ensure(id); err != nil {
		return err
	}

	m.word(id / 64).And(^(uint64(1) << (id % 64)))

	return nil
}

// Ensure grows the set so that bit id is addressable. New bits are set.
func (m *BitMaskMap) Ensure(id uint64) error {
	need := id/64 + 1
	if need <= m.hdr.Words {
		return nil
	}

	if m.mem.ReadOnly() {
		return memory.ErrReadOnly
	}

	grow := max(need-m.hdr.Words, m.hdr.Words)

	off, err := m.mem.Allocate(grow * 8)
	if err != nil {
		return fmt.Errorf("kv: grow bitmask to %d words: %w", m.hdr.Words+grow, err)
	}

	if off != m.hdr.Base+m.hdr.Words*8 {
		return fmt.Errorf("%w: bitmask region is not contiguous", ErrCorrupt)
	}

	for i := range grow {
		m.word(m.hdr.Words + i).Store(^uint64(0))
	}

	m.hdr.Words += grow

	return nil
}

// Count returns the number of clear bits among the first n.
func (m *BitMaskMap) Count(n uint64) uint64 {
	n = min(n, m.Len())

	var c uint64
	for w := range n / 64 {
		c += uint64(bits.OnesCount64(^m.word(w).Load()))
	}

	if r := n % 64; r > 0 {
		c += uint64(bits.OnesCount64(^m.word(n/64).Load() & (uint64(1)<<r - 1)))
	}

	return c
}
