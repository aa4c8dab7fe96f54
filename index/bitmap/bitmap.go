// Package bitmap implements the bitmap posting list backend: one growable
// bit vector over record ids per key.
//
// The block of a list holds MaxID/64 little-endian words. Growth allocates
// a block of the next power of two words, copies the old words, and frees
// the old block through the allocator, so iterators over the old block stay
// readable for the allocator delay.
package bitmap

import (
	"math/bits"
	"unsafe"

	"github.com/hupe1980/mmstore/alloc"
	"github.com/hupe1980/mmstore/index"
	"github.com/hupe1980/mmstore/internal/conv"
)

// Backend is the bitmap backend. The zero value is ready to use.
type Backend struct{}

var _ index.Backend = (*Backend)(nil)

// New returns a bitmap backend.
func New() *Backend { return &Backend{} }

// Kind implements index.Backend.
func (*Backend) Kind() index.Kind { return index.KindBitmap }

func words(al alloc.Allocator, m index.PostingMeta) []uint64 {
	if m.Offset == 0 || m.MaxID == 0 {
		return nil
	}

	return unsafe.Slice((*uint64)(al.Pointer(m.Offset)), m.MaxID/64)
}

// grow moves the list to a block that can hold maxID.
func grow(al alloc.Allocator, m *index.PostingMeta, maxID uint64) error {
	n := conv.NextPow2(maxID/64 + 1)

	off, err := al.Allocate(n * 8)
	if err != nil {
		return err
	}

	dst := unsafe.Slice((*uint64)(al.Pointer(off)), n)
	clear(dst)
	copy(dst, words(al, *m))

	if m.Offset != 0 {
		if err := al.Deallocate(m.Offset); err != nil {
			_ = al.Deallocate(off)
			return err
		}
	}

	m.Offset = off
	m.MaxID = n * 64

	return nil
}

// Add implements index.Backend.
func (*Backend) Add(al alloc.Allocator, m *index.PostingMeta, p index.Posting) (bool, error) {
	if p.ID >= m.MaxID {
		if err := grow(al, m, p.ID); err != nil {
			return false, err
		}
	}

	w := &words(al, *m)[p.ID/64]
	bit := uint64(1) << (p.ID % 64)

	if *w&bit != 0 {
		return false, nil
	}

	*w |= bit
	m.Size++

	return true, nil
}

// Remove implements index.Backend.
func (*Backend) Remove(al alloc.Allocator, m *index.PostingMeta, id uint64) (bool, error) {
	if id >= m.MaxID {
		return false, nil
	}

	w := &words(al, *m)[id/64]
	bit := uint64(1) << (id % 64)

	if *w&bit == 0 {
		return false, nil
	}

	*w &^= bit
	m.Size--

	return true, nil
}

// Exist implements index.Backend.
func (*Backend) Exist(al alloc.Allocator, m index.PostingMeta, id uint64) bool {
	if id >= m.MaxID {
		return false
	}

	return words(al, m)[id/64]&(1<<(id%64)) != 0
}

// BulkLoad implements index.Backend.
func (*Backend) BulkLoad(al alloc.Allocator, m *index.PostingMeta, ps []index.Posting) (int, error) {
	if len(ps) == 0 {
		return 0, nil
	}

	maxID := ps[0].ID
	for _, p := range ps[1:] {
		maxID = max(maxID, p.ID)
	}

	if maxID >= m.MaxID {
		if err := grow(al, m, maxID); err != nil {
			return 0, err
		}
	}

	ws := words(al, *m)
	added := 0

	for _, p := range ps {
		bit := uint64(1) << (p.ID % 64)
		if ws[p.ID/64]&bit == 0 {
			ws[p.ID/64] |= bit
			added++
		}
	}

	m.Size += uint64(added)

	return added, nil
}

// Clear implements index.Backend.
func (*Backend) Clear(_ uint64, block []byte) { clear(block) }

// Iterator implements index.Backend.
func (*Backend) Iterator(al alloc.Allocator, m index.PostingMeta) (index.Iterator, error) {
	return &Iterator{words: words(al, m)}, nil
}

// Iterator scans the set bits of a bit vector, skipping zero words.
type Iterator struct {
	words []uint64
	cur   uint64
	valid bool
}

// NewIterator returns an iterator over ws.
func NewIterator(ws []uint64) *Iterator { return &Iterator{words: ws} }

// seek positions at the first set bit >= from.
func (it *Iterator) seek(from uint64) bool {
	it.valid = false

	w := from / 64
	if w >= uint64(len(it.words)) {
		return false
	}

	word := it.words[w] & (^uint64(0) << (from % 64))

	for word == 0 {
		w++
		if w >= uint64(len(it.words)) {
			return false
		}

		word = it.words[w]
	}

	it.cur = w*64 + uint64(bits.TrailingZeros64(word))
	it.valid = true

	return true
}

// seekBack positions at the last set bit <= from.
func (it *Iterator) seekBack(from uint64) bool {
	it.valid = false

	n := uint64(len(it.words)) * 64
	if n == 0 {
		return false
	}

	from = min(from, n-1)
	w := from / 64
	word := it.words[w] & (^uint64(0) >> (63 - from%64))

	for word == 0 {
		if w == 0 {
			return false
		}

		w--
		word = it.words[w]
	}

	it.cur = w*64 + uint64(63-bits.LeadingZeros64(word))
	it.valid = true

	return true
}

func (it *Iterator) SeekFirst() bool { return it.seek(0) }

func (it *Iterator) SeekLast() bool { return it.seekBack(^uint64(0)) }

func (it *Iterator) SeekTo(id uint64) bool { return it.seek(id) }

func (it *Iterator) Next() bool {
	if !it.valid || it.cur == ^uint64(0) {
		it.valid = false
		return false
	}

	return it.seek(it.cur + 1)
}

func (it *Iterator) Prev() bool {
	if !it.valid || it.cur == 0 {
		it.valid = false
		return false
	}

	return it.seekBack(it.cur - 1)
}

func (it *Iterator) Valid() bool { return it.valid }

func (it *Iterator) ID() uint64 { return it.cur }
