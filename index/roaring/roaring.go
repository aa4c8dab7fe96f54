// Package roaring implements a compressed posting list backend on roaring64
// bitmaps.
//
// A list is stored as the portable serialization of its bitmap in one
// allocator block. Every mutation decodes the bitmap, applies the change and
// writes a new block, releasing the old one through the allocator, so a
// reader that loaded the previous PostingMeta can keep decoding the old
// block for the allocator delay.
package roaring

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/mmstore/alloc"
	"github.com/hupe1980/mmstore/index"
)

// Backend is the roaring backend. PostingMeta.Aux holds the serialized
// length of the bitmap.
type Backend struct{}

var _ index.Backend = (*Backend)(nil)

// New returns a roaring backend.
func New() *Backend { return &Backend{} }

// Kind implements index.Backend.
func (*Backend) Kind() index.Kind { return index.KindRoaring }

// Load decodes the bitmap of a list.
func Load(al alloc.Allocator, m index.PostingMeta) (*roaring64.Bitmap, error) {
	bm := roaring64.New()
	if m.Offset == 0 {
		return bm, nil
	}

	block := al.Bytes(m.Offset)
	if m.Aux > uint64(len(block)) {
		return nil, fmt.Errorf("roaring: serialized length %d exceeds block of %d bytes", m.Aux, len(block))
	}

	if err := bm.UnmarshalBinary(block[:m.Aux]); err != nil {
		return nil, fmt.Errorf("roaring: decode posting list: %w", err)
	}

	return bm, nil
}

// store writes bm to a new block and releases the old one.
func store(al alloc.Allocator, m *index.PostingMeta, bm *roaring64.Bitmap) error {
	var (
		off  uint64
		data []byte
	)

	if !bm.IsEmpty() {
		bm.RunOptimize()

		var err error
		if data, err = bm.MarshalBinary(); err != nil {
			return fmt.Errorf("roaring: encode posting list: %w", err)
		}

		if off, err = al.Allocate(uint64(len(data))); err != nil {
			return err
		}

		copy(al.Bytes(off), data)
	}

	if m.Offset != 0 {
		if err := al.Deallocate(m.Offset); err != nil {
			if off != 0 {
				_ = al.Deallocate(off)
			}

			return err
		}
	}

	m.Offset = off
	m.Aux = uint64(len(data))
	m.Size = bm.GetCardinality()
	m.MaxID = 0

	if m.Size > 0 {
		m.MaxID = bm.Maximum() + 1
	}

	return nil
}

// Add implements index.Backend.
func (*Backend) Add(al alloc.Allocator, m *index.PostingMeta, p index.Posting) (bool, error) {
	bm, err := Load(al, *m)
	if err != nil {
		return false, err
	}

	if !bm.CheckedAdd(p.ID) {
		return false, nil
	}

	if err := store(al, m, bm); err != nil {
		return false, err
	}

	return true, nil
}

// Remove implements index.Backend.
func (*Backend) Remove(al alloc.Allocator, m *index.PostingMeta, id uint64) (bool, error) {
	if m.Size == 0 || id >= m.MaxID {
		return false, nil
	}

	bm, err := Load(al, *m)
	if err != nil {
		return false, err
	}

	if !bm.CheckedRemove(id) {
		return false, nil
	}

	if err := store(al, m, bm); err != nil {
		return false, err
	}

	return true, nil
}

// Exist implements index.Backend.
func (*Backend) Exist(al alloc.Allocator, m index.PostingMeta, id uint64) bool {
	if m.Size == 0 || id >= m.MaxID {
		return false
	}

	bm, err := Load(al, m)
	if err != nil {
		return false
	}

	return bm.Contains(id)
}

// BulkLoad implements index.Backend.
func (*Backend) BulkLoad(al alloc.Allocator, m *index.PostingMeta, ps []index.Posting) (int, error) {
	if len(ps) == 0 {
		return 0, nil
	}

	bm, err := Load(al, *m)
	if err != nil {
		return 0, err
	}

	before := bm.GetCardinality()

	ids := make([]uint64, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}

	bm.AddMany(ids)

	added := int(bm.GetCardinality() - before)
	if added == 0 {
		return 0, nil
	}

	if err := store(al, m, bm); err != nil {
		return 0, err
	}

	return added, nil
}

// Clear implements index.Backend.
func (*Backend) Clear(_ uint64, block []byte) { clear(block) }

// Iterator implements index.Backend. The iterator works on a decoded copy
// of the list.
func (*Backend) Iterator(al alloc.Allocator, m index.PostingMeta) (index.Iterator, error) {
	bm, err := Load(al, m)
	if err != nil {
		return nil, err
	}

	return index.NewSliceIterator(bm.ToArray()), nil
}
