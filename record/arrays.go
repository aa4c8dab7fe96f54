package record

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/mmstore/alloc"
	"github.com/hupe1980/mmstore/internal/bitfield"
)

func (a *Accessor) varField(tag int) (*FieldBlock, error) {
	b, err := a.block(tag)
	if err != nil {
		return nil, err
	}

	if !b.Field.IsVarArray() {
		return nil, fmt.Errorf("%w: %q", ErrNotVarArray, b.Field.Name)
	}

	return b, nil
}

// newVarBlock allocates a block of n default elements.
func newVarBlock(al alloc.Allocator, b *FieldBlock, n uint64) (uint64, []byte, error) {
	off, err := al.Allocate(varBlockSize(b.Field, n))
	if err != nil {
		return 0, nil, fmt.Errorf("record: allocate array of %d elements: %w", n, err)
	}

	block := al.Bytes(off)
	clear(block)
	binary.LittleEndian.PutUint64(block, n)

	if b.defaultRaw != 0 {
		for i := range n {
			elementOf(block, b, i).set(b.defaultRaw)
		}
	}

	return off, block, nil
}

// elementOf addresses element i inside a variable array block.
func elementOf(block []byte, b *FieldBlock, i uint64) ref {
	if b.Field.Compact() {
		w := b.Field.Width()
		return ref{buf: block, compact: true, win: bitfield.NewWindow(64+i*uint64(w), w)}
	}

	size := b.elemSize()

	return ref{buf: block, off: 8 + i*size, size: size}
}

// BuildVarArray replaces the variable array tag with n default elements and
// marks the field present. The previous block is released to al.
func (a *Accessor) BuildVarArray(buf []byte, al alloc.Allocator, tag int, n int) error {
	if err := a.check(buf); err != nil {
		return err
	}

	b, err := a.varField(tag)
	if err != nil {
		return err
	}

	if n < 0 {
		return ErrIndexOutOfRange
	}

	off, _, err := newVarBlock(al, b, uint64(n))
	if err != nil {
		a.logger.Warn("array allocation failed", "field", b.Field.Name, "count", n, "error", err)
		return err
	}

	oldOff, old := varBlock(buf, al, b)
	binary.LittleEndian.PutUint64(buf[b.ByteOffset:], off)
	a.setHas(buf, b.Field.Tag, true)

	if oldOff != 0 {
		return releaseVarBlock(al, b, oldOff, old, 0)
	}

	return nil
}

// RebuildVarArray resizes the variable array tag to n elements, keeping the
// first min(n, Len) elements, and marks the field present.
func (a *Accessor) RebuildVarArray(buf []byte, al alloc.Allocator, tag int, n int) error {
	if err := a.check(buf); err != nil {
		return err
	}

	b, err := a.varField(tag)
	if err != nil {
		return err
	}

	if n < 0 {
		return ErrIndexOutOfRange
	}

	off, block, err := newVarBlock(al, b, uint64(n))
	if err != nil {
		a.logger.Warn("array allocation failed", "field", b.Field.Name, "count", n, "error", err)
		return err
	}

	oldOff, old := varBlock(buf, al, b)

	var kept uint64

	if old != nil {
		kept = min(binary.LittleEndian.Uint64(old), uint64(n))
		for i := range kept {
			elementOf(block, b, i).set(elementOf(old, b, i).get())
		}
	}

	binary.LittleEndian.PutUint64(buf[b.ByteOffset:], off)
	a.setHas(buf, b.Field.Tag, true)

	if oldOff != 0 {
		// String blocks of kept elements moved to the new array.
		return releaseVarBlock(al, b, oldOff, old, kept)
	}

	return nil
}

// releaseVarBlock frees a variable array block and, for string arrays, the
// string blocks of elements from index from onwards.
func releaseVarBlock(al alloc.Allocator, b *FieldBlock, off uint64, block []byte, from uint64) error {
	if b.Field.Type == TypeString {
		n := binary.LittleEndian.Uint64(block)
		for i := from; i < n; i++ {
			if s := elementOf(block, b, i).get(); s != 0 {
				if err := al.Deallocate(s); err != nil {
					return fmt.Errorf("record: release string: %w", err)
				}
			}
		}
	}

	if err := al.Deallocate(off); err != nil {
		return fmt.Errorf("record: release array: %w", err)
	}

	return nil
}
