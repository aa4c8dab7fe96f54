package record

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/mmstore/alloc"
)

// Reset releases every variable-length sub-allocation of buf to al, then
// restores all declared defaults and clears every has-field bit. Resetting
// twice yields identical bytes.
func (a *Accessor) Reset(buf []byte, al alloc.Allocator) error {
	if err := a.check(buf); err != nil {
		return err
	}

	for i := range a.blocks {
		if err := a.release(buf, al, &a.blocks[i]); err != nil {
			return err
		}
	}

	a.Init(buf)

	return nil
}

// Init writes the defaults of every field into buf without looking at its
// previous content. Use it for freshly allocated buffers.
func (a *Accessor) Init(buf []byte) {
	clear(buf[:a.size])

	for i := range a.blocks {
		b := &a.blocks[i]
		if b.defaultRaw == 0 || b.Field.IsVarArray() || b.Field.Type == TypeString {
			continue
		}

		for j := range uint64(b.Field.Count) {
			r, _ := element(buf, nil, b, j)
			r.set(b.defaultRaw)
		}
	}
}

// release frees the sub-allocations owned by field b.
func (a *Accessor) release(buf []byte, al alloc.Allocator, b *FieldBlock) error {
	f := b.Field

	switch {
	case f.IsVarArray():
		off, block := varBlock(buf, al, b)
		if off == 0 {
			return nil
		}

		if err := releaseVarBlock(al, b, off, block, 0); err != nil {
			return err
		}

		binary.LittleEndian.PutUint64(buf[b.ByteOffset:], 0)
	case f.Type == TypeString:
		for j := range uint64(f.Count) {
			r, _ := element(buf, al, b, j)
			if off := r.get(); off != 0 {
				if err := al.Deallocate(off); err != nil {
					return fmt.Errorf("record: release string: %w", err)
				}

				r.set(0)
			}
		}
	}

	return nil
}

// Merge copies every field present in src onto dst. Strings and variable
// arrays are re-allocated in dstAl; fields absent from src are left alone.
func (a *Accessor) Merge(dst []byte, dstAl alloc.Allocator, src []byte, srcAl alloc.Allocator) error {
	if err := a.check(dst); err != nil {
		return err
	}

	if err := a.check(src); err != nil {
		return err
	}

	for i := range a.blocks {
		b := &a.blocks[i]
		if !a.HasField(src, b.Field.Tag) {
			continue
		}

		if err := a.mergeField(dst, dstAl, src, srcAl, b); err != nil {
			return fmt.Errorf("record: merge field %q: %w", b.Field.Name, err)
		}

		a.setHas(dst, b.Field.Tag, true)
	}

	return nil
}

func (a *Accessor) mergeField(dst []byte, dstAl alloc.Allocator, src []byte, srcAl alloc.Allocator, b *FieldBlock) error {
	f := b.Field

	if f.IsVarArray() {
		n := length(src, srcAl, b)

		off, block, err := newVarBlock(dstAl, b, n)
		if err != nil {
			return err
		}

		_, srcBlock := varBlock(src, srcAl, b)

		for j := range n {
			v := elementOf(srcBlock, b, j).get()
			if f.Type == TypeString && v != 0 {
				if v, err = writeString(dstAl, readString(srcAl, v)); err != nil {
					_ = releaseVarBlock(dstAl, b, off, block, 0)
					return err
				}
			}

			elementOf(block, b, j).set(v)
		}

		oldOff, old := varBlock(dst, dstAl, b)
		binary.LittleEndian.PutUint64(dst[b.ByteOffset:], off)

		if oldOff != 0 {
			return releaseVarBlock(dstAl, b, oldOff, old, 0)
		}

		return nil
	}

	for j := range uint64(f.Count) {
		from, _ := element(src, srcAl, b, j)
		to, _ := element(dst, dstAl, b, j)
		v := from.get()

		if f.Type != TypeString {
			to.set(v)
			continue
		}

		if v != 0 {
			var err error
			if v, err = writeString(dstAl, readString(srcAl, v)); err != nil {
				return err
			}
		}

		old := to.get()
		to.set(v)

		if old != 0 {
			if err := dstAl.Deallocate(old); err != nil {
				return fmt.Errorf("release string: %w", err)
			}
		}
	}

	return nil
}

// Copy makes dst an exact copy of src: Reset followed by Merge.
func (a *Accessor) Copy(dst []byte, dstAl alloc.Allocator, src []byte, srcAl alloc.Allocator) error {
	if err := a.Reset(dst, dstAl); err != nil {
		return err
	}

	return a.Merge(dst, dstAl, src, srcAl)
}
