package record

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/mmstore/alloc"
)

func (a *Accessor) stringField(tag int) (*FieldBlock, error) {
	b, err := a.block(tag)
	if err != nil {
		return nil, err
	}

	if b.Field.Type != TypeString {
		return nil, fmt.Errorf("%w: field %q is %s, not string", ErrTypeMismatch, b.Field.Name, b.Field.Type)
	}

	return b, nil
}

func defaultString(f FieldMeta) string {
	s, _ := f.Default.(string)
	return s
}

// readString dereferences a string block.
func readString(al alloc.Allocator, off uint64) string {
	block := al.Bytes(off)
	n := binary.LittleEndian.Uint64(block)

	return string(block[8 : 8+n])
}

// writeString stores s in a fresh block and returns its offset.
func writeString(al alloc.Allocator, s string) (uint64, error) {
	off, err := al.Allocate(8 + uint64(len(s)))
	if err != nil {
		return 0, fmt.Errorf("record: allocate string of %d bytes: %w", len(s), err)
	}

	block := al.Bytes(off)
	binary.LittleEndian.PutUint64(block, uint64(len(s)))
	copy(block[8:], s)

	return off, nil
}

// GetString reads a scalar string field. An unset field reads as its
// declared default.
func (a *Accessor) GetString(buf []byte, al alloc.Allocator, tag int) (string, error) {
	b, err := a.stringField(tag)
	if err != nil {
		return "", err
	}

	if b.Field.IsArray() {
		return "", fmt.Errorf("%w: %q", ErrNotScalar, b.Field.Name)
	}

	return a.GetStringAt(buf, al, tag, 0)
}

// GetStringAt reads element i of a string array.
func (a *Accessor) GetStringAt(buf []byte, al alloc.Allocator, tag int, i int) (string, error) {
	if err := a.check(buf); err != nil {
		return "", err
	}

	b, err := a.stringField(tag)
	if err != nil {
		return "", err
	}

	if i < 0 {
		return "", ErrIndexOutOfRange
	}

	r, err := element(buf, al, b, uint64(i))
	if err != nil {
		return "", err
	}

	off := r.get()
	if off == 0 {
		return defaultString(b.Field), nil
	}

	return readString(al, off), nil
}

// SetString writes a scalar string field and marks it present. The previous
// value, if any, is released to al.
func (a *Accessor) SetString(buf []byte, al alloc.Allocator, tag int, s string) error {
	b, err := a.stringField(tag)
	if err != nil {
		return err
	}

	if b.Field.IsArray() {
		return fmt.Errorf("%w: %q", ErrNotScalar, b.Field.Name)
	}

	return a.SetStringAt(buf, al, tag, 0, s)
}

// SetStringAt writes element i of a string array and marks the field present.
func (a *Accessor) SetStringAt(buf []byte, al alloc.Allocator, tag int, i int, s string) error {
	if err := a.check(buf); err != nil {
		return err
	}

	b, err := a.stringField(tag)
	if err != nil {
		return err
	}

	if i < 0 {
		return ErrIndexOutOfRange
	}

	r, err := element(buf, al, b, uint64(i))
	if err != nil {
		return err
	}

	off, err := writeString(al, s)
	if err != nil {
		a.logger.Warn("string allocation failed", "field", b.Field.Name, "size", len(s), "error", err)
		return err
	}

	// Publish the new block before releasing the old one.
	old := r.get()
	r.set(off)
	a.setHas(buf, b.Field.Tag, true)

	if old != 0 {
		if err := al.Deallocate(old); err != nil {
			return fmt.Errorf("record: release string: %w", err)
		}
	}

	return nil
}
