package record

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hupe1980/mmstore/alloc"
	"github.com/hupe1980/mmstore/internal/bitfield"
)

// ref addresses one element of a field: either a bit window or a
// little-endian integer of size bytes at off.
type ref struct {
	buf     []byte
	compact bool
	win     bitfield.Window
	off     uint64
	size    uint64
}

func (r ref) get() uint64 {
	if r.compact {
		return r.win.Get(r.buf)
	}

	return getRaw(r.buf[r.off:], r.size)
}

func (r ref) set(v uint64) {
	if r.compact {
		r.win.Set(r.buf, v)
		return
	}

	putRaw(r.buf[r.off:], r.size, v)
}

func getRaw(b []byte, size uint64) uint64 {
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func putRaw(b []byte, size, v uint64) {
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}

func (a *Accessor) check(buf []byte) error {
	if uint64(len(buf)) < a.size {
		return fmt.Errorf("%w: %d < %d", ErrBufferTooSmall, len(buf), a.size)
	}

	return nil
}

// varBlock returns the allocator block of a variable array, or nil.
func varBlock(buf []byte, al alloc.Allocator, b *FieldBlock) (uint64, []byte) {
	off := binary.LittleEndian.Uint64(buf[b.ByteOffset:])
	if off == 0 {
		return 0, nil
	}

	return off, al.Bytes(off)
}

// length returns the number of elements of field b.
func length(buf []byte, al alloc.Allocator, b *FieldBlock) uint64 {
	if !b.Field.IsVarArray() {
		return uint64(b.Field.Count)
	}

	_, block := varBlock(buf, al, b)
	if block == nil {
		return 0
	}

	return binary.LittleEndian.Uint64(block)
}

// element returns the i-th element of field b.
func element(buf []byte, al alloc.Allocator, b *FieldBlock, i uint64) (ref, error) {
	f := b.Field

	if !f.IsVarArray() {
		if i >= uint64(f.Count) {
			return ref{}, fmt.Errorf("%w: %d >= %d", ErrIndexOutOfRange, i, f.Count)
		}

		if b.Compact() {
			return ref{buf: buf, compact: true, win: b.Window.At(i)}, nil
		}

		size := b.elemSize()

		return ref{buf: buf, off: b.ByteOffset + i*size, size: size}, nil
	}

	_, block := varBlock(buf, al, b)

	n := uint64(0)
	if block != nil {
		n = binary.LittleEndian.Uint64(block)
	}

	if i >= n {
		return ref{}, fmt.Errorf("%w: %d >= %d", ErrIndexOutOfRange, i, n)
	}

	return elementOf(block, b, i), nil
}

// varBlockSize returns the block size of a variable array of n elements.
func varBlockSize(f FieldMeta, n uint64) uint64 {
	if f.Compact() {
		return 8 + (n*uint64(f.Width())+63)/64*8
	}

	return 8 + n*f.Type.Size()
}

func (a *Accessor) typed(tag int, want, alt Type) (*FieldBlock, error) {
	b, err := a.block(tag)
	if err != nil {
		return nil, err
	}

	if t := b.Field.Type; t != want && t != alt {
		a.logger.Debug("typed access mismatch", "field", b.Field.Name, "type", t, "requested", want)
		return nil, fmt.Errorf("%w: field %q is %s, not %s", ErrTypeMismatch, b.Field.Name, t, want)
	}

	return b, nil
}

func fromRaw[T Scalar](raw uint64, width uint8) T {
	var out T

	switch p := any(&out).(type) {
	case *bool:
		*p = raw != 0
	case *int8:
		*p = int8(bitfield.SignExtend(raw, width))
	case *int16:
		*p = int16(bitfield.SignExtend(raw, width))
	case *int32:
		*p = int32(bitfield.SignExtend(raw, width))
	case *int64:
		*p = bitfield.SignExtend(raw, width)
	case *uint8:
		*p = uint8(raw)
	case *uint16:
		*p = uint16(raw)
	case *uint32:
		*p = uint32(raw)
	case *uint64:
		*p = raw
	case *float32:
		*p = math.Float32frombits(uint32(raw))
	case *float64:
		*p = math.Float64frombits(raw)
	}

	return out
}

// toRaw converts v and checks that it fits width bits.
func toRaw[T Scalar](v T, width uint8) (uint64, bool) {
	switch x := any(v).(type) {
	case bool:
		if x {
			return 1, true
		}

		return 0, true
	case int8:
		return uint64(int64(x)) & bitfield.MaskOf(width), fitsSigned(int64(x), width)
	case int16:
		return uint64(int64(x)) & bitfield.MaskOf(width), fitsSigned(int64(x), width)
	case int32:
		return uint64(int64(x)) & bitfield.MaskOf(width), fitsSigned(int64(x), width)
	case int64:
		return uint64(x) & bitfield.MaskOf(width), fitsSigned(x, width)
	case uint8:
		return uint64(x), fitsUnsigned(uint64(x), width)
	case uint16:
		return uint64(x), fitsUnsigned(uint64(x), width)
	case uint32:
		return uint64(x), fitsUnsigned(uint64(x), width)
	case uint64:
		return x, fitsUnsigned(x, width)
	case float32:
		return uint64(math.Float32bits(x)), true
	case float64:
		return math.Float64bits(x), true
	}

	return 0, false
}

// Get reads the scalar field tag. T must match the field type; TypeRelated
// fields are read as uint64.
func Get[T Scalar](a *Accessor, buf []byte, al alloc.Allocator, tag int) (T, error) {
	var zero T

	want, alt := typeOf[T]()

	b, err := a.typed(tag, want, alt)
	if err != nil {
		return zero, err
	}

	if b.Field.IsArray() {
		return zero, fmt.Errorf("%w: %q", ErrNotScalar, b.Field.Name)
	}

	return GetAt[T](a, buf, al, tag, 0)
}

// GetAt reads element i of an array field. For scalar fields only i == 0 is
// accepted.
func GetAt[T Scalar](a *Accessor, buf []byte, al alloc.Allocator, tag int, i int) (T, error) {
	var zero T

	if err := a.check(buf); err != nil {
		return zero, err
	}

	want, alt := typeOf[T]()

	b, err := a.typed(tag, want, alt)
	if err != nil {
		return zero, err
	}

	if i < 0 {
		return zero, ErrIndexOutOfRange
	}

	r, err := element(buf, al, b, uint64(i))
	if err != nil {
		return zero, err
	}

	return fromRaw[T](r.get(), b.Field.Width()), nil
}

// Set writes the scalar field tag and marks it present.
func Set[T Scalar](a *Accessor, buf []byte, al alloc.Allocator, tag int, v T) error {
	want, alt := typeOf[T]()

	b, err := a.typed(tag, want, alt)
	if err != nil {
		return err
	}

	if b.Field.IsArray() {
		return fmt.Errorf("%w: %q", ErrNotScalar, b.Field.Name)
	}

	return SetAt(a, buf, al, tag, 0, v)
}

// SetAt writes element i of an array field and marks the field present.
func SetAt[T Scalar](a *Accessor, buf []byte, al alloc.Allocator, tag int, i int, v T) error {
	if err := a.check(buf); err != nil {
		return err
	}

	want, alt := typeOf[T]()

	b, err := a.typed(tag, want, alt)
	if err != nil {
		return err
	}

	if i < 0 {
		return ErrIndexOutOfRange
	}

	raw, ok := toRaw(v, b.Field.Width())
	if !ok {
		return fmt.Errorf("%w: %v in %d bits of %q", ErrValueOutOfRange, v, b.Field.Width(), b.Field.Name)
	}

	r, err := element(buf, al, b, uint64(i))
	if err != nil {
		return err
	}

	r.set(raw)
	a.setHas(buf, b.Field.Tag, true)

	return nil
}

// Uint reads an integer scalar field of any width as uint64. Negative
// values of signed fields are rejected.
func (a *Accessor) Uint(buf []byte, tag int) (uint64, error) {
	if err := a.check(buf); err != nil {
		return 0, err
	}

	b, err := a.block(tag)
	if err != nil {
		return 0, err
	}

	if !b.Field.Type.Integer() {
		return 0, fmt.Errorf("%w: field %q is %s, not an integer", ErrTypeMismatch, b.Field.Name, b.Field.Type)
	}

	if b.Field.IsArray() {
		return 0, fmt.Errorf("%w: %q", ErrNotScalar, b.Field.Name)
	}

	r, err := element(buf, nil, b, 0)
	if err != nil {
		return 0, err
	}

	raw := r.get()
	if b.Field.Type.Signed() {
		v := bitfield.SignExtend(raw, b.Field.Width())
		if v < 0 {
			return 0, fmt.Errorf("%w: negative value %d in %q", ErrValueOutOfRange, v, b.Field.Name)
		}

		return uint64(v), nil
	}

	return raw, nil
}

// Len returns the number of elements of an array field.
func (a *Accessor) Len(buf []byte, al alloc.Allocator, tag int) (int, error) {
	if err := a.check(buf); err != nil {
		return 0, err
	}

	b, err := a.block(tag)
	if err != nil {
		return 0, err
	}

	if !b.Field.IsArray() {
		return 0, fmt.Errorf("%w: %q", ErrNotArray, b.Field.Name)
	}

	return int(length(buf, al, b)), nil
}

// HasField reports whether the field tag was set since the last reset.
func (a *Accessor) HasField(buf []byte, tag int) bool {
	if _, ok := a.byTag[tag]; !ok || uint64(len(buf)) < a.size {
		return false
	}

	return bitfield.Test(buf, a.hasOffset+uint64(tag))
}

// SetHasField sets or clears the has-field bit of tag.
func (a *Accessor) SetHasField(buf []byte, tag int, has bool) error {
	if err := a.check(buf); err != nil {
		return err
	}

	if _, ok := a.byTag[tag]; !ok {
		return ErrUnknownField
	}

	a.setHas(buf, tag, has)

	return nil
}

func (a *Accessor) setHas(buf []byte, tag int, has bool) {
	if has {
		bitfield.SetBit(buf, a.hasOffset+uint64(tag))
	} else {
		bitfield.ClearBit(buf, a.hasOffset+uint64(tag))
	}
}
