package record

import (
	"fmt"

	"github.com/hupe1980/mmstore/alloc"
)

// Record binds a buffer to the accessor that interprets it and the
// allocator owning its variable-length data. It never owns the buffer.
type Record struct {
	acc *Accessor
	al  alloc.Allocator
	buf []byte
}

// New wraps buf, which must be at least acc.Size() bytes long.
func New(acc *Accessor, al alloc.Allocator, buf []byte) (*Record, error) {
	if err := acc.check(buf); err != nil {
		return nil, err
	}

	return &Record{acc: acc, al: al, buf: buf[:acc.size:acc.size]}, nil
}

// Allocate carves a record buffer from al and initializes it with defaults.
// It returns the record and the offset of its buffer.
func Allocate(acc *Accessor, al alloc.Allocator) (*Record, uint64, error) {
	off, err := al.Allocate(acc.size)
	if err != nil {
		return nil, 0, fmt.Errorf("record: allocate buffer: %w", err)
	}

	r, err := New(acc, al, al.Bytes(off))
	if err != nil {
		return nil, 0, err
	}

	acc.Init(r.buf)

	return r, off, nil
}

// Accessor returns the accessor interpreting the record.
func (r *Record) Accessor() *Accessor { return r.acc }

// Meta returns the record schema.
func (r *Record) Meta() *RecordMeta { return r.acc.meta }

// Allocator returns the allocator owning variable-length data.
func (r *Record) Allocator() alloc.Allocator { return r.al }

// Bytes returns the record buffer.
func (r *Record) Bytes() []byte { return r.buf }

// HasField reports whether tag was set since the last reset.
func (r *Record) HasField(tag int) bool { return r.acc.HasField(r.buf, tag) }

// Reset releases sub-allocations and restores defaults.
func (r *Record) Reset() error { return r.acc.Reset(r.buf, r.al) }

// GetString reads a string field.
func (r *Record) GetString(tag int) (string, error) { return r.acc.GetString(r.buf, r.al, tag) }

// SetString writes a string field.
func (r *Record) SetString(tag int, s string) error { return r.acc.SetString(r.buf, r.al, tag, s) }

// Len returns the length of an array field.
func (r *Record) Len(tag int) (int, error) { return r.acc.Len(r.buf, r.al, tag) }

// BuildVarArray replaces a variable array with n default elements.
func (r *Record) BuildVarArray(tag, n int) error {
	return r.acc.BuildVarArray(r.buf, r.al, tag, n)
}

// CopyFrom makes r an exact copy of src.
func (r *Record) CopyFrom(src *Record) error {
	return r.acc.Copy(r.buf, r.al, src.buf, src.al)
}

// MergeFrom copies the fields present in src onto r.
func (r *Record) MergeFrom(src *Record) error {
	return r.acc.Merge(r.buf, r.al, src.buf, src.al)
}

// GetField reads a scalar field of r.
func GetField[T Scalar](r *Record, tag int) (T, error) {
	return Get[T](r.acc, r.buf, r.al, tag)
}

// SetField writes a scalar field of r.
func SetField[T Scalar](r *Record, tag int, v T) error {
	return Set(r.acc, r.buf, r.al, tag, v)
}

// GetFieldAt reads element i of an array field of r.
func GetFieldAt[T Scalar](r *Record, tag, i int) (T, error) {
	return GetAt[T](r.acc, r.buf, r.al, tag, i)
}

// SetFieldAt writes element i of an array field of r.
func SetFieldAt[T Scalar](r *Record, tag, i int, v T) error {
	return SetAt(r.acc, r.buf, r.al, tag, i, v)
}
