package record

import (
	"log/slog"
	"math"
	"sort"

	"github.com/hupe1980/mmstore/internal/bitfield"
	"github.com/hupe1980/mmstore/internal/conv"
)

// FieldBlock is the position of a field inside a record buffer.
type FieldBlock struct {
	Field FieldMeta

	// ByteOffset and ByteSize locate byte-region fields. For strings and
	// variable arrays the byte region holds an 8-byte offset.
	ByteOffset uint64
	ByteSize   uint64

	// BitOffset and BitSize locate compact fields; BitSize covers all
	// elements of a fixed array.
	BitOffset uint64
	BitSize   uint64

	// Window addresses the first compact element.
	Window bitfield.Window

	defaultRaw uint64
}

// Compact reports whether the field lives in the bit region.
func (b FieldBlock) Compact() bool { return b.Field.Compact() && !b.Field.IsVarArray() }

// elemSize returns the byte size of one element stored in a byte region or
// variable array block.
func (b FieldBlock) elemSize() uint64 {
	return b.Field.Type.Size()
}

// Accessor interprets buffers laid out for one RecordMeta. It is immutable
// and safe for concurrent use.
type Accessor struct {
	meta   *RecordMeta
	blocks []FieldBlock // indexed like meta.fields
	byTag  map[int]int

	byteSize  uint64
	bitSize   uint64
	hasOffset uint64 // bit offset of the has-field bitmask
	size      uint64

	logger *slog.Logger
}

// AccessorOption configures an Accessor.
type AccessorOption func(*Accessor)

// WithLogger configures structured logging. Pass nil to disable logging.
func WithLogger(l *slog.Logger) AccessorOption {
	return func(a *Accessor) {
		a.logger = l
	}
}

// NewAccessor computes the layout of meta.
func NewAccessor(meta *RecordMeta, optFns ...AccessorOption) *Accessor {
	a := &Accessor{
		meta:   meta,
		blocks: make([]FieldBlock, len(meta.fields)),
		byTag:  meta.byTag,
	}

	for _, fn := range optFns {
		if fn != nil {
			fn(a)
		}
	}

	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}

	var byteFields []int

	for i, f := range meta.fields {
		a.blocks[i] = FieldBlock{Field: f, defaultRaw: defaultRaw(f)}

		if f.Compact() && !f.IsVarArray() {
			continue
		}

		byteFields = append(byteFields, i)
	}

	// Byte region: widest alignment first, ties by tag, so every field is
	// naturally aligned without padding between fields.
	sort.SliceStable(byteFields, func(i, j int) bool {
		return a.byteAlign(byteFields[i]) > a.byteAlign(byteFields[j])
	})

	var off uint64

	for _, i := range byteFields {
		b := &a.blocks[i]
		f := b.Field

		size := uint64(8)
		if !f.IsVarArray() && f.Type != TypeString {
			size = f.Type.Size() * uint64(f.Count)
		} else if f.Type == TypeString && f.Count > 1 {
			size = 8 * uint64(f.Count)
		}

		b.ByteOffset = off
		b.ByteSize = size
		off += size
	}

	a.byteSize = conv.AlignUp(off, 8)

	// Bit region, in tag order.
	bit := a.byteSize * 8

	for i := range a.blocks {
		b := &a.blocks[i]
		if !b.Compact() {
			continue
		}

		w := uint64(b.Field.Width())
		b.BitOffset = bit
		b.BitSize = w * uint64(b.Field.Count)
		b.Window = bitfield.NewWindow(bit, b.Field.Width())
		bit += b.BitSize
	}

	a.bitSize = conv.AlignUp(bit-a.byteSize*8, 64)
	a.hasOffset = a.byteSize*8 + a.bitSize

	hasBytes := uint64(meta.maxTag+1+7) / 8
	a.size = conv.AlignUp(a.hasOffset/8+hasBytes, 8)

	a.logger.Debug("record layout computed",
		"fields", len(a.blocks),
		"byte_region", a.byteSize,
		"bit_region", a.bitSize,
		"has_field_offset", a.hasOffset,
		"size", a.size,
	)

	return a
}

func (a *Accessor) byteAlign(i int) uint64 {
	f := a.blocks[i].Field
	if f.IsVarArray() || f.Type == TypeString {
		return 8
	}

	return f.Type.Size()
}

func defaultRaw(f FieldMeta) uint64 {
	switch d := f.Default.(type) {
	case bool:
		if d {
			return 1
		}
	case int64:
		return uint64(d) & bitfield.MaskOf(f.Width())
	case uint64:
		return d
	case float64:
		if f.Type == TypeFloat {
			return uint64(math.Float32bits(float32(d)))
		}

		return math.Float64bits(d)
	}

	return 0
}

// Meta returns the schema.
func (a *Accessor) Meta() *RecordMeta { return a.meta }

// Size returns the buffer size of a record.
func (a *Accessor) Size() uint64 { return a.size }

// ByteRegionSize returns the padded size of the byte-aligned region.
func (a *Accessor) ByteRegionSize() uint64 { return a.byteSize }

// BitRegionSize returns the size of the bit region in bits.
func (a *Accessor) BitRegionSize() uint64 { return a.bitSize }

// HasFieldOffset returns the bit offset of the has-field bitmask.
func (a *Accessor) HasFieldOffset() uint64 { return a.hasOffset }

// Block returns the layout of the field with the given tag.
func (a *Accessor) Block(tag int) (FieldBlock, bool) {
	i, ok := a.byTag[tag]
	if !ok {
		return FieldBlock{}, false
	}

	return a.blocks[i], true
}

func (a *Accessor) block(tag int) (*FieldBlock, error) {
	i, ok := a.byTag[tag]
	if !ok {
		return nil, ErrUnknownField
	}

	return &a.blocks[i], nil
}
