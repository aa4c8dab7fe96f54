package record

import (
	"math"
	"sort"
)

// MaxTag is the largest tag a field may use.
const MaxTag = 1<<16 - 1

// FieldMeta declares one field of a schema.
type FieldMeta struct {
	Name string
	Tag  int
	Type Type
	// Bits overrides the natural width of integer types. A value below the
	// natural width makes the field compact. Zero means natural width.
	Bits uint8
	// Count is 1 for scalars, 0 for variable arrays and >1 for fixed arrays.
	Count int
	// Default is the value a reset field reads as. After NewRecordMeta it
	// holds a bool, int64, uint64, float64 or string matching Type, or nil
	// for the zero value.
	Default any
}

// Width returns the number of bits one element occupies when compact, or
// the natural width otherwise.
func (f FieldMeta) Width() uint8 {
	if f.Bits == 0 {
		return f.Type.Bits()
	}

	return f.Bits
}

// Compact reports whether the field is stored in the bit region.
func (f FieldMeta) Compact() bool {
	if f.Type == TypeBool {
		return true
	}

	return f.Type.Integer() && f.Type != TypeRelated && f.Bits > 0 && f.Bits < f.Type.Bits()
}

// IsArray reports whether the field is a fixed or variable array.
func (f FieldMeta) IsArray() bool { return f.Count != 1 }

// IsVarArray reports whether the field is a variable array.
func (f FieldMeta) IsVarArray() bool { return f.Count == 0 }

// RecordMeta is a validated schema with O(1) lookup by name and tag.
type RecordMeta struct {
	fields []FieldMeta // sorted by tag
	byName map[string]int
	byTag  map[int]int
	maxTag int
}

// NewRecordMeta validates fields and builds a RecordMeta. Errors are
// *SchemaError.
func NewRecordMeta(fields ...FieldMeta) (*RecordMeta, error) {
	m := &RecordMeta{
		fields: make([]FieldMeta, 0, len(fields)),
		byName: make(map[string]int, len(fields)),
		byTag:  make(map[int]int, len(fields)),
		maxTag: -1,
	}

	tags := make(map[int]string, len(fields))

	for _, f := range fields {
		if err := validateField(&f); err != nil {
			return nil, err
		}

		if _, dup := m.byName[f.Name]; dup {
			return nil, schemaErrorf(f.Name, "duplicate name")
		}

		if other, dup := tags[f.Tag]; dup {
			return nil, schemaErrorf(f.Name, "tag %d already used by %q", f.Tag, other)
		}

		tags[f.Tag] = f.Name
		m.byName[f.Name] = -1
		m.fields = append(m.fields, f)
		m.maxTag = max(m.maxTag, f.Tag)
	}

	sort.SliceStable(m.fields, func(i, j int) bool { return m.fields[i].Tag < m.fields[j].Tag })

	for i, f := range m.fields {
		m.byName[f.Name] = i
		m.byTag[f.Tag] = i
	}

	return m, nil
}

func validateField(f *FieldMeta) error {
	if f.Name == "" {
		return schemaErrorf("", "field without name")
	}

	if f.Tag < 0 || f.Tag > MaxTag {
		return schemaErrorf(f.Name, "tag %d outside [0, %d]", f.Tag, MaxTag)
	}

	if _, ok := typeNames[f.Type]; !ok {
		return schemaErrorf(f.Name, "unknown type %s", f.Type)
	}

	if f.Count < 0 {
		return schemaErrorf(f.Name, "negative count %d", f.Count)
	}

	switch {
	case f.Bits == 0:
	case f.Type == TypeBool && f.Bits == 1:
	case f.Type.Integer() && f.Type != TypeRelated && f.Bits <= f.Type.Bits():
	case f.Bits == f.Type.Bits():
	default:
		return schemaErrorf(f.Name, "%d bits not allowed for %s", f.Bits, f.Type)
	}

	if f.Bits == f.Type.Bits() {
		f.Bits = 0
	}

	def, err := normalizeDefault(*f)
	if err != nil {
		return err
	}

	f.Default = def

	return nil
}

// normalizeDefault converts a literal to the canonical Go type of f and
// checks that it fits.
func normalizeDefault(f FieldMeta) (any, error) {
	if f.Default == nil {
		return nil, nil
	}

	bad := func() error {
		return schemaErrorf(f.Name, "default %v (%T) does not fit %s:%d", f.Default, f.Default, f.Type, f.Width())
	}

	switch f.Type {
	case TypeBool:
		b, ok := f.Default.(bool)
		if !ok {
			return nil, bad()
		}

		return b, nil
	case TypeString:
		s, ok := f.Default.(string)
		if !ok {
			return nil, bad()
		}

		return s, nil
	case TypeFloat, TypeDouble:
		v, ok := toFloat(f.Default)
		if !ok || (f.Type == TypeFloat && !math.IsInf(v, 0) && math.Abs(v) > math.MaxFloat32) {
			return nil, bad()
		}

		return v, nil
	}

	bits := f.Width()

	if f.Type.Signed() {
		v, ok := toInt(f.Default)
		if !ok || !fitsSigned(v, bits) {
			return nil, bad()
		}

		return v, nil
	}

	v, ok := toUint(f.Default)
	if !ok || !fitsUnsigned(v, bits) {
		return nil, bad()
	}

	return v, nil
}

func fitsSigned(v int64, bits uint8) bool {
	if bits >= 64 {
		return true
	}

	limit := int64(1) << (bits - 1)

	return v >= -limit && v < limit
}

func fitsUnsigned(v uint64, bits uint8) bool {
	return bits >= 64 || v < uint64(1)<<bits
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}

func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int64:
		return x, true
	case int32:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}

		return int64(x), true
	case float64:
		if x != math.Trunc(x) || x < math.MinInt64 || x >= math.MaxInt64 {
			return 0, false
		}

		return int64(x), true
	default:
		return 0, false
	}
}

func toUint(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint64:
		return x, true
	case uint:
		return uint64(x), true
	case int, int64, int32:
		i, _ := toInt(x)
		if i < 0 {
			return 0, false
		}

		return uint64(i), true
	case float64:
		if x != math.Trunc(x) || x < 0 || x >= math.MaxUint64 {
			return 0, false
		}

		return uint64(x), true
	default:
		return 0, false
	}
}

// Fields returns the fields ordered by tag.
func (m *RecordMeta) Fields() []FieldMeta {
	return append([]FieldMeta(nil), m.fields...)
}

// Len returns the number of fields.
func (m *RecordMeta) Len() int { return len(m.fields) }

// MaxTag returns the largest tag, or -1 for an empty schema.
func (m *RecordMeta) MaxTag() int { return m.maxTag }

// Field returns the field named name.
func (m *RecordMeta) Field(name string) (FieldMeta, bool) {
	i, ok := m.byName[name]
	if !ok {
		return FieldMeta{}, false
	}

	return m.fields[i], true
}

// FieldByTag returns the field with the given tag.
func (m *RecordMeta) FieldByTag(tag int) (FieldMeta, bool) {
	i, ok := m.byTag[tag]
	if !ok {
		return FieldMeta{}, false
	}

	return m.fields[i], true
}

// Tag returns the tag of the field named name.
func (m *RecordMeta) Tag(name string) (int, error) {
	f, ok := m.Field(name)
	if !ok {
		return 0, ErrUnknownField
	}

	return f.Tag, nil
}
