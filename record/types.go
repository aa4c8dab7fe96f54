package record

import "fmt"

// Type is the primitive type of a field.
type Type uint8

const (
	TypeBool Type = iota + 1
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat
	TypeDouble
	TypeString
	// TypeRelated is a uint64 id referencing a record elsewhere.
	TypeRelated
)

var typeNames = map[Type]string{
	TypeBool:    "bool",
	TypeInt8:    "int8",
	TypeInt16:   "int16",
	TypeInt32:   "int32",
	TypeInt64:   "int64",
	TypeUint8:   "uint8",
	TypeUint16:  "uint16",
	TypeUint32:  "uint32",
	TypeUint64:  "uint64",
	TypeFloat:   "float",
	TypeDouble:  "double",
	TypeString:  "string",
	TypeRelated: "related",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}

	return fmt.Sprintf("Type(%d)", uint8(t))
}

// ParseType returns the type named s.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}

	return 0, fmt.Errorf("record: unknown type %q", s)
}

// Size returns the number of bytes a value occupies in the byte region.
// Strings occupy an 8-byte allocator offset.
func (t Type) Size() uint64 {
	switch t {
	case TypeBool, TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat:
		return 4
	default:
		return 8
	}
}

// Bits returns the natural width of the type. Booleans are one bit wide.
func (t Type) Bits() uint8 {
	if t == TypeBool {
		return 1
	}

	return uint8(t.Size() * 8)
}

// Signed reports whether t is a signed integer type.
func (t Type) Signed() bool {
	return t >= TypeInt8 && t <= TypeInt64
}

// Integer reports whether t is an integer type, including TypeRelated.
func (t Type) Integer() bool {
	return (t >= TypeInt8 && t <= TypeUint64) || t == TypeRelated
}

// Scalar is the set of Go types accepted by the typed accessors.
type Scalar interface {
	bool | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}

// typeOf maps a Go type to the field types it may access.
func typeOf[T Scalar]() (Type, Type) {
	var zero T

	switch any(zero).(type) {
	case bool:
		return TypeBool, TypeBool
	case int8:
		return TypeInt8, TypeInt8
	case int16:
		return TypeInt16, TypeInt16
	case int32:
		return TypeInt32, TypeInt32
	case int64:
		return TypeInt64, TypeInt64
	case uint8:
		return TypeUint8, TypeUint8
	case uint16:
		return TypeUint16, TypeUint16
	case uint32:
		return TypeUint32, TypeUint32
	case uint64:
		return TypeUint64, TypeRelated
	case float32:
		return TypeFloat, TypeFloat
	default:
		return TypeDouble, TypeDouble
	}
}
