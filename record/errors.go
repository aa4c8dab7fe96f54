package record

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownField is returned when a tag or name is not part of the schema.
	ErrUnknownField = errors.New("record: unknown field")
	// ErrTypeMismatch is returned when a typed accessor does not match the field type.
	ErrTypeMismatch = errors.New("record: type mismatch")
	// ErrNotArray is returned when an array accessor is used on a scalar field.
	ErrNotArray = errors.New("record: field is not an array")
	// ErrNotScalar is returned when a scalar accessor is used on an array field.
	ErrNotScalar = errors.New("record: field is an array")
	// ErrNotVarArray is returned when building a fixed array or scalar.
	ErrNotVarArray = errors.New("record: field is not a variable array")
	// ErrIndexOutOfRange is returned for an array index beyond the array length.
	ErrIndexOutOfRange = errors.New("record: index out of range")
	// ErrValueOutOfRange is returned when a value does not fit a compact field.
	ErrValueOutOfRange = errors.New("record: value out of range")
	// ErrBufferTooSmall is returned for buffers shorter than the record size.
	ErrBufferTooSmall = errors.New("record: buffer too small")
)

// SchemaError describes an invalid schema declaration.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return "record: schema: " + e.Reason
	}

	return fmt.Sprintf("record: schema: field %q: %s", e.Field, e.Reason)
}

func schemaErrorf(field, format string, args ...any) *SchemaError {
	return &SchemaError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
