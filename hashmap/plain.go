package hashmap

import (
	"fmt"
	"reflect"
)

// checkPlain reports an error if t contains pointers. With key set it also
// rejects types with padding, whose bytes would make raw hashing
// nondeterministic, and floating-point types, where == disagrees with bit
// equality (+0 == -0, NaN != NaN).
func checkPlain(t reflect.Type, key bool) error {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return nil
	case reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		if key {
			return fmt.Errorf("%s is a floating-point type", t)
		}

		return nil
	case reflect.Array:
		return checkPlain(t.Elem(), key)
	case reflect.Struct:
		var sum uintptr

		for i := range t.NumField() {
			f := t.Field(i)
			if err := checkPlain(f.Type, key); err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}

			sum += f.Type.Size()
		}

		if key && sum != t.Size() {
			return fmt.Errorf("%s has padding", t)
		}

		return nil
	default:
		return fmt.Errorf("%s is not pointer-free", t)
	}
}
