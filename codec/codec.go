// Package codec centralizes the encoding of the small metadata documents that
// sit next to the binary regions: memory sidecars and snapshot manifests.
//
// Every persisted document records the codec name, so a region dumped with
// one codec can still be opened after the default changes.
package codec

import "fmt"

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// OrDefault returns c, or Default when c is nil.
func OrDefault(c Codec) Codec {
	if c == nil {
		return Default
	}

	return c
}

// MustMarshal is a helper for tests and tooling.
func MustMarshal(c Codec, v any) []byte {
	b, err := OrDefault(c).Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", OrDefault(c).Name(), err))
	}

	return b
}
