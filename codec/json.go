package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// It is kept as the most portable fallback; sidecar documents written with it
// can be read by any tool.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the codec used for newly written documents.
var Default Codec = GoJSON{}
