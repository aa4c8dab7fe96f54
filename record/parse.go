package record

import (
	"fmt"
	"math"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// ParseRecordMeta builds a RecordMeta from a generic document tree as
// produced by JSON or YAML decoding. The document is either a list of field
// objects or an object with a "fields" list. Each field object has the keys
// name, tag, type, and optionally bits, count and default.
func ParseRecordMeta(doc any) (*RecordMeta, error) {
	var list []any

	switch d := doc.(type) {
	case []any:
		list = d
	case map[string]any:
		fields, ok := d["fields"].([]any)
		if !ok {
			return nil, schemaErrorf("", "document has no fields list")
		}

		list = fields
	default:
		return nil, schemaErrorf("", "unexpected document type %T", doc)
	}

	fields := make([]FieldMeta, 0, len(list))

	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, schemaErrorf("", "field #%d is %T, not an object", i, item)
		}

		f, err := parseField(obj)
		if err != nil {
			return nil, err
		}

		fields = append(fields, f)
	}

	return NewRecordMeta(fields...)
}

func parseField(obj map[string]any) (FieldMeta, error) {
	name, ok := obj["name"].(string)
	if !ok || name == "" {
		return FieldMeta{}, schemaErrorf("", "field without name")
	}

	f := FieldMeta{Name: name, Count: 1}

	tag, ok := obj["tag"]
	if !ok {
		return f, schemaErrorf(name, "missing tag")
	}

	t, ok := toInt(tag)
	if !ok || t < 0 || t > MaxTag {
		return f, schemaErrorf(name, "invalid tag %v", tag)
	}

	f.Tag = int(t)

	typeName, ok := obj["type"].(string)
	if !ok {
		return f, schemaErrorf(name, "missing type")
	}

	typ, err := ParseType(typeName)
	if err != nil {
		return f, schemaErrorf(name, "%v", err)
	}

	f.Type = typ

	if v, ok := obj["bits"]; ok {
		bits, ok := toInt(v)
		if !ok || bits < 0 || bits > 64 {
			return f, schemaErrorf(name, "invalid bits %v", v)
		}

		f.Bits = uint8(bits)
	}

	if v, ok := obj["count"]; ok {
		count, ok := toInt(v)
		if !ok || count < 0 || count > math.MaxInt32 {
			return f, schemaErrorf(name, "invalid count %v", v)
		}

		f.Count = int(count)
	}

	f.Default = obj["default"]

	return f, nil
}

// ParseJSON parses a JSON schema document.
func ParseJSON(data []byte) (*RecordMeta, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("record: parse json schema: %w", err)
	}

	return ParseRecordMeta(doc)
}

// ParseYAML parses a YAML schema document.
func ParseYAML(data []byte) (*RecordMeta, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("record: parse yaml schema: %w", err)
	}

	return ParseRecordMeta(doc)
}
