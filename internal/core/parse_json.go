package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// jsonEnvelopeKeys are the object keys searched for a record array when the
// document root is an object rather than an array.
var jsonEnvelopeKeys = []string{"records", "items", "data", "entries"}

func parseJSON(c *collector, content []byte) error {
	dec := json.NewDecoder(NewBOMSkippingReader(bytes.NewReader(content)))

	var doc json.RawMessage
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("decode json: trailing data after document")
	}

	items, err := jsonItems(doc)
	if err != nil {
		return err
	}

	for i, raw := range items {
		// Decoding would silently replace invalid bytes, so check the raw item.
		if !utf8.Valid(raw) {
			c.fail(i+1, errEncoding+": invalid UTF-8 in item")
			continue
		}

		obj, err := decodeJSONObject(raw)
		if err != nil {
			c.fail(i+1, errMalformed+": item is not an object")
			continue
		}
		c.row(flattenJSON(obj), i+1)
	}
	return nil
}

// jsonItems returns the record items of a document: the root array, the
// first array under an envelope key, or the root object itself.
func jsonItems(doc json.RawMessage) ([]json.RawMessage, error) {
	switch firstByte(doc) {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(doc, &items); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		return items, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(doc, &obj); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		for _, k := range jsonEnvelopeKeys {
			v, ok := obj[k]
			if !ok || firstByte(v) != '[' {
				continue
			}
			var items []json.RawMessage
			if err := json.Unmarshal(v, &items); err != nil {
				return nil, fmt.Errorf("decode json: %w", err)
			}
			return items, nil
		}
		return []json.RawMessage{doc}, nil
	default:
		return nil, fmt.Errorf("json document must be an array or object")
	}
}

func decodeJSONObject(raw json.RawMessage) (map[string]any, error) {
	if firstByte(raw) != '{' {
		return nil, fmt.Errorf("not an object")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

// flattenJSON converts an object into the string column map the schema expects.
// Arrays of scalars are joined with commas; nested objects are kept as JSON text.
func flattenJSON(obj map[string]any) map[string]string {
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		out[normalizeHeader(k)] = jsonScalar(v)
	}
	return out
}

func jsonScalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := jsonScalar(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
