package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// RecordSchema describes how raw columns map to a Record for one data type.
type RecordSchema struct {
	DataType        DataType
	TitleAliases    []string // Column names accepted as the record title, in priority order
	ContentAliases  []string // Column names accepted as the record body
	CategoryAliases []string
	TagAliases      []string
	DefaultCategory string
}

var (
	schemas   = make(map[DataType]RecordSchema)
	schemasMu sync.RWMutex
)

// RegisterSchema adds a record schema.
// Panics if a schema for the same data type is already registered.
func RegisterSchema(s RecordSchema) {
	schemasMu.Lock()
	defer schemasMu.Unlock()

	if _, exists := schemas[s.DataType]; exists {
		panic(fmt.Sprintf("record schema already registered: %s", s.DataType))
	}
	schemas[s.DataType] = s
}

// SchemaFor returns the record schema for a data type.
func SchemaFor(dt DataType) (RecordSchema, bool) {
	schemasMu.RLock()
	defer schemasMu.RUnlock()

	s, ok := schemas[dt]
	return s, ok
}

// DataTypes returns all registered data types, sorted.
func DataTypes() []DataType {
	schemasMu.RLock()
	defer schemasMu.RUnlock()

	out := make([]DataType, 0, len(schemas))
	for dt := range schemas {
		out = append(out, dt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func init() {
	common := []string{"category", "section", "group", "type"}
	tags := []string{"tags", "keywords", "labels"}

	RegisterSchema(RecordSchema{
		DataType:        DataDocuments,
		TitleAliases:    []string{"title", "name", "subject", "heading"},
		ContentAliases:  []string{"content", "body", "text", "description"},
		CategoryAliases: common,
		TagAliases:      tags,
		DefaultCategory: "general",
	})
	RegisterSchema(RecordSchema{
		DataType:        DataFAQ,
		TitleAliases:    []string{"question", "q", "title"},
		ContentAliases:  []string{"answer", "a", "content", "body"},
		CategoryAliases: common,
		TagAliases:      tags,
		DefaultCategory: "faq",
	})
	RegisterSchema(RecordSchema{
		DataType:        DataManual,
		TitleAliases:    []string{"section", "title", "chapter", "heading"},
		ContentAliases:  []string{"content", "body", "text", "instructions"},
		CategoryAliases: []string{"category", "chapter", "product"},
		TagAliases:      tags,
		DefaultCategory: "manual",
	})
	RegisterSchema(RecordSchema{
		DataType:        DataScenarios,
		TitleAliases:    []string{"name", "scenario", "title"},
		ContentAliases:  []string{"description", "content", "steps", "script"},
		CategoryAliases: []string{"category", "trigger", "type"},
		TagAliases:      tags,
		DefaultCategory: "scenario",
	})
	RegisterSchema(RecordSchema{
		DataType:        DataTemplates,
		TitleAliases:    []string{"name", "template", "title"},
		ContentAliases:  []string{"body", "content", "template_body", "text"},
		CategoryAliases: []string{"category", "channel", "type"},
		TagAliases:      tags,
		DefaultCategory: "template",
	})
}

// errMalformed is the failure-class prefix for rows missing required fields.
const errMalformed = "malformed record"

// BuildRecord maps a lower-cased column map to a Record.
// Returns an error describing the malformed field when title or content is missing.
func (s RecordSchema) BuildRecord(row map[string]string) (Record, error) {
	rec := Record{
		Title:    firstValue(row, s.TitleAliases),
		Content:  firstValue(row, s.ContentAliases),
		Category: firstValue(row, s.CategoryAliases),
	}

	if rec.Title == "" {
		return Record{}, fmt.Errorf("%s: missing %s", errMalformed, s.TitleAliases[0])
	}
	if rec.Content == "" {
		return Record{}, fmt.Errorf("%s: missing %s", errMalformed, s.ContentAliases[0])
	}

	if raw := firstValue(row, s.TagAliases); raw != "" {
		rec.Tags = splitTags(raw)
	}

	used := make(map[string]bool)
	for _, group := range [][]string{s.TitleAliases, s.ContentAliases, s.CategoryAliases, s.TagAliases} {
		for _, a := range group {
			used[a] = true
		}
	}
	for k, v := range row {
		if used[k] || v == "" {
			continue
		}
		if rec.Fields == nil {
			rec.Fields = make(map[string]any)
		}
		rec.Fields[k] = v
	}

	return rec, nil
}

func firstValue(row map[string]string, aliases []string) string {
	for _, a := range aliases {
		if v := CleanCell(row[a]); v != "" {
			return v
		}
	}
	return ""
}

func splitTags(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' || r == '|' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CleanCell trims whitespace and surrounding quotes from a raw cell value.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// normalizeHeader lower-cases and snake-cases a column header.
func normalizeHeader(h string) string {
	h = strings.ToLower(CleanCell(h))
	h = strings.Join(strings.Fields(h), "_")
	return strings.ReplaceAll(h, "-", "_")
}
