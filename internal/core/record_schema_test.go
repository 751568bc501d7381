package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRecord_MissingFieldNamesPrimaryAlias(t *testing.T) {
	schema, ok := SchemaFor(DataFAQ)
	require.True(t, ok)

	tests := []struct {
		name    string
		row     map[string]string
		wantErr string
	}{
		{"no title", map[string]string{"answer": "a"}, "malformed record: missing question"},
		{"no content", map[string]string{"q": "why"}, "malformed record: missing answer"},
		{"quoted blank title", map[string]string{"question": `"  "`, "answer": "a"}, "malformed record: missing question"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.BuildRecord(tt.row)
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestBuildRecord_ExtraColumnsKeptAsFields(t *testing.T) {
	schema, _ := SchemaFor(DataDocuments)

	rec, err := schema.BuildRecord(map[string]string{
		"title":   "Onboarding",
		"body":    "Welcome aboard",
		"tags":    "hr; intro|new",
		"owner":   "people-ops",
		"comment": "",
	})
	require.NoError(t, err)

	assert.Equal(t, "Onboarding", rec.Title)
	assert.Equal(t, "Welcome aboard", rec.Content)
	assert.Equal(t, []string{"hr", "intro", "new"}, rec.Tags)
	assert.Equal(t, map[string]any{"owner": "people-ops"}, rec.Fields)
}
