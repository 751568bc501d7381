package core

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func parseFile(t *testing.T, name, content string, dt DataType) FileParseResult {
	t.Helper()
	res, err := NewParser(0).Parse(context.Background(), UploadedFile{Name: name, Content: []byte(content)}, dt)
	require.NoError(t, err)
	assert.Equal(t, res.TotalRecords, res.ParsedRecords+res.FailedRecords, "parsed + failed must equal total")
	assert.Len(t, res.Records, res.ParsedRecords)
	return res
}

// =============================================================================
// Detection
// =============================================================================

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		name string
		want FileType
	}{
		{"faq.csv", FileCSV},
		{"FAQ.CSV", FileCSV},
		{"docs.json", FileJSON},
		{"sheet.xlsx", FileXLSX},
		{"manual.pdf", FilePDF},
		{"notes.md", FileText},
		{"notes.txt", FileText},
		{"README", FileText},
		{"archive.csv.gz", FileText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFileType(tt.name))
		})
	}
}

// =============================================================================
// CSV
// =============================================================================

func TestParse_CSVCountsMalformedRows(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("question,answer,category\n")
	for i := 1; i <= 12; i++ {
		if i == 4 || i == 9 {
			fmt.Fprintf(&sb, "Question %d,,billing\n", i)
			continue
		}
		fmt.Fprintf(&sb, "Question %d,Answer %d,billing\n", i, i)
	}

	res := parseFile(t, "faq.csv", sb.String(), DataFAQ)

	assert.Equal(t, FileCSV, res.DetectedType)
	assert.Equal(t, 12, res.TotalRecords)
	assert.Equal(t, 10, res.ParsedRecords)
	assert.Equal(t, 2, res.FailedRecords)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "malformed record")

	first := res.Records[0]
	assert.Equal(t, "Question 1", first.Title)
	assert.Equal(t, "Answer 1", first.Content)
	assert.Equal(t, "billing", first.Category)
	assert.Equal(t, "faq.csv", first.Source)
	assert.Equal(t, 2, first.Line)
}

func TestParse_CSVHeaderAliasesAndExtras(t *testing.T) {
	content := "\xEF\xBB\xBFName, Body ,Tags,Owner\n" +
		"\"Welcome\",\"Hello, world\",\"intro; onboarding\",alice\n"

	res := parseFile(t, "docs.csv", content, DataDocuments)

	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.Equal(t, "Welcome", rec.Title)
	assert.Equal(t, "Hello, world", rec.Content)
	assert.Equal(t, []string{"intro", "onboarding"}, rec.Tags)
	assert.Equal(t, map[string]any{"owner": "alice"}, rec.Fields)
}

func TestParse_CSVSkipsBlankRows(t *testing.T) {
	content := "title,content\n\nA,first\n , \nB,second\n"

	res := parseFile(t, "docs.csv", content, DataDocuments)

	assert.Equal(t, 2, res.TotalRecords)
	assert.Equal(t, 2, res.ParsedRecords)
	assert.Empty(t, res.Errors)
}

func TestParse_CSVEncodingIssue(t *testing.T) {
	content := "title,content\nA,ok\nB,bad \xff byte\n"

	res := parseFile(t, "docs.csv", content, DataDocuments)

	assert.Equal(t, 2, res.TotalRecords)
	assert.Equal(t, 1, res.FailedRecords)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "encoding issue")
}

func TestParse_CSVExtraColumns(t *testing.T) {
	content := "title,content\nA,ok,unexpected\nB,ok,\n"

	res := parseFile(t, "docs.csv", content, DataDocuments)

	assert.Equal(t, 1, res.FailedRecords)
	assert.Equal(t, 1, res.ParsedRecords)
	assert.Contains(t, res.Errors[0], "expected 2 columns")
}

func TestParse_CSVEmptyFile(t *testing.T) {
	res := parseFile(t, "empty.csv", "", DataDocuments)

	assert.Zero(t, res.TotalRecords)
	assert.NotEmpty(t, res.Errors)
}

// =============================================================================
// JSON
// =============================================================================

func TestParse_JSONArray(t *testing.T) {
	content := `[
		{"name": "Refund", "description": "Customer asks for a refund", "tags": ["billing", "refund"], "priority": 2},
		{"name": "Missing description"},
		"not an object"
	]`

	res := parseFile(t, "scenarios.json", content, DataScenarios)

	assert.Equal(t, FileJSON, res.DetectedType)
	assert.Equal(t, 3, res.TotalRecords)
	assert.Equal(t, 1, res.ParsedRecords)
	assert.Equal(t, 2, res.FailedRecords)

	rec := res.Records[0]
	assert.Equal(t, "Refund", rec.Title)
	assert.Equal(t, []string{"billing", "refund"}, rec.Tags)
	assert.Equal(t, "2", rec.Fields["priority"])
}

func TestParse_JSONEnvelopeAndSingleObject(t *testing.T) {
	res := parseFile(t, "t.json", `{"records": [{"name": "Greeting", "body": "Hi {{name}}"}]}`, DataTemplates)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Greeting", res.Records[0].Title)

	res = parseFile(t, "one.json", `{"title": "Only", "content": "one record"}`, DataDocuments)
	assert.Equal(t, 1, res.ParsedRecords)
}

func TestParse_JSONInvalidUTF8(t *testing.T) {
	content := "[{\"question\":\"q\xff\",\"answer\":\"a\"},{\"question\":\"ok\",\"answer\":\"fine\"}]"

	res := parseFile(t, "faq.json", content, DataFAQ)

	assert.Equal(t, 2, res.TotalRecords)
	assert.Equal(t, 1, res.ParsedRecords)
	assert.Equal(t, 1, res.FailedRecords)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "encoding issue")
	assert.Equal(t, "ok", res.Records[0].Title)
}

func TestParse_JSONUnreadable(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid syntax", `[{"title": "a",`},
		{"scalar root", `42`},
		{"trailing data", `[] []`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(0).Parse(context.Background(),
				UploadedFile{Name: "bad.json", Content: []byte(tt.content)}, DataDocuments)
			assert.ErrorIs(t, err, ErrUnreadableFile)
		})
	}
}

// =============================================================================
// XLSX
// =============================================================================

func TestParse_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Section", "Instructions"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"Setup", "Plug it in"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"Reset", ""}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res, err := NewParser(0).Parse(context.Background(),
		UploadedFile{Name: "manual.xlsx", Content: buf.Bytes()}, DataManual)
	require.NoError(t, err)

	assert.Equal(t, FileXLSX, res.DetectedType)
	assert.Equal(t, 2, res.TotalRecords)
	assert.Equal(t, 1, res.ParsedRecords)
	assert.Equal(t, 1, res.FailedRecords)
	assert.Equal(t, "Setup", res.Records[0].Title)
	assert.Equal(t, "Plug it in", res.Records[0].Content)
}

func TestParse_XLSXCorrupt(t *testing.T) {
	_, err := NewParser(0).Parse(context.Background(),
		UploadedFile{Name: "broken.xlsx", Content: []byte("not a zip archive")}, DataDocuments)
	assert.ErrorIs(t, err, ErrUnreadableFile)
}

// =============================================================================
// PDF
// =============================================================================

func TestParse_PDFCorrupt(t *testing.T) {
	_, err := NewParser(0).Parse(context.Background(),
		UploadedFile{Name: "broken.pdf", Content: []byte("hello, not a pdf")}, DataManual)
	assert.ErrorIs(t, err, ErrUnreadableFile)
}

func TestExtractPDFText(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   string
	}{
		{
			name:   "Tj and TJ with line move",
			stream: "BT /F1 12 Tf 72 712 Td (Hello) Tj 0 -14 Td [(Wor) -20 (ld)] TJ ET",
			want:   "Hello\nWorld",
		},
		{
			name:   "escaped parentheses",
			stream: `BT (a\(b\)) Tj ET`,
			want:   "a(b)",
		},
		{
			name:   "hex string",
			stream: "BT <48692E> Tj ET",
			want:   "Hi.",
		},
		{
			name:   "kerning gap becomes space",
			stream: "BT [(two) -250 (words)] TJ ET",
			want:   "two words",
		},
		{
			name:   "no text operators",
			stream: "q 1 0 0 1 0 0 cm Q",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, strings.TrimSpace(extractPDFText([]byte(tt.stream))))
		})
	}
}

// =============================================================================
// Text
// =============================================================================

func TestParse_MarkdownSections(t *testing.T) {
	content := "Intro paragraph.\n\n" +
		"# Getting started\n\nInstall the agent.\n\n- step one\n- step two\n\n" +
		"## Empty heading\n\n" +
		"## Troubleshooting\n\nRestart it.\n"

	res := parseFile(t, "guide.md", content, DataManual)

	assert.Equal(t, FileText, res.DetectedType)
	assert.Equal(t, 4, res.TotalRecords)
	assert.Equal(t, 3, res.ParsedRecords)
	assert.Equal(t, 1, res.FailedRecords)

	titles := make([]string, 0, len(res.Records))
	for _, r := range res.Records {
		titles = append(titles, r.Title)
	}
	assert.Equal(t, []string{"guide", "Getting started", "Troubleshooting"}, titles)
	assert.Contains(t, res.Records[1].Content, "Install the agent.")
	assert.Contains(t, res.Records[1].Content, "step two")
	assert.Contains(t, res.Errors[0], `section "Empty heading" has no content`)
}

func TestParse_PlainTextSingleRecord(t *testing.T) {
	res := parseFile(t, "policy.txt", "Refunds are processed within 5 days.\nContact support otherwise.", DataDocuments)

	require.Len(t, res.Records, 1)
	assert.Equal(t, "policy", res.Records[0].Title)
	assert.Contains(t, res.Records[0].Content, "Contact support")
}

func TestParse_TextEncodingNote(t *testing.T) {
	res := parseFile(t, "notes.txt", "caf\xe9 menu", DataDocuments)

	assert.Equal(t, 1, res.ParsedRecords)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "encoding issue")
}

func TestParse_EmptyText(t *testing.T) {
	res := parseFile(t, "blank.txt", "  \n ", DataDocuments)

	assert.Equal(t, 1, res.FailedRecords)
	assert.Contains(t, res.Errors[0], "empty document")
}

// =============================================================================
// Limits and validation
// =============================================================================

func TestParse_FileTooLarge(t *testing.T) {
	p := NewParser(10)
	_, err := p.Parse(context.Background(),
		UploadedFile{Name: "big.csv", Content: []byte("title,content\na,b\n")}, DataDocuments)

	require.ErrorIs(t, err, ErrUnreadableFile)
	assert.Contains(t, err.Error(), "file too large")
}

func TestParse_UnknownDataType(t *testing.T) {
	_, err := NewParser(0).Parse(context.Background(),
		UploadedFile{Name: "a.csv", Content: []byte("title,content\n")}, DataType("recipes"))
	assert.True(t, IsValidation(err))
}

func TestParse_ErrorListIsCapped(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("title,content\n")
	for i := 0; i < maxReportedErrors+10; i++ {
		fmt.Fprintf(&sb, "row %d,\n", i)
	}

	res := parseFile(t, "many.csv", sb.String(), DataDocuments)

	assert.Equal(t, maxReportedErrors+10, res.FailedRecords)
	assert.Len(t, res.Errors, maxReportedErrors+1)
	assert.Equal(t, "... and 10 more errors", res.Errors[maxReportedErrors])
}
