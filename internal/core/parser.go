package core

// parser.go turns one uploaded file into normalized Records.
//
// A file is either readable, in which case every row/item/page/section is
// counted as parsed or failed, or unreadable, in which case Parse returns an
// error wrapping ErrUnreadableFile and no counts. Row-level problems never
// produce an error.

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultMaxFileSize is the largest payload Parse accepts.
const DefaultMaxFileSize = 50 << 20

// maxReportedErrors caps the per-file error list; the rest are summarized.
const maxReportedErrors = 50

// Parser parses uploaded files against the registered record schemas.
type Parser struct {
	maxFileSize int64
}

// NewParser creates a parser. A non-positive maxFileSize uses DefaultMaxFileSize.
func NewParser(maxFileSize int64) *Parser {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Parser{maxFileSize: maxFileSize}
}

// DetectFileType maps a file name extension to a FileType.
// Unknown extensions are treated as text.
func DetectFileType(name string) FileType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FileCSV
	case ".json":
		return FileJSON
	case ".xlsx":
		return FileXLSX
	case ".pdf":
		return FilePDF
	default:
		return FileText
	}
}

// Parse parses one file as dataType.
func (p *Parser) Parse(ctx context.Context, file UploadedFile, dataType DataType) (FileParseResult, error) {
	schema, ok := SchemaFor(dataType)
	if !ok {
		return FileParseResult{}, &ValidationError{Fields: []string{fmt.Sprintf("data_type: unsupported %q (one of %v)", dataType, DataTypes())}}
	}

	ft := DetectFileType(file.Name)
	if int64(len(file.Content)) > p.maxFileSize {
		return FileParseResult{}, fmt.Errorf("%w: %s: file too large (%d bytes, limit %d)",
			ErrUnreadableFile, file.Name, len(file.Content), p.maxFileSize)
	}

	c := newCollector(file.Name, ft, schema)

	var err error
	switch ft {
	case FileCSV:
		err = parseCSV(c, file.Content)
	case FileJSON:
		err = parseJSON(c, file.Content)
	case FileXLSX:
		err = parseXLSX(c, file.Content)
	case FilePDF:
		err = parsePDF(c, file.Content)
	default:
		err = parseText(c, file.Content)
	}
	if err != nil {
		return FileParseResult{}, fmt.Errorf("%w: %s: %v", ErrUnreadableFile, file.Name, err)
	}

	return c.result(), nil
}

// collector accumulates the outcome of one file.
type collector struct {
	res     FileParseResult
	schema  RecordSchema
	dropped int
}

func newCollector(name string, ft FileType, schema RecordSchema) *collector {
	return &collector{
		res: FileParseResult{
			Filename:     name,
			DetectedType: ft,
			Errors:       []string{},
			Records:      []Record{},
		},
		schema: schema,
	}
}

// row maps a normalized column map through the schema and records the outcome.
func (c *collector) row(fields map[string]string, line int) {
	rec, err := c.schema.BuildRecord(fields)
	if err != nil {
		c.fail(line, err.Error())
		return
	}
	c.ok(rec, line)
}

func (c *collector) ok(rec Record, line int) {
	rec.Source = c.res.Filename
	rec.Line = line
	c.res.TotalRecords++
	c.res.ParsedRecords++
	c.res.Records = append(c.res.Records, rec)
}

func (c *collector) fail(line int, msg string) {
	c.res.TotalRecords++
	c.res.FailedRecords++
	if len(c.res.Errors) >= maxReportedErrors {
		c.dropped++
		return
	}
	if line > 0 {
		msg = fmt.Sprintf("%s (line %d)", msg, line)
	}
	c.res.Errors = append(c.res.Errors, msg)
}

// note adds a non-fatal message without changing counts.
func (c *collector) note(msg string) {
	if len(c.res.Errors) < maxReportedErrors {
		c.res.Errors = append(c.res.Errors, msg)
	}
}

func (c *collector) result() FileParseResult {
	if c.dropped > 0 {
		c.res.Errors = append(c.res.Errors, fmt.Sprintf("... and %d more errors", c.dropped))
	}
	return c.res
}

// errEncoding is the failure-class prefix for rows with invalid UTF-8.
const errEncoding = "encoding issue"

// table converts positional rows into column maps using the first non-empty row as header.
type table struct {
	c      *collector
	header []string
}

func (t *table) add(cells []string, line int) {
	if isBlankRow(cells) {
		return
	}
	if t.header == nil {
		t.header = make([]string, len(cells))
		for i, h := range cells {
			t.header[i] = normalizeHeader(h)
		}
		return
	}

	if len(cells) > len(t.header) && !isBlankRow(cells[len(t.header):]) {
		t.c.fail(line, fmt.Sprintf("%s: expected %d columns, got %d", errMalformed, len(t.header), len(cells)))
		return
	}

	fields := make(map[string]string, len(t.header))
	for i, h := range t.header {
		if h == "" || i >= len(cells) {
			continue
		}
		fields[h] = cells[i]
	}
	t.c.row(fields, line)
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
