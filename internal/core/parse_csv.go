package core

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

func parseCSV(c *collector, content []byte) error {
	r := csv.NewReader(NewBOMSkippingReader(bytes.NewReader(content)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	t := &table{c: c}
	for {
		cells, err := r.Read()
		if err == io.EOF {
			break
		}

		var perr *csv.ParseError
		if errors.As(err, &perr) {
			c.fail(perr.StartLine, fmt.Sprintf("%s: %v", errMalformed, perr.Err))
			continue
		}
		if err != nil {
			return fmt.Errorf("read csv: %w", err)
		}

		line, _ := r.FieldPos(0)
		if !validUTF8(cells) {
			if t.header == nil {
				return fmt.Errorf("header row contains invalid UTF-8")
			}
			c.fail(line, errEncoding+": invalid UTF-8 in row")
			continue
		}
		t.add(cells, line)
	}

	if t.header == nil {
		c.note("empty file: no header row")
	}
	return nil
}

func validUTF8(cells []string) bool {
	for _, s := range cells {
		if !utf8.ValidString(s) {
			return false
		}
	}
	return true
}
