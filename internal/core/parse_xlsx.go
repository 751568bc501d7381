package core

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// parseXLSX reads the first worksheet as a table.
func parseXLSX(c *collector, content []byte) error {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	defer rows.Close()

	t := &table{c: c}
	line := 0
	for rows.Next() {
		line++
		cells, err := rows.Columns()
		if err != nil {
			c.fail(line, fmt.Sprintf("%s: %v", errMalformed, err))
			continue
		}
		t.add(cells, line)
	}
	if err := rows.Error(); err != nil {
		return fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	if t.header == nil {
		c.note("empty file: no header row")
	}
	return nil
}
