package core

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// textSection is a heading and the body text that follows it.
type textSection struct {
	title string
	body  strings.Builder
	line  int
}

// parseText splits a text or markdown document into one record per heading
// section. Content before the first heading, or a document without headings,
// becomes a record titled after the file name.
func parseText(c *collector, content []byte) error {
	s := WrapForParsing(bytes.NewReader(content))
	src, err := io.ReadAll(s)
	if err != nil {
		return fmt.Errorf("read text: %w", err)
	}
	if s.Replaced() > 0 {
		c.note(fmt.Sprintf("%s: %d invalid UTF-8 bytes replaced", errEncoding, s.Replaced()))
	}

	if len(bytes.TrimSpace(src)) == 0 {
		c.fail(0, errMalformed+": empty document")
		return nil
	}

	doc := markdown.Parser().Parse(text.NewReader(src))
	fallback := strings.TrimSuffix(filepath.Base(c.res.Filename), filepath.Ext(c.res.Filename))

	var (
		sections []*textSection
		cur      = &textSection{title: fallback, line: 1}
	)
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			sections = append(sections, cur)
			cur = &textSection{
				title: strings.TrimSpace(string(linesText(h, src))),
				line:  lineOf(h, src),
			}
			continue
		}
		block := strings.TrimSpace(string(blockText(n, src)))
		if block == "" {
			continue
		}
		if cur.body.Len() > 0 {
			cur.body.WriteString("\n\n")
		}
		cur.body.WriteString(block)
	}
	sections = append(sections, cur)

	for i, sec := range sections {
		body := strings.TrimSpace(sec.body.String())
		// The implicit preamble section is dropped when it is empty.
		if i == 0 && body == "" && len(sections) > 1 {
			continue
		}
		if sec.title == "" {
			c.fail(sec.line, errMalformed+": missing title")
			continue
		}
		if body == "" {
			c.fail(sec.line, fmt.Sprintf("%s: section %q has no content", errMalformed, sec.title))
			continue
		}
		c.ok(Record{Title: sec.title, Content: body}, sec.line)
	}
	return nil
}

// blockText returns the raw source lines of a block and its descendants.
func blockText(n ast.Node, src []byte) []byte {
	if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
		return linesText(n, src)
	}
	var buf bytes.Buffer
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if b := bytes.TrimSpace(blockText(child, src)); len(b) > 0 {
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.Write(b)
		}
	}
	return buf.Bytes()
}

func linesText(n ast.Node, src []byte) []byte {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	return buf.Bytes()
}

func lineOf(n ast.Node, src []byte) int {
	if n.Lines().Len() == 0 {
		return 0
	}
	return bytes.Count(src[:n.Lines().At(0).Start], []byte("\n")) + 1
}
