package core

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// pdfcpu otherwise creates a config directory under the user's home.
	api.DisableConfigDir()
}

// parsePDF produces one record per page. Pages without extractable text fail.
func parsePDF(c *collector, content []byte) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(content), conf)
	if err != nil {
		return fmt.Errorf("read pdf: %w", err)
	}

	for page := 1; page <= pdfCtx.PageCount; page++ {
		r, err := pdfcpu.ExtractPageContent(pdfCtx, page)
		if err != nil || r == nil {
			c.fail(page, fmt.Sprintf("%s: page %d content unreadable", errMalformed, page))
			continue
		}
		raw, err := io.ReadAll(r)
		if err != nil {
			c.fail(page, fmt.Sprintf("%s: page %d content unreadable", errMalformed, page))
			continue
		}

		text := strings.TrimSpace(extractPDFText(raw))
		if text == "" {
			c.fail(page, fmt.Sprintf("%s: page %d has no text", errMalformed, page))
			continue
		}

		title := firstLine(text)
		rec := Record{
			Title:    title,
			Content:  text,
			Category: c.schema.DefaultCategory,
			Fields:   map[string]any{"page": page},
		}
		c.ok(rec, page)
	}
	return nil
}

// extractPDFText pulls string operands of the text-showing operators
// (Tj, TJ, ' and ") out of a decoded content stream. Positioning operators
// that move to a new line emit a newline.
func extractPDFText(stream []byte) string {
	var (
		out     strings.Builder
		pending []string
		inArray bool
	)

	flush := func() {
		for _, s := range pending {
			out.WriteString(s)
		}
		pending = pending[:0]
	}

	for i := 0; i < len(stream); {
		b := stream[i]
		switch {
		case b == '(':
			s, n := readPDFLiteral(stream[i:])
			pending = append(pending, s)
			i += n
		case b == '<' && i+1 < len(stream) && stream[i+1] != '<':
			s, n := readPDFHex(stream[i:])
			pending = append(pending, s)
			i += n
		case b == '[':
			inArray = true
			i++
		case b == ']':
			inArray = false
			i++
		case isPDFDelimiterSpace(b):
			i++
		default:
			j := i
			for j < len(stream) && !isPDFDelimiterSpace(stream[j]) && !strings.ContainsRune("()<>[]/", rune(stream[j])) {
				j++
			}
			if j == i {
				j++
			}
			op := string(stream[i:j])
			i = j

			if inArray {
				// Large negative kerning inside TJ usually marks a word gap.
				if strings.HasPrefix(op, "-") && len(op) > 3 {
					pending = append(pending, " ")
				}
				continue
			}

			switch op {
			case "Tj", "TJ":
				flush()
			case "'", "\"":
				out.WriteByte('\n')
				flush()
			case "Td", "TD", "T*", "ET":
				if out.Len() > 0 && !strings.HasSuffix(out.String(), "\n") {
					out.WriteByte('\n')
				}
				pending = pending[:0]
			default:
				if !isPDFNumber(op) {
					pending = pending[:0]
				}
			}
		}
	}
	return out.String()
}

// readPDFLiteral decodes a (...) string with escapes and nested parentheses.
// It returns the decoded text and the number of bytes consumed.
func readPDFLiteral(b []byte) (string, int) {
	var sb strings.Builder
	depth := 0
	i := 0
	for ; i < len(b); i++ {
		ch := b[i]
		switch {
		case ch == '\\' && i+1 < len(b):
			i++
			switch b[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'r', 't':
				sb.WriteByte(' ')
			case '(', ')', '\\':
				sb.WriteByte(b[i])
			case '\n', '\r':
			default:
				if b[i] >= '0' && b[i] <= '7' {
					v, n := 0, 0
					for n < 3 && i+n < len(b) && b[i+n] >= '0' && b[i+n] <= '7' {
						v = v*8 + int(b[i+n]-'0')
						n++
					}
					i += n - 1
					sb.WriteByte(byte(v))
				} else {
					sb.WriteByte(b[i])
				}
			}
		case ch == '(':
			if depth > 0 {
				sb.WriteByte(ch)
			}
			depth++
		case ch == ')':
			depth--
			if depth == 0 {
				return sb.String(), i + 1
			}
			sb.WriteByte(ch)
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String(), i
}

// readPDFHex decodes a <...> string. Non-printable bytes are dropped.
func readPDFHex(b []byte) (string, int) {
	end := bytes.IndexByte(b, '>')
	if end < 0 {
		return "", len(b)
	}
	digits := make([]byte, 0, end)
	for _, ch := range b[1:end] {
		if !isPDFDelimiterSpace(ch) {
			digits = append(digits, ch)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}

	var sb strings.Builder
	for i := 0; i+1 < len(digits); i += 2 {
		v := hexVal(digits[i])<<4 | hexVal(digits[i+1])
		if v >= 0x20 && v < 0x7f {
			sb.WriteByte(byte(v))
		}
	}
	return sb.String(), end + 1
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return 0
}

func isPDFDelimiterSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\r' || b == '\t' || b == '\f' || b == 0
}

func isPDFNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != '-' && r != '+' {
			return false
		}
	}
	return true
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
