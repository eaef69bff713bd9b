package textutil

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ReadFileUTF8 reads a file, stripping a UTF-8 byte order mark when present.
// Tool-exported Japanese text routinely carries one.
func ReadFileUTF8(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decoded, _, err := transform.Bytes(unicode.UTF8BOM.NewDecoder(), raw)
	if err != nil {
		return nil, fmt.Errorf("decode utf-8 %s: %w", path, err)
	}
	return decoded, nil
}

// EscapeLine folds a possibly multi-line string into a single prompt line.
func EscapeLine(text string) string {
	text = strings.ReplaceAll(text, `\`, `\\`)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\n", `\n`)
}

// UnescapeLine reverses EscapeLine.
func UnescapeLine(text string) string {
	var out strings.Builder
	out.Grow(len(text))
	escaping := false
	for _, r := range text {
		switch {
		case escaping:
			if r == 'n' {
				out.WriteByte('\n')
			} else {
				out.WriteRune(r)
			}
			escaping = false
		case r == '\\':
			escaping = true
		default:
			out.WriteRune(r)
		}
	}
	if escaping {
		out.WriteByte('\\')
	}
	return out.String()
}
