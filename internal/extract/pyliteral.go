package extract

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"
)

var pythonConstants = map[string]string{
	"None":  "null",
	"True":  "true",
	"False": "false",
}

// pythonToJSON rewrites a Python list/dict literal as JSON. Strings in either
// quote style are decoded with Python escape rules and re-encoded as JSON
// strings, None/True/False become null/true/false, and trailing commas are
// dropped. It reports false for an unterminated string.
func pythonToJSON(text string) (string, bool) {
	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '\'' || c == '"':
			s, n, ok := readPythonString(text[i:])
			if !ok {
				return "", false
			}
			quoted, err := json.Marshal(s)
			if err != nil {
				return "", false
			}
			b.Write(quoted)
			i += n

		case isIdentStart(c):
			j := i + 1
			for j < len(text) && isIdentPart(text[j]) {
				j++
			}
			word := text[i:j]
			if lit, ok := pythonConstants[word]; ok {
				word = lit
			}
			b.WriteString(word)
			i = j

		case c == ',':
			j := i + 1
			for j < len(text) && strings.IndexByte(" \t\r\n", text[j]) >= 0 {
				j++
			}
			if j < len(text) && (text[j] == ']' || text[j] == '}') {
				i++
				continue
			}
			b.WriteByte(c)
			i++

		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String(), true
}

// readPythonString decodes the quoted string at the start of s and returns it
// with the number of bytes consumed, closing quote included.
func readPythonString(s string) (string, int, bool) {
	quote := s[0]
	var out strings.Builder

	for i := 1; i < len(s); {
		c := s[i]
		if c == quote {
			return out.String(), i + 1, true
		}
		if c != '\\' || i+1 >= len(s) {
			out.WriteByte(c)
			i++
			continue
		}

		esc := s[i+1]
		i += 2
		switch esc {
		case 'n':
			out.WriteByte('\n')
		case 't':
			out.WriteByte('\t')
		case 'r':
			out.WriteByte('\r')
		case '\\', '\'', '"':
			out.WriteByte(esc)
		case '\n':
			// line continuation
		case 'x', 'u':
			width := 2
			if esc == 'u' {
				width = 4
			}
			if i+width <= len(s) {
				if r, err := strconv.ParseUint(s[i:i+width], 16, 32); err == nil {
					out.WriteRune(rune(r))
					i += width
					continue
				}
			}
			out.WriteByte('\\')
			out.WriteByte(esc)
		default:
			// unknown escapes are kept verbatim
			out.WriteByte('\\')
			out.WriteByte(esc)
		}
	}

	return "", 0, false
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= utf8.RuneSelf
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
