// Package extract turns free-form model output into validated characters and
// script entries.
//
// Model output is treated as untrusted text: it may be wrapped in prose or
// code fences, prefixed with a variable assignment, written as a Python
// literal rather than JSON, or simply truncated. Extraction never panics and
// always yields usable records. When nothing can be recovered the result
// carries a deterministic fallback and Fallback is set; the only error ever
// returned is a *ScriptValidationError for a script that parsed but contains
// an unusable line.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// A fenced block, optionally language-tagged. The tag is only recognised
	// when it is followed by a line break.
	fencePattern = regexp.MustCompile("(?s)```(?:[A-Za-z0-9_+-]*[ \t]*\r?\n)?(.*?)```")

	// A leading "characters = " style assignment.
	assignmentPrefix = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*\s*=\s*`)
)

// record is one mapping from the parsed list, with lower-cased keys.
type record map[string]any

// Clean strips surrounding code fences and a leading assignment from raw
// model output and returns the literal that remains.
func Clean(raw string) string {
	text := strings.TrimSpace(raw)

	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	text = assignmentPrefix.ReplaceAllString(text, "")

	return strings.TrimSpace(text)
}

// parseRecords parses text as a non-empty list of mappings. JSON is tried
// first, then the text rewritten from a Python literal, then YAML flow
// syntax for anything looser. Anything other than a list of mappings is
// rejected.
func parseRecords(text string) ([]record, error) {
	if text == "" {
		return nil, errors.New("model output is empty")
	}

	value, err := decodeLiteral(text)
	if err != nil {
		return nil, err
	}

	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("model output is %s, not a list", describe(value))
	}
	if len(list) == 0 {
		return nil, errors.New("model output is an empty list")
	}

	records := make([]record, 0, len(list))
	for i, item := range list {
		m, ok := asRecord(item)
		if !ok {
			return nil, fmt.Errorf("entry %d is %s, not a mapping", i, describe(item))
		}
		records = append(records, m)
	}

	return records, nil
}

func decodeLiteral(text string) (any, error) {
	var value any
	jsonErr := json.Unmarshal([]byte(text), &value)
	if jsonErr == nil {
		return value, nil
	}

	if converted, ok := pythonToJSON(text); ok {
		value = nil
		if err := json.Unmarshal([]byte(converted), &value); err == nil {
			return value, nil
		}
	}

	value = nil
	if err := yaml.Unmarshal([]byte(text), &value); err != nil {
		return nil, fmt.Errorf("model output is not a literal value: %w", jsonErr)
	}
	return value, nil
}

// asRecord converts a decoded JSON or YAML mapping into a record.
func asRecord(v any) (record, bool) {
	switch m := v.(type) {
	case map[string]any:
		r := make(record, len(m))
		for k, val := range m {
			r[strings.ToLower(strings.TrimSpace(k))] = val
		}
		return r, true
	case map[any]any:
		r := make(record, len(m))
		for k, val := range m {
			r[strings.ToLower(strings.TrimSpace(fmt.Sprint(k)))] = val
		}
		return r, true
	default:
		return nil, false
	}
}

// str returns the scalar at key as a string. Nested values and nulls are
// reported as absent.
func (r record) str(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case map[string]any, map[any]any, []any:
		return "", false
	default:
		return fmt.Sprint(t), true
	}
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case []any:
		return "a list"
	case map[string]any, map[any]any:
		return "a mapping"
	default:
		return fmt.Sprintf("a %T", v)
	}
}
