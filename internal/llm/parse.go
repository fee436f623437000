package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ParseStatus tags the outcome of ParseRecord.
type ParseStatus int

const (
	ParseFailed ParseStatus = iota
	ParsedOK
)

func (s ParseStatus) String() string {
	if s == ParsedOK {
		return "parsed_ok"
	}
	return "parse_failed"
}

// ParseResult is the tagged outcome of a best-effort structured parse.
// Record is meaningful only when Status is ParsedOK; Err explains a
// failure.
type ParseResult[T any] struct {
	Status ParseStatus
	Record T
	Err    error
}

// OK reports whether the parse succeeded.
func (r ParseResult[T]) OK() bool { return r.Status == ParsedOK }

// Validator may be implemented by record types to reject records that
// decode but are incomplete.
type Validator interface {
	Validate() error
}

var errNoRecord = errors.New("no JSON object found")

// ParseRecord extracts the first top-level JSON object from free text and
// decodes it into T. Markdown code fences and surrounding prose are
// ignored. It never panics and never returns an error directly.
func ParseRecord[T any](text string) ParseResult[T] {
	var zero T

	raw, ok := extractObject(extractJSONFromMarkdown(text))
	if !ok {
		raw, ok = extractObject(text)
	}
	if !ok {
		return ParseResult[T]{Status: ParseFailed, Record: zero, Err: errNoRecord}
	}

	var record T
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return ParseResult[T]{Status: ParseFailed, Record: zero, Err: fmt.Errorf("invalid JSON object: %w", err)}
	}

	if v, ok := any(&record).(Validator); ok {
		if err := v.Validate(); err != nil {
			return ParseResult[T]{Status: ParseFailed, Record: zero, Err: err}
		}
	}

	return ParseResult[T]{Status: ParsedOK, Record: record}
}

// extractObject returns the first balanced {...} in s, honoring JSON
// string literals so braces inside strings do not count.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			c := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
		// unbalanced from this brace; try the next one
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// extractJSONFromMarkdown returns the body of the first ``` fence, or s
// unchanged when there is none.
func extractJSONFromMarkdown(content string) string {
	start := -1
	if idx := strings.Index(content, "```json"); idx >= 0 {
		start = idx + len("```json")
	} else if idx := strings.Index(content, "```"); idx >= 0 {
		start = idx + len("```")
	}

	if start >= 0 {
		if idx := strings.Index(content[start:], "```"); idx >= 0 {
			content = content[start : start+idx]
		}
	}
	return strings.TrimSpace(content)
}
