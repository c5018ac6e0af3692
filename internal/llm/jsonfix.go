package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Normalize extracts the JSON object from a model reply. It strips Markdown
// code fences and surrounding prose, and drops trailing commas before a
// closing bracket.
func Normalize(text string) (string, error) {
	s := stripFence(strings.TrimSpace(text))

	obj, ok := outermostObject(s)
	if !ok {
		return "", fmt.Errorf("%w: no JSON object found", ErrMalformedOutput)
	}
	obj = dropTrailingCommas(obj)

	if !json.Valid([]byte(obj)) {
		return "", fmt.Errorf("%w: invalid JSON object", ErrMalformedOutput)
	}
	return obj, nil
}

// Decode normalizes text, validates it against schema when one is given and
// unmarshals it into v.
func Decode(text string, schema *Schema, v any) error {
	raw, err := Normalize(text)
	if err != nil {
		return err
	}
	if schema != nil {
		if err := schema.Validate([]byte(raw)); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedOutput, err)
		}
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}
	return nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// drop the opening fence line, which may carry a language tag
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimLeft(s, "`")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// outermostObject returns the first balanced {...} in s. Braces inside JSON
// strings do not count.
func outermostObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
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
	return "", false
}

func dropTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
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
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
