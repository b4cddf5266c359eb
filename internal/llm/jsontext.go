package llm

import (
	"errors"
	"strings"
)

// ErrNoJSON is returned when a model reply contains no parseable JSON.
var ErrNoJSON = errors.New("no valid JSON found in response")

// StripFences removes a surrounding markdown code fence, if any.
// Models frequently wrap JSON output in ```json ... ``` despite being
// told not to.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		first := strings.TrimSpace(s[:idx])
		if first == "" || strings.EqualFold(first, "json") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ExtractObject returns the first balanced {...} object in s, scanning
// past any prose the model emitted around it. String contents are
// skipped so braces inside values do not break the balance count.
func ExtractObject(s string) (string, error) {
	return extractBalanced(StripFences(s), '{', '}')
}

// ExtractArray returns the first balanced [...] array in s.
func ExtractArray(s string) (string, error) {
	return extractBalanced(StripFences(s), '[', ']')
}

func extractBalanced(s string, open, close byte) (string, error) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case open:
			if !inString {
				depth++
			}
		case close:
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], nil
				}
			}
		}
	}
	return "", ErrNoJSON
}
