package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON decodes a model's JSON output into a typed value.
// Models wrap JSON in markdown fences or surround it with prose often
// enough that callers must never json.Unmarshal raw output directly.
func ParseJSON(raw string, out any) error {
	cleaned := StripFences(raw)
	start := strings.IndexAny(cleaned, "{[")
	if start < 0 {
		return fmt.Errorf("no JSON object in model output")
	}
	end := lastBalanced(cleaned, start)
	if end < 0 {
		return fmt.Errorf("unbalanced JSON in model output")
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), out); err != nil {
		return fmt.Errorf("decoding model output: %w", err)
	}
	return nil
}

// StripFences removes a surrounding markdown code fence, if present.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// lastBalanced returns the index of the bracket closing the structure
// opened at start, skipping brackets inside string literals.
func lastBalanced(s string, start int) int {
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
