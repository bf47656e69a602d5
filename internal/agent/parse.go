package agent

import (
	"encoding/json"
	"strings"
)

// ExtractJSONObject finds the first balanced top-level JSON object embedded
// in free text and returns it, or "" when none exists. Model output often
// wraps the object in prose or markdown fences, so a plain Unmarshal of the
// whole response is attempted first and this is the recovery path.
func ExtractJSONObject(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}
	end := findObjectEnd(content, start)
	if end <= start {
		return ""
	}
	return content[start:end]
}

// DecodeJSON unmarshals the first JSON object found in content into v.
// Returns false when no parseable object exists.
func DecodeJSON(content string, v any) bool {
	if err := json.Unmarshal([]byte(content), v); err == nil {
		return true
	}
	obj := ExtractJSONObject(content)
	if obj == "" {
		return false
	}
	return json.Unmarshal([]byte(obj), v) == nil
}

// findObjectEnd walks the text from an opening brace, tracking string and
// escape state, and returns the index just past the matching close brace.
func findObjectEnd(content string, start int) int {
	braceCount := 0
	inString := false
	escapeNext := false

	for i := start; i < len(content); i++ {
		char := content[i]

		if escapeNext {
			escapeNext = false
			continue
		}
		if char == '\\' {
			escapeNext = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch char {
		case '{':
			braceCount++
		case '}':
			braceCount--
			if braceCount == 0 {
				return i + 1
			}
		}
	}

	return -1
}

// containsAny reports whether the lowercased text contains any of the terms.
func containsAny(text string, terms ...string) bool {
	lower := strings.ToLower(text)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
