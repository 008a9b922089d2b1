// Package llm - util.go provides shared utilities for LLM response processing.
package llm

import "strings"

// CleanJSONBlock extracts the JSON payload from an LLM response. It removes
// markdown code fences, conversational preamble before the payload, and
// trailing chatter after it. Returns the input unchanged when no JSON object
// or array can be located.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	// Handle ```json ... ``` blocks
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	// Handle generic ``` ... ``` blocks
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		// Skip potential language identifier on first line
		if idx := strings.Index(text, "\n"); idx >= 0 {
			firstLine := text[:idx]
			if len(firstLine) < 20 && !strings.Contains(firstLine, " ") && !strings.Contains(firstLine, "{") {
				text = text[idx+1:]
			}
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	// Strip preamble/trailing text around a bare JSON object or array.
	objStart := strings.Index(text, "{")
	arrStart := strings.Index(text, "[")
	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if extracted := extractJSONObject(text[objStart:]); extracted != "" {
			return extracted
		}
	}
	if arrStart >= 0 {
		if extracted := extractJSONArray(text[arrStart:]); extracted != "" {
			return extracted
		}
	}

	return text
}

// extractJSONObject returns the balanced JSON object at the start of text,
// or "" when text does not begin with one.
func extractJSONObject(text string) string {
	return extractBalanced(text, '{', '}')
}

// extractJSONArray returns the balanced JSON array at the start of text,
// or "" when text does not begin with one.
func extractJSONArray(text string) string {
	return extractBalanced(text, '[', ']')
}

// extractBalanced scans for the matching close delimiter, ignoring
// delimiters inside string literals and escape sequences.
func extractBalanced(text string, open, close byte) string {
	if len(text) == 0 || text[0] != open {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == open:
			depth++
		case !inString && c == close:
			depth--
			if depth == 0 {
				return text[:i+1]
			}
		}
	}
	return ""
}
