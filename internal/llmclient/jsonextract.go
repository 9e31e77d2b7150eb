package llmclient

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON parses content three ways in order — raw, one layer of
// triple-backtick fencing (optionally with a language tag), then the
// substring from the first '{' to the last '}' — returning the first
// variant that parses as valid JSON.
func ExtractJSON(content string) (string, error) {
	if candidate := content; isValidJSON(candidate) {
		return strings.TrimSpace(candidate), nil
	}

	if fenced, ok := stripFence(content); ok && isValidJSON(fenced) {
		return strings.TrimSpace(fenced), nil
	}

	if braced, ok := firstToLastBrace(content); ok && isValidJSON(braced) {
		return strings.TrimSpace(braced), nil
	}

	return "", fmt.Errorf("could not extract JSON from LLM response: %q", content)
}

func isValidJSON(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	return json.Valid([]byte(s))
}

// stripFence removes one layer of ``` fencing, tolerating an optional
// language tag on the opening fence line (e.g. ```json).
func stripFence(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return "", false
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(s[:nl])
		if firstLine == "" || isLanguageTag(firstLine) {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return s, true
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return s != ""
}

func firstToLastBrace(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}
