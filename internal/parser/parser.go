// Package parser extracts typed records from free-text LLM replies. Models
// are asked for JSON but frequently wrap it in markdown fences or prose, so
// extraction is lenient; decoding is strict. No untyped data passes this
// boundary: callers get a typed value or a *domain.ParseError.
package parser

import (
	"encoding/json"
	"strings"

	"github.com/labinsight-engine/internal/domain"
)

// ExtractJSON finds the first complete JSON object or array in a model reply,
// tolerating markdown code-fence wrapping and surrounding prose. Returns an
// empty string when no balanced payload is present.
func ExtractJSON(raw string) string {
	s := stripCodeFence(raw)

	objStart := strings.IndexByte(s, '{')
	arrStart := strings.IndexByte(s, '[')

	start := objStart
	if start == -1 || (arrStart != -1 && arrStart < start) {
		start = arrStart
	}
	if start == -1 {
		return ""
	}

	// Scan for the matching close, ignoring brackets inside string literals.
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
				return s[start : i+1]
			}
		}
	}

	return ""
}

// Decode extracts the JSON payload from raw and unmarshals it into v. The
// layer name is carried on the error so callers can log which fallback fired.
func Decode(layer, raw string, v interface{}) error {
	payload := ExtractJSON(raw)
	if payload == "" {
		return domain.NewParseError(layer, "no JSON payload found in model reply", nil)
	}

	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return domain.NewParseError(layer, "malformed JSON payload", err)
	}

	return nil
}

// stripCodeFence removes a leading ```json (or bare ```) fence and its
// closing fence when present. Content outside the fence is discarded since
// models place commentary there.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)

	idx := strings.Index(trimmed, "```")
	if idx == -1 {
		return trimmed
	}

	rest := trimmed[idx+3:]
	// Drop an optional language tag on the fence line
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine == "" || isLanguageTag(firstLine) {
			rest = rest[nl+1:]
		}
	}

	if end := strings.Index(rest, "```"); end != -1 {
		rest = rest[:end]
	}

	return strings.TrimSpace(rest)
}

// isLanguageTag reports whether a fence info string looks like a language tag
// rather than payload content.
func isLanguageTag(s string) bool {
	if len(s) > 12 {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
