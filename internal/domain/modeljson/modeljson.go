// Package modeljson recovers JSON objects from small-model output, which
// often wraps the object in prose or code fences or breaks it halfway.
package modeljson

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencePattern    = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	relevantPattern = regexp.MustCompile(`(?i)"relevant"\s*:\s*(true|false)`)
	factsPattern    = regexp.MustCompile(`(?s)"facts"\s*:\s*\[([^\]]*)\]`)
)

// Object returns the first JSON object found in text. It tries, in order,
// the whole text, the contents of a code fence, and the span from the first
// '{' to the last '}'.
func Object(text string) (map[string]any, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	if obj, ok := decode(text); ok {
		return obj, true
	}
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		if obj, ok := decode(strings.TrimSpace(m[1])); ok {
			return obj, true
		}
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		if obj, ok := decode(text[start : end+1]); ok {
			return obj, true
		}
	}
	return nil, false
}

func decode(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// Extraction is a map-stage verdict.
type Extraction struct {
	Relevant bool
	Facts    []any
}

// ParseExtraction reads a {"relevant": bool, "facts": [...]} reply. When the
// reply is not valid JSON it falls back to matching the two fields directly.
func ParseExtraction(text string) (Extraction, bool) {
	if obj, ok := Object(text); ok {
		ex := Extraction{Relevant: truthy(obj["relevant"])}
		if facts, ok := obj["facts"].([]any); ok {
			ex.Facts = facts
		}
		return ex, true
	}

	m := relevantPattern.FindStringSubmatch(text)
	if m == nil {
		return Extraction{}, false
	}
	ex := Extraction{Relevant: strings.EqualFold(m[1], "true")}
	if fm := factsPattern.FindStringSubmatch(text); fm != nil {
		for _, f := range strings.Split(fm[1], ",") {
			f = strings.Trim(strings.TrimSpace(f), `"`)
			if f != "" {
				ex.Facts = append(ex.Facts, f)
			}
		}
	}
	return ex, true
}

// String returns obj[key] when it is a non-blank string.
func String(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	default:
		return false
	}
}
