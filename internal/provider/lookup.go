package provider

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Lookup walks decoded JSON along a dotted path such as "data.0.url".
// Numeric segments index arrays. Missing keys, bad indexes and type
// mismatches return (nil, false).
func Lookup(raw any, path string) (any, bool) {
	current := raw
	path = strings.TrimSpace(path)
	if path == "" {
		return current, current != nil
	}
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = value
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

// StringAt returns the string at path. Numbers are formatted; other types
// are ignored.
func StringAt(raw any, path string) string {
	value, ok := Lookup(raw, path)
	if !ok {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

// FirstString returns the first non-empty StringAt over paths.
func FirstString(raw any, paths ...string) string {
	for _, path := range paths {
		if value := StringAt(raw, path); value != "" {
			return value
		}
	}
	return ""
}

// NumberAt returns the number at path. Strings such as "45" or "45%" are
// parsed.
func NumberAt(raw any, path string) (float64, bool) {
	value, ok := Lookup(raw, path)
	if !ok {
		return 0, false
	}
	var number float64
	switch v := value.(type) {
	case float64:
		number = v
	case int:
		number = float64(v)
	case int64:
		number = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		number = parsed
	case string:
		trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "%"))
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		number = parsed
	default:
		return 0, false
	}
	if math.IsNaN(number) || math.IsInf(number, 0) {
		return 0, false
	}
	return number, true
}

// ProgressAt reads a progress percentage at path, rounded to an int. The
// value is not clamped.
func ProgressAt(raw any, path string) *int {
	number, ok := NumberAt(raw, path)
	if !ok {
		return nil
	}
	if number > math.MaxInt32 {
		number = math.MaxInt32
	} else if number < math.MinInt32 {
		number = math.MinInt32
	}
	value := int(math.Round(number))
	return &value
}

// firstStringOf returns a string or the first string element of a list.
func firstStringOf(raw any, path string) string {
	value, ok := Lookup(raw, path)
	if !ok {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
