// Package coerce converts loosely typed form values (decoded JSON, CLI input,
// HTML form posts) into the shapes the engine works with.
package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Number extracts a finite float64 from value. Strings are parsed after
// trimming; empty strings, NaN and infinities are rejected.
func Number(value any) (float64, bool) {
	var out float64
	switch v := value.(type) {
	case nil:
		return 0, false
	case float64:
		out = v
	case float32:
		out = float64(v)
	case int:
		out = float64(v)
	case int8:
		out = float64(v)
	case int16:
		out = float64(v)
	case int32:
		out = float64(v)
	case int64:
		out = float64(v)
	case uint:
		out = float64(v)
	case uint8:
		out = float64(v)
	case uint16:
		out = float64(v)
	case uint32:
		out = float64(v)
	case uint64:
		out = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		out = f
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		out = f
	default:
		return 0, false
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, false
	}
	return out, true
}

// String renders scalars as strings; nil becomes "".
func String(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(value)
	}
}

// Strings normalises multi-select values ([]string, []any, or a single
// comma separated string) into a trimmed slice without empty entries.
func Strings(value any) []string {
	var raw []string
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		raw = v
	case []any:
		raw = make([]string, 0, len(v))
		for _, entry := range v {
			raw = append(raw, String(entry))
		}
	case string:
		raw = strings.Split(v, ",")
	default:
		raw = []string{String(v)}
	}

	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		if trimmed := strings.TrimSpace(entry); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Empty reports whether value counts as "not entered": nil, blank strings,
// empty slices and empty maps.
func Empty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []string:
		return len(v) == 0
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

// Map returns value as map[string]any when it is an object.
func Map(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case map[string]string:
		out := make(map[string]any, len(v))
		for key, entry := range v {
			out[key] = entry
		}
		return out, true
	default:
		return nil, false
	}
}
