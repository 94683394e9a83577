package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Accessors over the loosely typed node data written by the editor. Numbers
// may arrive as JSON numbers or as strings, booleans as "true"/"1".

func (n Node) String(key string) string {
	value, ok := n.Data[key]
	if !ok || value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}

	return fmt.Sprint(value)
}

func (n Node) StringOr(key, fallback string) string {
	if value := n.String(key); value != "" {
		return value
	}

	return fallback
}

func (n Node) Bool(key string) bool {
	switch v := n.Data[key].(type) {
	case bool:
		return v
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && parsed
	case float64:
		return v != 0
	}

	return false
}

func (n Node) Float(key string) (float64, bool) {
	return ToFloat(n.Data[key])
}

func (n Node) Int(key string, fallback int) int {
	value, ok := n.Float(key)
	if !ok {
		return fallback
	}

	return int(value)
}

func (n Node) Map(key string) map[string]any {
	value, _ := n.Data[key].(map[string]any)

	return value
}

func (n Node) Slice(key string) []any {
	value, _ := n.Data[key].([]any)

	return value
}

// StringSlice accepts a JSON array or a comma/newline separated string.
func (n Node) StringSlice(key string) []string {
	var values []string

	switch v := n.Data[key].(type) {
	case []any:
		for _, item := range v {
			if s := strings.TrimSpace(StringifyContent(item)); s != "" {
				values = append(values, s)
			}
		}
	case []string:
		for _, item := range v {
			if s := strings.TrimSpace(item); s != "" {
				values = append(values, s)
			}
		}
	case string:
		for _, item := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == '\n' }) {
			if s := strings.TrimSpace(item); s != "" {
				values = append(values, s)
			}
		}
	}

	return values
}

func ToFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}

	return 0, false
}
