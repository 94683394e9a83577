package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PropertyPathSegment is one step of a response extraction path.
type PropertyPathSegment struct {
	Key         string `json:"key,omitempty"`
	Index       *int   `json:"index,omitempty"`
	FilterField string `json:"filter_field,omitempty"`
	FilterValue string `json:"filter_value,omitempty"`
}

func (s PropertyPathSegment) IsFilter() bool {
	return s.FilterField != ""
}

// Path format examples:
//   - Simple: "message"
//   - Nested: "data.user.name"
//   - Array: "items[0].name" or "items.0.name"
//   - Filter: "items[?status=active].id" or "items[?(@.status=='active')].id"
//
// A leading "$." is accepted and ignored.
var (
	segmentRegex = regexp.MustCompile(`^([^\[\]]*)((?:\[[^\]]*\])*)$`)
	bracketRegex = regexp.MustCompile(`\[([^\]]*)\]`)
)

// ParsePropertyPath breaks a path into segments.
func ParsePropertyPath(path string) ([]PropertyPathSegment, error) {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")

	if path == "" {
		return []PropertyPathSegment{}, nil
	}

	var segments []PropertyPathSegment

	for _, part := range splitPath(path) {
		if part == "" {
			return nil, fmt.Errorf("invalid dot placement in path: '%s'", path)
		}

		matches := segmentRegex.FindStringSubmatch(part)
		if matches == nil {
			return nil, fmt.Errorf("invalid path segment '%s' in path '%s'", part, path)
		}

		if matches[1] != "" {
			segments = append(segments, PropertyPathSegment{Key: matches[1]})
		}

		for _, bracket := range bracketRegex.FindAllStringSubmatch(matches[2], -1) {
			segment, err := parseBracket(bracket[1])
			if err != nil {
				return nil, fmt.Errorf("invalid path '%s': %w", path, err)
			}

			segments = append(segments, segment)
		}
	}

	return segments, nil
}

// splitPath splits on dots that are not inside brackets, so filter values
// may contain dots.
func splitPath(path string) []string {
	var parts []string
	depth := 0
	start := 0

	for i, r := range path {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case '.':
			if depth == 0 {
				parts = append(parts, path[start:i])
				start = i + 1
			}
		}
	}

	return append(parts, path[start:])
}

func parseBracket(content string) (PropertyPathSegment, error) {
	content = strings.TrimSpace(content)

	if index, err := strconv.Atoi(content); err == nil {
		if index < 0 {
			return PropertyPathSegment{}, fmt.Errorf("negative index %d", index)
		}
		return PropertyPathSegment{Index: &index}, nil
	}

	filter := strings.TrimPrefix(content, "?")
	filter = strings.TrimSuffix(strings.TrimPrefix(filter, "("), ")")
	filter = strings.TrimPrefix(filter, "@.")

	field, value, ok := strings.Cut(filter, "==")
	if !ok {
		field, value, ok = strings.Cut(filter, "=")
	}

	if !ok || strings.TrimSpace(field) == "" {
		return PropertyPathSegment{}, fmt.Errorf("unsupported bracket expression [%s]", content)
	}

	value = strings.TrimSpace(value)
	value = strings.Trim(value, `'"`)

	return PropertyPathSegment{
		FilterField: strings.TrimSpace(field),
		FilterValue: value,
	}, nil
}

// ExtractPropertyPath walks value along path. After a filter segment the
// remaining segments apply to every match and the result is a list.
func ExtractPropertyPath(value any, path string) (any, bool) {
	segments, err := ParsePropertyPath(path)
	if err != nil {
		return nil, false
	}

	return extractSegments(value, segments)
}

func extractSegments(value any, segments []PropertyPathSegment) (any, bool) {
	current := value

	for i, segment := range segments {
		if segment.IsFilter() {
			items, ok := current.([]any)
			if !ok {
				return nil, false
			}

			var matches []any
			for _, item := range items {
				fields, ok := item.(map[string]any)
				if !ok {
					continue
				}

				if StringifyContent(fields[segment.FilterField]) != segment.FilterValue {
					continue
				}

				if rest := segments[i+1:]; len(rest) > 0 {
					if extracted, ok := extractSegments(item, rest); ok {
						matches = append(matches, extracted)
					}
					continue
				}

				matches = append(matches, item)
			}

			if len(matches) == 0 {
				return nil, false
			}

			return matches, true
		}

		next, ok := stepInto(current, segment)
		if !ok {
			return nil, false
		}

		current = next
	}

	return current, true
}

func stepInto(value any, segment PropertyPathSegment) (any, bool) {
	if segment.Index != nil {
		items, ok := value.([]any)
		if !ok || *segment.Index >= len(items) {
			return nil, false
		}

		return items[*segment.Index], true
	}

	switch v := value.(type) {
	case map[string]any:
		next, ok := v[segment.Key]
		return next, ok
	case []any:
		index, err := strconv.Atoi(segment.Key)
		if err != nil || index < 0 || index >= len(v) {
			return nil, false
		}

		return v[index], true
	}

	return nil, false
}
