package expressions

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/rs/zerolog"
)

var (
	variableRegex       = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)
	inputReferenceRegex = regexp.MustCompile(`\[Input from ([^\]]+)\]`)
	fieldReferenceRegex = regexp.MustCompile(`\[\[([^\]]+)\] from ([^\]]+)\]`)
)

// TemplateResolver substitutes {{variables}} and cross-node references in
// node content. It never fails: anything it cannot resolve stays verbatim.
type TemplateResolver struct {
	clock  clock.Clock
	site   map[string]string
	logger zerolog.Logger
}

type TemplateResolverOptions struct {
	Clock  clock.Clock
	Site   map[string]string
	Logger zerolog.Logger
}

func DefaultTemplateResolverOptions() TemplateResolverOptions {
	return TemplateResolverOptions{
		Clock:  clock.New(),
		Site:   map[string]string{},
		Logger: zerolog.Nop(),
	}
}

func NewTemplateResolver(opts TemplateResolverOptions) *TemplateResolver {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	if opts.Site == nil {
		opts.Site = map[string]string{}
	}

	return &TemplateResolver{
		clock:  opts.Clock,
		site:   opts.Site,
		logger: opts.Logger,
	}
}

// Resolve expands dynamic variables first, then cross-node references.
func (r *TemplateResolver) Resolve(content string, outputs *domain.NodeOutputs, host domain.HostVariables) string {
	if content == "" {
		return content
	}

	content = r.ResolveVariables(content, host)

	return r.ResolveReferences(content, outputs)
}

func (r *TemplateResolver) ResolveVariables(content string, host domain.HostVariables) string {
	if !strings.Contains(content, "{{") {
		return content
	}

	variables := r.variables(host)

	return variableRegex.ReplaceAllStringFunc(content, func(match string) string {
		name := variableRegex.FindStringSubmatch(match)[1]

		resolve, ok := variables[name]
		if !ok {
			return match
		}

		return resolve()
	})
}

func (r *TemplateResolver) ResolveReferences(content string, outputs *domain.NodeOutputs) string {
	if !strings.Contains(content, " from ") {
		return content
	}

	content = inputReferenceRegex.ReplaceAllStringFunc(content, func(match string) string {
		nodeID := strings.TrimSpace(inputReferenceRegex.FindStringSubmatch(match)[1])

		result, ok := outputs.Get(nodeID)
		if !ok {
			r.logger.Debug().Str("node_id", nodeID).Msg("Unresolved input reference")
			return match
		}

		return wholeContent(result)
	})

	return fieldReferenceRegex.ReplaceAllStringFunc(content, func(match string) string {
		groups := fieldReferenceRegex.FindStringSubmatch(match)
		fieldPath := strings.TrimSpace(groups[1])
		nodeID := strings.TrimSpace(groups[2])

		result, ok := outputs.Get(nodeID)
		if !ok {
			r.logger.Debug().Str("node_id", nodeID).Str("field", fieldPath).Msg("Unresolved field reference")
			return match
		}

		value, ok := fieldContent(result, fieldPath)
		if !ok {
			r.logger.Debug().Str("node_id", nodeID).Str("field", fieldPath).Msg("Field not found in node output")
			return match
		}

		formatted, ok := formatValue(value)
		if !ok {
			return match
		}

		return formatted
	})
}

func wholeContent(result domain.NodeResult) string {
	switch result.Type {
	case string(domain.NodeTypeCondition):
		if result.Input != nil {
			return wholeContent(*result.Input)
		}
	case string(domain.NodeTypeChat):
		if params, ok := actionParams(result.Content); ok {
			return domain.StringifyContent(params)
		}
	}

	return domain.StringifyContent(result.Content)
}

func fieldContent(result domain.NodeResult, fieldPath string) (any, bool) {
	switch result.Type {
	case string(domain.NodeTypeCondition):
		if result.Input == nil {
			return nil, false
		}

		return fieldContent(*result.Input, fieldPath)

	case string(domain.NodeTypeChat):
		if params, ok := actionParams(result.Content); ok {
			if _, name, found := strings.Cut(fieldPath, "."); found {
				if value, ok := params[name]; ok {
					return value, true
				}
			}

			if value, ok := params[fieldPath]; ok {
				return value, true
			}
		}

		return flatLookup(parseStructured(result.Content), fieldPath)

	case string(domain.NodeTypeTrigger):
		content := parseStructured(result.Content)

		if strings.Contains(fieldPath, ".") {
			if value, ok := nestedLookup(content, fieldPath); ok {
				return value, true
			}
		}

		return flatLookup(content, fieldPath)

	case string(domain.NodeTypeFirecrawl):
		content, ok := parseStructured(result.Content).(map[string]any)
		if !ok {
			return nil, false
		}

		inner, ok := content["content"]
		if !ok {
			return nil, false
		}

		if path, found := strings.CutPrefix(fieldPath, "extract."); found {
			extract, ok := nestedLookup(inner, "data.extract")
			if !ok {
				return nil, false
			}

			return nestedLookup(extract, path)
		}

		return inner, true
	}

	return flatLookup(parseStructured(result.Content), fieldPath)
}

func actionParams(content any) (map[string]any, bool) {
	fields, ok := normalize(content).(map[string]any)
	if !ok {
		return nil, false
	}

	params, ok := fields["action_params"].(map[string]any)

	return params, ok
}

// parseStructured normalizes content into JSON shaped values, decoding
// strings that hold a JSON object or array.
func parseStructured(content any) any {
	if s, ok := content.(string); ok {
		trimmed := strings.TrimSpace(s)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			if decoded, ok := decodeJSON([]byte(trimmed)); ok {
				return decoded
			}
		}

		return s
	}

	return normalize(content)
}

func flatLookup(content any, key string) (any, bool) {
	switch v := content.(type) {
	case map[string]any:
		value, ok := v[key]
		return value, ok
	case []any:
		return indexLookup(v, key)
	}

	return nil, false
}

// nestedLookup walks a dotted path. Numeric segments index arrays by position.
func nestedLookup(content any, path string) (any, bool) {
	current := content

	for _, segment := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			next, ok := indexLookup(v, segment)
			if !ok {
				return nil, false
			}
			current = next
		default:
			return nil, false
		}
	}

	return current, true
}

func indexLookup(items []any, segment string) (any, bool) {
	index, ok := domain.ToFloat(segment)
	if !ok || index < 0 || int(index) >= len(items) || float64(int(index)) != index {
		return nil, false
	}

	return items[int(index)], true
}

// formatValue stringifies a resolved field. Lists drop falsy entries and are
// joined with ", ".
func formatValue(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if isFalsy(item) {
				continue
			}
			parts = append(parts, domain.StringifyContent(item))
		}

		return strings.Join(parts, ", "), true
	}

	return domain.StringifyContent(value), true
}

func isFalsy(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case bool:
		return !v
	case string:
		return v == "" || v == "0"
	case json.Number:
		f, err := v.Float64()
		return err == nil && f == 0
	case float64:
		return v == 0
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}

	return false
}

// normalize converts executor produced Go values into the generic JSON
// shapes persisted outputs have, so both resolve identically.
func normalize(content any) any {
	switch content.(type) {
	case nil, string, bool, float64, json.Number:
		return content
	}

	encoded, err := json.Marshal(content)
	if err != nil {
		return content
	}

	decoded, ok := decodeJSON(encoded)
	if !ok {
		return content
	}

	return decoded
}

func decodeJSON(data []byte) (any, bool) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var decoded any
	if err := decoder.Decode(&decoded); err != nil {
		return nil, false
	}

	return decoded, true
}
