package condition

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/flowbaker/autoflow/pkg/domain"
)

type ConditionIntegration struct{}

func NewConditionIntegration() *ConditionIntegration {
	return &ConditionIntegration{}
}

// Rule is one comparison. Both values are template-resolved before the
// comparison runs.
type Rule struct {
	Value1        string `json:"value1"`
	Value2        string `json:"value2"`
	ConditionType string `json:"condition_type"`
}

// Execute evaluates the node's rules and records the first upstream result
// so references to the condition pass through to the data it inspected.
func (i *ConditionIntegration) Execute(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
	rules, err := rulesFromNode(input.Node)
	if err != nil {
		return domain.NodeResult{}, domain.WrapNodeError(input.Node.ID, err, "Invalid condition rules")
	}

	if len(rules) == 0 {
		return domain.NodeResult{}, domain.NewNodeError(input.Node.ID, "Condition node has no rules")
	}

	relation := Relation(strings.ToLower(input.Node.StringOr("relation_type", string(RelationAnd))))

	result := relation != RelationOr

	for _, rule := range rules {
		rule.Value1 = input.Resolve(rule.Value1)
		rule.Value2 = input.Resolve(rule.Value2)

		matched, err := EvaluateRule(rule)
		if err != nil {
			return domain.NodeResult{}, domain.WrapNodeError(input.Node.ID, err, "Failed to evaluate condition")
		}

		if relation == RelationOr {
			result = result || matched
		} else {
			result = result && matched
		}
	}

	nodeResult := domain.NewNodeResult(domain.NodeTypeCondition, result)

	if first, ok := input.FirstInput(); ok {
		upstream := first.Result
		nodeResult.Input = &upstream
	}

	return nodeResult, nil
}

// rulesFromNode reads the "conditions" list, or a single rule stored
// directly on the node data.
func rulesFromNode(node domain.Node) ([]Rule, error) {
	raw, ok := node.Data["conditions"]
	if !ok || raw == nil {
		if node.String("condition_type") == "" {
			return nil, nil
		}

		return []Rule{{
			Value1:        node.String("value1"),
			Value2:        node.String("value2"),
			ConditionType: node.String("condition_type"),
		}}, nil
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	var rules []Rule
	if err := json.Unmarshal(encoded, &rules); err != nil {
		return nil, fmt.Errorf("conditions must be a list of rules: %w", err)
	}

	return rules, nil
}

func EvaluateRule(rule Rule) (bool, error) {
	dataType, comparison, _ := strings.Cut(rule.ConditionType, ".")

	switch dataType {
	case "string":
		return evaluateString(ComparisonString(comparison), rule)
	case "number":
		return evaluateNumber(ComparisonNumber(comparison), rule)
	case "boolean":
		return evaluateBoolean(ComparisonBoolean(comparison), rule)
	case "date":
		return evaluateDate(ComparisonDate(comparison), rule)
	case "array":
		return evaluateArray(ComparisonArray(comparison), rule)
	}

	return false, fmt.Errorf("unknown condition data type: %s", dataType)
}

func evaluateString(comparison ComparisonString, rule Rule) (bool, error) {
	value, target := rule.Value1, rule.Value2

	switch comparison {
	case ComparisonString_Exists, ComparisonString_IsNotEmpty:
		return strings.TrimSpace(value) != "", nil
	case ComparisonString_DoesNotExist, ComparisonString_IsEmpty:
		return strings.TrimSpace(value) == "", nil
	case ComparisonString_IsEqual:
		return value == target, nil
	case ComparisonString_IsNotEqual:
		return value != target, nil
	case ComparisonString_Contains:
		return strings.Contains(value, target), nil
	case ComparisonString_DoesNotContain:
		return !strings.Contains(value, target), nil
	case ComparisonString_StartsWith:
		return strings.HasPrefix(value, target), nil
	case ComparisonString_EndsWith:
		return strings.HasSuffix(value, target), nil
	case ComparisonString_DoesNotStartWith:
		return !strings.HasPrefix(value, target), nil
	case ComparisonString_DoesNotEndWith:
		return !strings.HasSuffix(value, target), nil
	case ComparisonString_MatchesRegex, ComparisonString_DoesNotMatchRegex:
		matched, err := regexp.MatchString(target, value)
		if err != nil {
			return false, fmt.Errorf("invalid regular expression %q: %w", target, err)
		}

		return matched == (comparison == ComparisonString_MatchesRegex), nil
	}

	return false, fmt.Errorf("unknown string comparison: %s", comparison)
}

func evaluateNumber(comparison ComparisonNumber, rule Rule) (bool, error) {
	switch comparison {
	case ComparisonNumber_Exists:
		return rule.Value1 != "", nil
	case ComparisonNumber_DoesNotExist:
		return rule.Value1 == "", nil
	}

	left, err := parseNumber(rule.Value1)
	if err != nil {
		return false, err
	}

	right, err := parseNumber(rule.Value2)
	if err != nil {
		return false, err
	}

	switch comparison {
	case ComparisonNumber_IsEqual:
		return left == right, nil
	case ComparisonNumber_IsNotEqual:
		return left != right, nil
	case ComparisonNumber_IsGreaterThan:
		return left > right, nil
	case ComparisonNumber_IsLessThan:
		return left < right, nil
	case ComparisonNumber_IsGreaterThanOrEqual:
		return left >= right, nil
	case ComparisonNumber_IsLessThanOrEqual:
		return left <= right, nil
	}

	return false, fmt.Errorf("unknown number comparison: %s", comparison)
}

func evaluateBoolean(comparison ComparisonBoolean, rule Rule) (bool, error) {
	value := strings.ToLower(strings.TrimSpace(rule.Value1))
	target := strings.ToLower(strings.TrimSpace(rule.Value2))

	switch comparison {
	case ComparisonBoolean_Exists:
		return value != "", nil
	case ComparisonBoolean_DoesNotExist:
		return value == "", nil
	case ComparisonBoolean_IsEqual:
		return value == target, nil
	case ComparisonBoolean_IsNotEqual:
		return value != target, nil
	case ComparisonBoolean_IsTrue:
		return value == "true" || value == "1", nil
	case ComparisonBoolean_IsFalse:
		return value == "false" || value == "0" || value == "", nil
	}

	return false, fmt.Errorf("unknown boolean comparison: %s", comparison)
}

func evaluateDate(comparison ComparisonDate, rule Rule) (bool, error) {
	switch comparison {
	case ComparisonDate_Exists:
		return rule.Value1 != "", nil
	case ComparisonDate_DoesNotExist:
		return rule.Value1 == "", nil
	}

	left, err := parseDate(rule.Value1)
	if err != nil {
		return false, err
	}

	right, err := parseDate(rule.Value2)
	if err != nil {
		return false, err
	}

	switch comparison {
	case ComparisonDate_IsEqual:
		return left.Equal(right), nil
	case ComparisonDate_IsNotEqual:
		return !left.Equal(right), nil
	case ComparisonDate_IsAfter:
		return left.After(right), nil
	case ComparisonDate_IsBefore:
		return left.Before(right), nil
	case ComparisonDate_IsAfterOrEqual:
		return !left.Before(right), nil
	case ComparisonDate_IsBeforeOrEqual:
		return !left.After(right), nil
	}

	return false, fmt.Errorf("unknown date comparison: %s", comparison)
}

func evaluateArray(comparison ComparisonArray, rule Rule) (bool, error) {
	var items []any
	if err := json.Unmarshal([]byte(rule.Value1), &items); err != nil {
		return false, fmt.Errorf("value %q is not a JSON array: %w", rule.Value1, err)
	}

	switch comparison {
	case ComparisonArray_IsEmpty:
		return len(items) == 0, nil
	case ComparisonArray_IsNotEmpty:
		return len(items) > 0, nil
	case ComparisonArray_Contains:
		return containsValue(items, rule.Value2), nil
	case ComparisonArray_DoesNotContain:
		return !containsValue(items, rule.Value2), nil
	}

	length, err := parseNumber(rule.Value2)
	if err != nil {
		return false, err
	}

	switch comparison {
	case ComparisonArray_LengthEquals:
		return float64(len(items)) == length, nil
	case ComparisonArray_LengthGreaterThan:
		return float64(len(items)) > length, nil
	case ComparisonArray_LengthLessThan:
		return float64(len(items)) < length, nil
	}

	return false, fmt.Errorf("unknown array comparison: %s", comparison)
}

func parseNumber(value string) (float64, error) {
	number, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("value %q is not a number", value)
	}

	return number, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)

	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}

	return time.Time{}, fmt.Errorf("value %q is not a date", value)
}

func containsValue(items []any, target string) bool {
	for _, item := range items {
		if domain.StringifyContent(item) == target {
			return true
		}
	}

	return false
}
