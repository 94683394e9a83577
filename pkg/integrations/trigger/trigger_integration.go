package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/flowbaker/autoflow/pkg/integrations/rss"
	"github.com/rs/zerolog/log"
)

const defaultRSSLockTTL = time.Minute

type TriggerIntegrationDependencies struct {
	Feeds      domain.FeedFetcher
	Lock       domain.ShortLock
	RSSLockTTL time.Duration
}

type TriggerIntegration struct {
	feeds      domain.FeedFetcher
	lock       domain.ShortLock
	rssLockTTL time.Duration
}

func NewTriggerIntegration(deps TriggerIntegrationDependencies) *TriggerIntegration {
	ttl := deps.RSSLockTTL
	if ttl <= 0 {
		ttl = defaultRSSLockTTL
	}

	return &TriggerIntegration{
		feeds:      deps.Feeds,
		lock:       deps.Lock,
		rssLockTTL: ttl,
	}
}

func (i *TriggerIntegration) Execute(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
	triggerType := domain.TriggerType(input.Node.StringOr("triggerType", string(domain.TriggerTypeManual)))
	payload := input.ExecutionContext.TriggerPayload

	switch {
	case triggerType == domain.TriggerTypeManual:
		return i.manual(input, payload), nil
	case triggerType == domain.TriggerTypeWebhook, triggerType == domain.TriggerTypeWPCore:
		if payload == nil {
			return domain.NodeResult{}, domain.NewNodeError(input.Node.ID, "No %s payload received", triggerType)
		}

		return domain.NewNodeResult(domain.NodeTypeTrigger, Normalize(payload)), nil
	case triggerType.IsForm():
		if payload == nil {
			return domain.NodeResult{}, domain.NewNodeError(input.Node.ID, "No form submission received")
		}

		return domain.NewNodeResult(domain.NodeTypeTrigger, FlattenFormFields(Normalize(payload))), nil
	case triggerType == domain.TriggerTypeRSS:
		return i.rss(ctx, input)
	case triggerType == domain.TriggerTypeWorkflowOutput:
		return i.workflowOutput(input, payload)
	}

	return domain.NodeResult{}, domain.NewNodeError(input.Node.ID, "Unknown trigger type: %s", triggerType)
}

// manual runs use the request input when one was given, otherwise the
// trigger's own content field.
func (i *TriggerIntegration) manual(input domain.NodeInput, payload any) domain.NodeResult {
	if payload != nil {
		if normalized := Normalize(payload); !isEmpty(normalized) {
			return domain.NewNodeResult(domain.NodeTypeTrigger, normalized)
		}
	}

	return domain.NewNodeResult(domain.NodeTypeTrigger, input.ResolveString("content"))
}

func (i *TriggerIntegration) rss(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
	feedURL := input.ResolveString("feedUrl")
	if feedURL == "" {
		return domain.NodeResult{}, domain.NewNodeError(input.Node.ID, "Feed URL is required")
	}

	if i.lock != nil {
		key := fmt.Sprintf("rss:%s:%s", feedURL, input.ExecutionContext.ExecutionID)

		acquired, err := i.lock.TryAcquire(ctx, key, i.rssLockTTL)
		if err != nil {
			return domain.NodeResult{}, domain.WrapNodeError(input.Node.ID, err, "Failed to acquire feed lock")
		}

		if !acquired {
			log.Info().
				Str("execution_id", input.ExecutionContext.ExecutionID).
				Str("feed_url", feedURL).
				Msg("Feed is already being processed, skipping fetch")

			return domain.NewNodeResult(domain.NodeTypeTrigger, ""), nil
		}
	}

	feed, err := i.feeds.Fetch(ctx, feedURL)
	if err != nil {
		return domain.NodeResult{}, domain.WrapNodeError(input.Node.ID, err, "Failed to fetch feed")
	}

	content := rss.FeedContent(feedURL, feed, input.Node.Int("maxItems", 0))

	return domain.NewNodeResult(domain.NodeTypeTrigger, content), nil
}

func (i *TriggerIntegration) workflowOutput(input domain.NodeInput, payload any) (domain.NodeResult, error) {
	chained, ok := Normalize(payload).(map[string]any)
	if !ok {
		return domain.NodeResult{}, domain.NewNodeError(input.Node.ID, "No output received from source workflow")
	}

	expected := input.Node.String("sourceWorkflowId")
	if source := domain.StringifyContent(chained["source_workflow_id"]); expected != "" && source != expected {
		return domain.NodeResult{}, domain.NewNodeError(input.Node.ID, "Output of workflow %s does not match source workflow %s", source, expected)
	}

	return domain.NewNodeResult(domain.NodeTypeTrigger, chained), nil
}

// Normalize turns payloads into string keyed maps and slices. JSON text is
// decoded so field references can navigate into it.
func Normalize(value any) any {
	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			var decoded any
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				return Normalize(decoded)
			}
		}

		return v
	case []byte:
		return Normalize(string(v))
	case map[string]any:
		normalized := make(map[string]any, len(v))
		for key, item := range v {
			normalized[key] = Normalize(item)
		}

		return normalized
	case map[string]string:
		normalized := make(map[string]any, len(v))
		for key, item := range v {
			normalized[key] = item
		}

		return normalized
	case map[any]any:
		normalized := make(map[string]any, len(v))
		for key, item := range v {
			normalized[fmt.Sprint(key)] = Normalize(item)
		}

		return normalized
	case []any:
		normalized := make([]any, len(v))
		for idx, item := range v {
			normalized[idx] = Normalize(item)
		}

		return normalized
	case []string:
		normalized := make([]any, len(v))
		for idx, item := range v {
			normalized[idx] = item
		}

		return normalized
	}

	return value
}

// FlattenFormFields maps form plugin submissions to label keyed values. Form
// plugins send either a plain map or a "fields" list of {label|name, value}.
func FlattenFormFields(value any) any {
	submission, ok := value.(map[string]any)
	if !ok {
		return value
	}

	fields, ok := submission["fields"].([]any)
	if !ok {
		return submission
	}

	flat := make(map[string]any, len(submission)+len(fields))

	for key, item := range submission {
		if key != "fields" {
			flat[key] = item
		}
	}

	for _, rawField := range fields {
		field, ok := rawField.(map[string]any)
		if !ok {
			continue
		}

		key := domain.StringifyContent(field["label"])
		if key == "" {
			key = domain.StringifyContent(field["name"])
		}

		if key == "" {
			key = domain.StringifyContent(field["id"])
		}

		if key == "" {
			continue
		}

		flat[key] = field["value"]
	}

	return flat
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	}

	return false
}
