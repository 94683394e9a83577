package output

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/rs/zerolog/log"
)

type OutputType string

const (
	OutputType_Display      OutputType = "display"
	OutputType_Save         OutputType = "save"
	OutputType_Webhook      OutputType = "webhook"
	OutputType_HTML         OutputType = "html"
	OutputType_GoogleSheets OutputType = "googleSheets"
	OutputType_GoogleDrive  OutputType = "googleDrive"
)

const (
	StatusSuccess   = "success"
	StatusWarning   = "warning"
	StatusError     = "error"
	StatusScheduled = "scheduled"
)

type OutputIntegrationDependencies struct {
	Sink      domain.ContentSink
	Scheduler domain.TaskScheduler
	Clock     clock.Clock
}

type OutputIntegration struct {
	sink      domain.ContentSink
	scheduler domain.TaskScheduler
	clock     clock.Clock
}

func NewOutputIntegration(deps OutputIntegrationDependencies) *OutputIntegration {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}

	return &OutputIntegration{
		sink:      deps.Sink,
		scheduler: deps.Scheduler,
		clock:     deps.Clock,
	}
}

// Delivery is everything a sink needs, captured at execution time so a
// delayed delivery does not depend on the run that scheduled it.
type Delivery struct {
	WorkflowID  string
	ExecutionID string
	NodeID      string
	OutputType  OutputType
	Content     string
	Config      map[string]string
}

func (i *OutputIntegration) Execute(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
	content := input.ResolveString("content")
	if strings.TrimSpace(content) == "" {
		content = input.CombinedInput("\n\n")
	}

	delivery := Delivery{
		WorkflowID:  input.ExecutionContext.WorkflowID,
		ExecutionID: input.ExecutionContext.ExecutionID,
		NodeID:      input.Node.ID,
		OutputType:  OutputType(input.Node.StringOr("outputType", string(OutputType_Display))),
		Content:     content,
		Config:      resolvedConfig(input),
	}

	at, delayed, err := i.deliveryTime(input.Node)
	if err != nil {
		return domain.NodeResult{}, domain.WrapNodeError(input.Node.ID, err, "Invalid output schedule")
	}

	if delayed {
		return i.schedule(ctx, delivery, at)
	}

	return domain.NewNodeResult(domain.NodeTypeOutput, i.Deliver(ctx, delivery)), nil
}

func (i *OutputIntegration) deliveryTime(node domain.Node) (time.Time, bool, error) {
	if minutes, ok := node.Float("delayMinutes"); ok && minutes > 0 {
		return i.clock.Now().Add(time.Duration(minutes * float64(time.Minute))), true, nil
	}

	if raw := node.String("scheduledAt"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("scheduledAt must be an RFC3339 timestamp: %w", err)
		}

		if at.After(i.clock.Now()) {
			return at, true, nil
		}
	}

	return time.Time{}, false, nil
}

func (i *OutputIntegration) schedule(ctx context.Context, delivery Delivery, at time.Time) (domain.NodeResult, error) {
	if i.scheduler == nil {
		return domain.NodeResult{}, domain.WrapNodeError(delivery.NodeID, domain.ErrProviderNotConfigured, "Scheduler is not configured")
	}

	taskID, err := i.scheduler.ScheduleAt(ctx, at, domain.TaskDeliverOutput, deliveryPayload(delivery))
	if err != nil {
		return domain.NodeResult{}, domain.WrapNodeError(delivery.NodeID, err, "Failed to schedule output")
	}

	return domain.NewNodeResult(domain.NodeTypeOutput, map[string]any{
		"content":     delivery.Content,
		"output_type": string(delivery.OutputType),
		"status":      StatusScheduled,
		"message":     fmt.Sprintf("Scheduled for %s", at.UTC().Format(time.RFC3339)),
		"task_id":     taskID,
	}), nil
}

// Deliver runs the sink for delivery.OutputType. Sink failures are reported
// in the returned status rather than as errors.
func (i *OutputIntegration) Deliver(ctx context.Context, delivery Delivery) map[string]any {
	result := map[string]any{
		"content":     delivery.Content,
		"output_type": string(delivery.OutputType),
	}

	status, message, extra := i.deliver(ctx, delivery)

	result["status"] = status
	result["message"] = message
	for key, value := range extra {
		result[key] = value
	}

	if status == StatusError {
		log.Warn().Str("node_id", delivery.NodeID).Str("output_type", string(delivery.OutputType)).Msg(message)
	}

	return result
}

func (i *OutputIntegration) deliver(ctx context.Context, d Delivery) (string, string, map[string]any) {
	switch d.OutputType {
	case OutputType_Display:
		return StatusSuccess, "Content ready for display", nil

	case OutputType_HTML:
		return StatusSuccess, "HTML content ready", nil

	case OutputType_Save, OutputType_Webhook, OutputType_GoogleSheets, OutputType_GoogleDrive:
		if i.sink == nil {
			return StatusError, "Content sink is not configured", nil
		}

	default:
		return StatusError, fmt.Sprintf("Unknown output type: %s", d.OutputType), nil
	}

	switch d.OutputType {
	case OutputType_Save:
		id, err := i.sink.Save(ctx, domain.SavedOutput{
			WorkflowID:  d.WorkflowID,
			ExecutionID: d.ExecutionID,
			NodeID:      d.NodeID,
			Content:     d.Content,
			CreatedAt:   i.clock.Now(),
		})
		if err != nil {
			return StatusError, fmt.Sprintf("Failed to save output: %v", err), nil
		}

		return StatusSuccess, "Output saved", map[string]any{"output_id": id}

	case OutputType_Webhook:
		webhookURL := d.Config["webhookUrl"]
		if webhookURL == "" {
			return StatusWarning, "No webhook URL configured, nothing was sent", nil
		}

		statusCode, err := i.sink.WebhookPost(ctx, domain.WebhookRequest{
			URL:     webhookURL,
			Headers: headersFromConfig(d.Config),
			Body: map[string]any{
				"content":      d.Content,
				"workflow_id":  d.WorkflowID,
				"execution_id": d.ExecutionID,
				"node_id":      d.NodeID,
			},
		})
		if err != nil {
			return StatusError, fmt.Sprintf("Webhook request failed: %v", err), nil
		}

		if statusCode >= 400 {
			return StatusError, fmt.Sprintf("Webhook responded with status %d", statusCode), map[string]any{"status_code": statusCode}
		}

		return StatusSuccess, fmt.Sprintf("Webhook responded with status %d", statusCode), map[string]any{"status_code": statusCode}

	case OutputType_GoogleSheets:
		spreadsheetID := d.Config["spreadsheetId"]
		if spreadsheetID == "" {
			return StatusWarning, "No spreadsheet configured, nothing was appended", nil
		}

		sheetName := d.Config["sheetName"]
		if sheetName == "" {
			sheetName = "Sheet1"
		}

		updatedRange, err := i.sink.AppendSheet(ctx, domain.SheetAppendRequest{
			SpreadsheetID: spreadsheetID,
			SheetName:     sheetName,
			Values:        []any{i.clock.Now().UTC().Format(time.RFC3339), d.Content},
		})
		if err != nil {
			return StatusError, fmt.Sprintf("Failed to append to sheet: %v", err), nil
		}

		return StatusSuccess, fmt.Sprintf("Appended to %s", updatedRange), map[string]any{"range": updatedRange}

	default:
		name := d.Config["fileName"]
		if name == "" {
			name = fmt.Sprintf("output-%s.txt", i.clock.Now().UTC().Format("20060102-150405"))
		}

		mimeType := d.Config["mimeType"]
		if mimeType == "" {
			mimeType = "text/plain"
		}

		file, err := i.sink.CreateDriveFile(ctx, domain.DriveFileRequest{
			FolderID: d.Config["folderId"],
			Name:     name,
			MimeType: mimeType,
			Content:  d.Content,
		})
		if err != nil {
			return StatusError, fmt.Sprintf("Failed to create Drive file: %v", err), nil
		}

		return StatusSuccess, fmt.Sprintf("Created Drive file %s", file.Name), map[string]any{
			"file_id":   file.ID,
			"file_link": file.WebViewLink,
		}
	}
}

// RegisterTaskHandlers lets the scheduler run delayed deliveries.
func (i *OutputIntegration) RegisterTaskHandlers(registry domain.TaskRegistry) {
	registry.RegisterHandler(domain.TaskDeliverOutput, func(ctx context.Context, payload map[string]any) error {
		delivery, err := deliveryFromPayload(payload)
		if err != nil {
			return err
		}

		result := i.Deliver(ctx, delivery)

		log.Info().
			Str("execution_id", delivery.ExecutionID).
			Str("node_id", delivery.NodeID).
			Str("status", fmt.Sprint(result["status"])).
			Msg("Delivered scheduled output")

		return nil
	})
}

var configKeys = []string{"webhookUrl", "spreadsheetId", "sheetName", "folderId", "fileName", "mimeType"}

func resolvedConfig(input domain.NodeInput) map[string]string {
	config := map[string]string{}

	for _, key := range configKeys {
		if value := input.ResolveString(key); value != "" {
			config[key] = value
		}
	}

	for name, value := range input.Node.Map("webhookHeaders") {
		config["header:"+name] = input.Resolve(domain.StringifyContent(value))
	}

	return config
}

func headersFromConfig(config map[string]string) map[string]string {
	headers := map[string]string{}

	for key, value := range config {
		if name, ok := strings.CutPrefix(key, "header:"); ok {
			headers[name] = value
		}
	}

	return headers
}

func deliveryPayload(d Delivery) map[string]any {
	config := make(map[string]any, len(d.Config))
	for key, value := range d.Config {
		config[key] = value
	}

	return map[string]any{
		"workflow_id":  d.WorkflowID,
		"execution_id": d.ExecutionID,
		"node_id":      d.NodeID,
		"output_type":  string(d.OutputType),
		"content":      d.Content,
		"config":       config,
	}
}

func deliveryFromPayload(payload map[string]any) (Delivery, error) {
	nodeID, _ := payload["node_id"].(string)
	if nodeID == "" {
		return Delivery{}, fmt.Errorf("deliver output task is missing node_id")
	}

	d := Delivery{
		NodeID: nodeID,
		Config: map[string]string{},
	}
	d.WorkflowID, _ = payload["workflow_id"].(string)
	d.ExecutionID, _ = payload["execution_id"].(string)
	d.Content, _ = payload["content"].(string)

	outputType, _ := payload["output_type"].(string)
	d.OutputType = OutputType(outputType)

	if config, ok := payload["config"].(map[string]any); ok {
		for key, value := range config {
			d.Config[key] = domain.StringifyContent(value)
		}
	}

	return d, nil
}
