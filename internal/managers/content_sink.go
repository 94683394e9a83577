package managers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/rs/xid"
)

// GoogleWorkspace is the part of the Google client used by output nodes.
type GoogleWorkspace interface {
	AppendSheet(ctx context.Context, req domain.SheetAppendRequest) (string, error)
	CreateDriveFile(ctx context.Context, req domain.DriveFileRequest) (domain.DriveFile, error)
}

type contentSink struct {
	outputs    domain.OutputStore
	httpClient *http.Client
	google     GoogleWorkspace
}

type ContentSinkDependencies struct {
	Outputs    domain.OutputStore
	HTTPClient *http.Client
	// Google is optional. Without it Sheets and Drive outputs fail.
	Google GoogleWorkspace
}

func NewContentSink(deps ContentSinkDependencies) domain.ContentSink {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &contentSink{
		outputs:    deps.Outputs,
		httpClient: deps.HTTPClient,
		google:     deps.Google,
	}
}

func (s *contentSink) Save(ctx context.Context, output domain.SavedOutput) (string, error) {
	if output.ID == "" {
		output.ID = xid.New().String()
	}

	id, err := s.outputs.SaveOutput(ctx, output)
	if err != nil {
		return "", fmt.Errorf("failed to save output: %w", err)
	}

	return id, nil
}

func (s *contentSink) WebhookPost(ctx context.Context, req domain.WebhookRequest) (int, error) {
	body, err := json.Marshal(req.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to encode webhook body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create webhook request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

func (s *contentSink) AppendSheet(ctx context.Context, req domain.SheetAppendRequest) (string, error) {
	if s.google == nil {
		return "", fmt.Errorf("google sheets: %w", domain.ErrProviderNotConfigured)
	}

	return s.google.AppendSheet(ctx, req)
}

func (s *contentSink) CreateDriveFile(ctx context.Context, req domain.DriveFileRequest) (domain.DriveFile, error) {
	if s.google == nil {
		return domain.DriveFile{}, fmt.Errorf("google drive: %w", domain.ErrProviderNotConfigured)
	}

	return s.google.CreateDriveFile(ctx, req)
}
