package domain

import "context"

type WebhookRequest struct {
	URL     string
	Headers map[string]string
	Body    map[string]any
}

type SheetAppendRequest struct {
	SpreadsheetID string
	SheetName     string
	Values        []any
}

type DriveFileRequest struct {
	FolderID string
	Name     string
	MimeType string
	Content  string
}

type DriveFile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	WebViewLink string `json:"web_view_link,omitempty"`
}

// ContentSink performs the side effects of output nodes.
type ContentSink interface {
	Save(ctx context.Context, output SavedOutput) (string, error)
	WebhookPost(ctx context.Context, req WebhookRequest) (int, error)
	AppendSheet(ctx context.Context, req SheetAppendRequest) (string, error)
	CreateDriveFile(ctx context.Context, req DriveFileRequest) (DriveFile, error)
}
