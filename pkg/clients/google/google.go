package google

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/flowbaker/autoflow/pkg/domain"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

type ClientOpts struct {
	// CredentialsFile is a service account or authorized user JSON key.
	CredentialsFile string

	// HTTPClient and Endpoint replace credential based auth, used against
	// local fakes.
	HTTPClient *http.Client
	Endpoint   string
}

type Client struct {
	sheetsService *sheets.Service
	driveService  *drive.Service
}

func New(ctx context.Context, opts ClientOpts) (*Client, error) {
	httpClient := opts.HTTPClient

	if httpClient == nil {
		data, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read google credentials: %w", err)
		}

		credentials, err := googleoauth.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope, drive.DriveFileScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse google credentials: %w", err)
		}

		httpClient = oauth2.NewClient(ctx, credentials.TokenSource)
	}

	clientOptions := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if opts.Endpoint != "" {
		clientOptions = append(clientOptions, option.WithEndpoint(strings.TrimSuffix(opts.Endpoint, "/")+"/"))
	}

	sheetsService, err := sheets.NewService(ctx, clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	driveService, err := drive.NewService(ctx, clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &Client{
		sheetsService: sheetsService,
		driveService:  driveService,
	}, nil
}

// AppendSheet appends one row after the last filled row of the sheet and
// returns the updated A1 range.
func (c *Client) AppendSheet(ctx context.Context, req domain.SheetAppendRequest) (string, error) {
	sheetRange := req.SheetName
	if sheetRange == "" {
		sheetRange = "Sheet1"
	}

	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{req.Values},
	}

	resp, err := c.sheetsService.Spreadsheets.Values.Append(req.SpreadsheetID, sheetRange, valueRange).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to append data to sheet: %w", err)
	}

	if resp.Updates == nil {
		return sheetRange, nil
	}

	return resp.Updates.UpdatedRange, nil
}

func (c *Client) CreateDriveFile(ctx context.Context, req domain.DriveFileRequest) (domain.DriveFile, error) {
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "text/plain"
	}

	fileMetadata := &drive.File{
		Name:     req.Name,
		MimeType: mimeType,
	}

	if req.FolderID != "" {
		fileMetadata.Parents = []string{req.FolderID}
	}

	file, err := c.driveService.Files.Create(fileMetadata).
		Media(strings.NewReader(req.Content)).
		Fields("id", "name", "webViewLink").
		Context(ctx).Do()
	if err != nil {
		return domain.DriveFile{}, fmt.Errorf("failed to create drive file: %w", err)
	}

	return domain.DriveFile{
		ID:          file.Id,
		Name:        file.Name,
		WebViewLink: file.WebViewLink,
	}, nil
}
