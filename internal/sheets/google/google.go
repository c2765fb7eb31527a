// Package google appends import audit rows to a Google spreadsheet. It is
// export-only: the dashboard itself never reads from Sheets.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"findash/internal/amqp"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Optional: EXPORT_SHEET_NAME (default "Imports"), credentials via
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	sheetName := strings.TrimSpace(os.Getenv("EXPORT_SHEET_NAME"))
	if sheetName == "" {
		sheetName = "Imports"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

// AppendImportRow appends one audit row for a committed import batch.
func (c *Client) AppendImportRow(ctx context.Context, event *amqp.ImportEvent) error {
	values := &gsheet.ValueRange{
		Values: [][]interface{}{{
			event.Timestamp.Format("2006-01-02 15:04:05"),
			event.DatasetID,
			event.FileID,
			event.FileName,
			event.TransactionCount,
		}},
	}

	_, err := c.svc.Spreadsheets.Values.
		Append(c.spreadsheetID, c.sheetName+"!A:E", values).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append import row: %w", err)
	}
	return nil
}

// newSheetsService initializes the Sheets service from service-account
// credentials (inline JSON, a file path, or ADC).
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credentialsJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	credentialsFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if credentialsJSON == "" && credentialsFile == "" {
		credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var opts []goption.ClientOption
	switch {
	case credentialsJSON != "":
		opts = append(opts, goption.WithCredentialsJSON([]byte(credentialsJSON)))
	case credentialsFile != "":
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		opts = append(opts, goption.WithCredentialsJSON(data))
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	opts = append(opts, goption.WithScopes(gsheet.SpreadsheetsScope))

	service, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}
