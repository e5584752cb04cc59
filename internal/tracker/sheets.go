package tracker

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/reddit-agent/internal/agent/publisher"
	"github.com/reddit-agent/internal/config"
	"github.com/reddit-agent/pkg/logger"
)

// SheetColumns defines the column headers for the publish log sheet
var SheetColumns = []string{
	"Published At",
	"Subreddit",
	"Account",
	"Thing ID",
	"Post URL",
	"Style",
}

// SheetsTracker appends publish outcomes to a Google Sheet so operators
// can audit activity without database access. Implements
// publisher.Recorder.
type SheetsTracker struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	log           *logger.Logger
}

// NewSheetsTracker creates a new Google Sheets tracker. Returns nil
// when the tracker is disabled.
func NewSheetsTracker(cfg config.TrackerConfig, log *logger.Logger) (*SheetsTracker, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	ctx := context.Background()

	var srv *sheets.Service
	var err error

	// Try service account JSON first (for env var injection)
	if cfg.ServiceAccountJSON != "" {
		srv, err = sheets.NewService(ctx, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
	} else if cfg.CredentialsFile != "" {
		srv, err = sheets.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	} else {
		return nil, fmt.Errorf("no Google credentials provided: set credentials_file or service_account_json")
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	sheetName := cfg.SheetName
	if sheetName == "" {
		sheetName = "Publishes"
	}

	return &SheetsTracker{
		service:       srv,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     sheetName,
		log:           log.WithComponent("sheets-tracker"),
	}, nil
}

// InitializeSheet creates the sheet and headers if they don't exist
func (t *SheetsTracker) InitializeSheet(ctx context.Context) error {
	if err := t.ensureSheetExists(ctx); err != nil {
		return err
	}

	readRange := fmt.Sprintf("%s!A1:F1", t.sheetName)
	resp, err := t.service.Spreadsheets.Values.Get(t.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read sheet: %w", err)
	}

	if len(resp.Values) == 0 {
		t.log.Info().Msg("Initializing sheet with headers")
		return t.writeHeaders(ctx)
	}

	t.log.Debug().Msg("Sheet already has headers")
	return nil
}

// ensureSheetExists creates the sheet if it doesn't exist
func (t *SheetsTracker) ensureSheetExists(ctx context.Context) error {
	spreadsheet, err := t.service.Spreadsheets.Get(t.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == t.sheetName {
			t.log.Debug().Str("sheet", t.sheetName).Msg("Sheet already exists")
			return nil
		}
	}

	t.log.Info().Str("sheet", t.sheetName).Msg("Creating new sheet")
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{
						Title: t.sheetName,
					},
				},
			},
		},
	}

	_, err = t.service.Spreadsheets.BatchUpdate(t.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	return nil
}

// writeHeaders writes column headers to the first row
func (t *SheetsTracker) writeHeaders(ctx context.Context) error {
	var headerRow []interface{}
	for _, col := range SheetColumns {
		headerRow = append(headerRow, col)
	}

	writeRange := fmt.Sprintf("%s!A1", t.sheetName)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{headerRow},
	}

	_, err := t.service.Spreadsheets.Values.Update(t.spreadsheetID, writeRange, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	return nil
}

// RecordPublish appends one publish outcome row
func (t *SheetsTracker) RecordPublish(ctx context.Context, record publisher.PublishRecord) error {
	row := []interface{}{
		record.PublishedAt.Format(time.RFC3339),
		record.Subreddit,
		record.Username,
		record.ThingID,
		record.PostURL,
		record.Style,
	}

	writeRange := fmt.Sprintf("%s!A:F", t.sheetName)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{row},
	}

	_, err := t.service.Spreadsheets.Values.Append(t.spreadsheetID, writeRange, valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append publish row: %w", err)
	}

	t.log.Debug().
		Str("thing_id", record.ThingID).
		Str("subreddit", record.Subreddit).
		Msg("Publish recorded to sheet")
	return nil
}
