// Package google exports reports to a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	applog "expenses/internal/log"
	ports "expenses/internal/sheets"
)

// Ensure interface conformance
var _ ports.ReportExporter = (*Client)(nil)

// lastColumn is the column letter of the widest report row.
const lastColumn = "G"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *applog.Logger
	now           func() time.Time
}

// Config selects the spreadsheet and credentials. CredentialsJSON wins over
// CredentialsFile. HTTPClient and Endpoint bypass credentials entirely.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string

	HTTPClient *http.Client
	Endpoint   string
	Logger     *applog.Logger
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	sheetName := strings.TrimSpace(cfg.SheetName)
	if sheetName == "" {
		sheetName = "Expenses"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentSheets)

	svc, err := newSheetsService(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, cfg Config, logger *applog.Logger) (*gsheet.Service, error) {
	if cfg.HTTPClient != nil {
		opts := []goption.ClientOption{goption.WithHTTPClient(cfg.HTTPClient)}
		if cfg.Endpoint != "" {
			opts = append(opts, goption.WithEndpoint(cfg.Endpoint))
		}
		return gsheet.NewService(ctx, opts...)
	}

	serviceAccountJSON := strings.TrimSpace(cfg.CredentialsJSON)
	serviceAccountFile := strings.TrimSpace(cfg.CredentialsFile)

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		logger.DebugContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		logger.DebugContext(ctx, "Reading credentials from file", applog.FieldPath, serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}

	opts := []goption.ClientOption{
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, goption.WithEndpoint(cfg.Endpoint))
	}
	service, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ExportReport writes a title row, the header and the data rows below the
// last used row of the sheet, leaving one blank row between reports. Cells
// are written as entered so user text is never parsed as a formula.
func (c *Client) ExportReport(ctx context.Context, r ports.Report) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if len(r.Rows) == 0 {
		return "", errors.New("report has no header row")
	}

	// The whole block is read because the API trims trailing empty rows and
	// report rows may have an empty first column.
	rng := fmt.Sprintf("%s!A:%s", quoteSheet(c.sheetName), lastColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get sheet dimensions for %s: %w", c.sheetName, err)
	}
	startRow := nextRow(len(resp.Values))

	values := reportValues(r, c.now())
	endRow := startRow + len(values) - 1
	dataRange := fmt.Sprintf("%s!A%d:%s%d", quoteSheet(c.sheetName), startRow, lastColumn, endRow)

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update %s: %w", dataRange, err)
	}

	c.logger.InfoContext(ctx, "Exported report to sheet",
		applog.FieldSpreadsheet, c.spreadsheetID,
		applog.FieldSheet, c.sheetName,
		applog.FieldReportName, r.Name,
		applog.FieldRecords, len(r.Rows)-1,
		"range", dataRange)

	return dataRange, nil
}

// nextRow returns the 1-based row to start writing at given the number of
// rows already used.
func nextRow(used int) int {
	if used == 0 {
		return 1
	}
	return used + 2
}

func reportValues(r ports.Report, now time.Time) [][]any {
	out := make([][]any, 0, len(r.Rows)+1)
	out = append(out, []any{r.Name, "Base: " + r.BaseCurrency, now.UTC().Format(time.RFC3339)})
	for _, row := range r.Rows {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = v
		}
		out = append(out, cells)
	}
	return out
}

// quoteSheet quotes sheet names that A1 notation would otherwise misread.
func quoteSheet(name string) string {
	if strings.ContainsAny(name, " !'-") {
		return "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name
}
