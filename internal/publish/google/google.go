// Package google publishes archived statements to the condominium's
// shared Google Sheet, one tab per year with a summary row per period.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"balancete/internal/export"
	ports "balancete/internal/publish"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string // tab base name, prefixed with the year
}

// Ensure interface conformance
var _ ports.StatementPublisher = (*Client)(nil)

// NewFromEnv creates a publisher from environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Optional: GOOGLE_SHEET_NAME (default "Balancetes").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	sheetBase := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if sheetBase == "" {
		sheetBase = "Balancetes"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
	}, nil
}

// newSheetsService initializes a Sheets service using Service Account
// credentials from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// PublishStatement upserts the statement's summary row on the year tab.
// The row is keyed by the period label in column A, so republishing a
// corrected period overwrites the published numbers instead of
// appending a duplicate.
func (c *Client) PublishStatement(ctx context.Context, r export.Report) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("refusing to publish: %w", err)
	}
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	sheet := fmt.Sprintf("%d %s", r.Year, c.sheetBase)

	// Find an existing row for this period, or the next empty one.
	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get sheet dimensions for %s: %w", sheet, err)
	}
	row := len(resp.Values) + 1
	for i, existing := range resp.Values {
		if len(existing) > 0 && fmt.Sprint(existing[0]) == r.PeriodLabel {
			row = i + 1
			break
		}
	}

	// Cents convert to currency units only here, at the publication
	// boundary; the sheet applies its own locale format.
	values := [][]any{{
		r.PeriodLabel,
		float64(r.OpeningBalanceCents) / 100.0,
		float64(r.CreditsCents) / 100.0,
		float64(r.DebitsCents) / 100.0,
		float64(r.CurrentBalanceCents) / 100.0,
		float64(r.InvestmentBalanceCents) / 100.0,
		float64(r.TotalPatrimonyCents) / 100.0,
	}}
	dataRange := fmt.Sprintf("%s!A%d:G%d", sheet, row, row)
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange,
		&gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update row in sheet %s: %w", sheet, err)
	}

	slog.InfoContext(ctx, "statement published",
		"period", r.PeriodLabel,
		"sheet", sheet,
		"row", row)
	return nil
}
