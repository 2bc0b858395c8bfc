package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	ports "fintrack/internal/sheets"
)

const defaultSheetName = "Transactions"

var errMissingServiceAccount = errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")

// Client mirrors transactions into one sheet. Column A holds the ledger id,
// which is how rows are found again for deletion.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *applog.Logger

	mu      sync.Mutex
	sheetID *int64
}

// Ensure interface conformance
var _ ports.TransactionMirror = (*Client)(nil)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_SHEET_NAME (default "Transactions")
// Auth: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS; otherwise an OAuth client
// (GOOGLE_OAUTH_CLIENT_JSON/FILE) plus a saved token (GOOGLE_OAUTH_TOKEN_JSON/FILE).
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	creds, err := credentialsFromEnv(ctx)
	if err == nil {
		return New(ctx, spreadsheetID, os.Getenv("GOOGLE_SHEET_NAME"),
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	}
	if !errors.Is(err, errMissingServiceAccount) {
		return nil, err
	}

	opt, ok, oauthErr := oauthOptionFromEnv(ctx)
	if !ok {
		return nil, err
	}
	if oauthErr != nil {
		return nil, oauthErr
	}
	slog.InfoContext(ctx, "Using OAuth user credentials")
	return New(ctx, spreadsheetID, os.Getenv("GOOGLE_SHEET_NAME"), opt)
}

// New creates a client for an explicit spreadsheet. opts are passed to the
// Sheets service unchanged.
func New(ctx context.Context, spreadsheetID, sheetName string, opts ...goption.ClientOption) (*Client, error) {
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = defaultSheetName
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        applog.FromSlog(slog.Default(), applog.ComponentSheets),
	}, nil
}

// credentialsFromEnv reads service account credentials.
func credentialsFromEnv(ctx context.Context) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials", "json_length", len(serviceAccountJSON))
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errMissingServiceAccount
	}
}

// Append adds a row for t unless its id is already present.
func (c *Client) Append(ctx context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	idx, err := c.findRow(ctx, t.ID)
	if err != nil {
		return "", err
	}
	if idx >= 0 {
		ref := c.rowRef(idx)
		c.logger.InfoContext(ctx, "Transaction already mirrored",
			applog.FieldTransactionID, t.ID,
			applog.FieldMirrorRef, ref)
		return ref, nil
	}

	vr := &gsheet.ValueRange{Values: [][]any{rowValues(t)}}
	rng := fmt.Sprintf("%s!A:F", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	ref := rng
	if resp != nil && resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.InfoContext(ctx, "Transaction mirrored",
		applog.FieldTransactionID, t.ID,
		applog.FieldMirrorRef, ref)
	return ref, nil
}

// Delete removes the row holding id. An absent id reports false.
func (c *Client) Delete(ctx context.Context, id int64) (bool, error) {
	if c.svc == nil {
		return false, errors.New("sheets service not initialized")
	}

	idx, err := c.findRow(ctx, id)
	if err != nil {
		return false, err
	}
	if idx < 0 {
		return false, nil
	}

	sheetID, err := c.resolveSheetID(ctx)
	if err != nil {
		return false, err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(idx),
					EndIndex:   int64(idx + 1),
					// Zero is a valid sheet id and row index.
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return false, fmt.Errorf("delete row %d in sheet %s: %w", idx+1, c.sheetName, err)
	}

	c.logger.InfoContext(ctx, "Transaction removed from mirror",
		applog.FieldTransactionID, id,
		applog.FieldMirrorRef, c.rowRef(idx))
	return true, nil
}

// IDs returns the ids found in column A, in row order. Cells that are not
// ids, such as a header, are skipped.
func (c *Client) IDs(ctx context.Context) ([]int64, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	values, err := c.idColumn(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(values))
	for _, row := range values {
		if len(row) == 0 {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(row[0])), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// findRow returns the zero-based row index holding id in column A, or -1.
func (c *Client) findRow(ctx context.Context, id int64) (int, error) {
	values, err := c.idColumn(ctx)
	if err != nil {
		return -1, err
	}
	return indexOfID(values, id), nil
}

func (c *Client) idColumn(ctx context.Context) ([][]any, error) {
	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (c *Client) resolveSheetID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sheetID != nil {
		return *c.sheetID, nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet metadata: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == c.sheetName {
			id := sh.Properties.SheetId
			c.sheetID = &id
			return id, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found in spreadsheet", c.sheetName)
}

func (c *Client) rowRef(idx int) string {
	return fmt.Sprintf("%s!A%d:F%d", c.sheetName, idx+1, idx+1)
}

func rowValues(t core.Transaction) []any {
	return []any{
		strconv.FormatInt(t.ID, 10),
		t.Title,
		t.Amount.String(),
		t.Category,
		string(t.Type),
		t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// indexOfID scans a single-column values matrix. Header and blank rows never
// match because they do not parse as the id.
func indexOfID(values [][]any, id int64) int {
	want := strconv.FormatInt(id, 10)
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == want {
			return i
		}
	}
	return -1
}
