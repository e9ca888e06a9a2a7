// Package google reads tagged records and mood keywords from a Google spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"trendai/internal/core"
	"trendai/internal/sources"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Options selects the spreadsheet and how to authenticate.
type Options struct {
	SpreadsheetID   string
	RecordsSheet    string
	KeywordsSheet   string
	CredentialsJSON string
	CredentialsFile string
}

// valuesReader is the slice of the Sheets API the client uses.
type valuesReader interface {
	Values(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
	Ping(ctx context.Context, spreadsheetID string) error
}

type Client struct {
	api           valuesReader
	spreadsheetID string
	recordsSheet  string
	keywordsSheet string
}

var _ sources.Source = (*Client)(nil)

// New creates a Sheets-backed source using service account credentials.
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if opts.RecordsSheet == "" {
		opts.RecordsSheet = "records"
	}

	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(sheetsAPI{svc: svc}, opts), nil
}

func newClient(api valuesReader, opts Options) *Client {
	return &Client{
		api:           api,
		spreadsheetID: opts.SpreadsheetID,
		recordsSheet:  opts.RecordsSheet,
		keywordsSheet: opts.KeywordsSheet,
	}
}

func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(opts.CredentialsJSON)
	case opts.CredentialsFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", opts.CredentialsFile)
		data, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

type sheetsAPI struct {
	svc *gsheet.Service
}

func (s sheetsAPI) Values(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s sheetsAPI) Ping(ctx context.Context, spreadsheetID string) error {
	_, err := s.svc.Spreadsheets.Get(spreadsheetID).Fields("spreadsheetId").Context(ctx).Do()
	return err
}

func (c *Client) readSheet(ctx context.Context, sheet string) ([][]string, error) {
	if c.api == nil {
		return nil, errors.New("sheets service not initialized")
	}
	values, err := c.api.Values(ctx, c.spreadsheetID, sheet)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sheet, err)
	}
	rows := make([][]string, 0, len(values))
	for _, row := range values {
		rows = append(rows, toStrings(row))
	}
	return rows, nil
}

func (c *Client) allRecords(ctx context.Context) ([]core.Record, error) {
	rows, err := c.readSheet(ctx, c.recordsSheet)
	if err != nil {
		return nil, err
	}
	records, skipped, err := sources.DecodeRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.recordsSheet, err)
	}
	if skipped > 0 {
		slog.DebugContext(ctx, "Skipped sheet rows without a period", "sheet", c.recordsSheet, "skipped", skipped)
	}
	return records, nil
}

func (c *Client) ListRecords(ctx context.Context, q core.RecordQuery) ([]core.Record, error) {
	records, err := c.allRecords(ctx)
	if err != nil {
		return nil, err
	}
	return sources.Filter(records, q), nil
}

func (c *Client) Meta(ctx context.Context) (core.Meta, error) {
	records, err := c.allRecords(ctx)
	if err != nil {
		return core.Meta{}, err
	}
	return sources.BuildMeta(records), nil
}

// MoodKeywords returns nothing when no keywords sheet is configured.
func (c *Client) MoodKeywords(ctx context.Context) ([]core.MoodKeyword, error) {
	if c.keywordsSheet == "" {
		return nil, nil
	}
	rows, err := c.readSheet(ctx, c.keywordsSheet)
	if err != nil {
		return nil, err
	}
	return sources.DecodeKeywords(rows)
}

func (c *Client) Ping(ctx context.Context) error {
	if c.api == nil {
		return errors.New("sheets service not initialized")
	}
	if err := c.api.Ping(ctx, c.spreadsheetID); err != nil {
		return fmt.Errorf("ping spreadsheet: %w", err)
	}
	return nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		if v == nil {
			continue
		}
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
