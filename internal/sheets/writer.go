package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Veraticus/cobertura/internal/common"
)

// Writer publishes reports to Google Sheets.
type Writer struct {
	service *sheets.Service
	logger  *slog.Logger
	config  Config
}

// NewWriter creates a new Google Sheets report writer.
func NewWriter(ctx context.Context, config Config, logger *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	service, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrSheetsConnection, err)
	}

	return &Writer{
		config:  config,
		service: service,
		logger:  logger,
	}, nil
}

// Write replaces the contents of the report tabs.
func (w *Writer) Write(ctx context.Context, report Report) error {
	w.logger.Info("starting spreadsheet export",
		"series", len(report.Series),
		"zonal_rows", len(report.Zonal))

	retryOpts := w.config.retryOptions()

	var spreadsheet *sheets.Spreadsheet
	err := common.WithRetry(ctx, func() error {
		var getErr error
		spreadsheet, getErr = w.getOrCreateSpreadsheet(ctx)
		return classify(getErr)
	}, retryOpts)
	if err != nil {
		return fmt.Errorf("%w: failed to get spreadsheet: %w", common.ErrSheetsConnection, err)
	}

	tabs := []struct {
		title  string
		values [][]any
	}{
		{SeriesTab, seriesValues(report)},
		{ZonalTab, zonalValues(report.Zonal)},
	}

	for _, tab := range tabs {
		err := common.WithRetry(ctx, func() error {
			if clearErr := w.clearTab(ctx, spreadsheet.SpreadsheetId, tab.title); clearErr != nil {
				return classify(clearErr)
			}
			return classify(w.writeData(ctx, spreadsheet.SpreadsheetId, tab.title, tab.values))
		}, retryOpts)
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", tab.title, err)
		}
	}

	if w.config.EnableFormatting {
		err = common.WithRetry(ctx, func() error {
			return classify(w.applyFormatting(ctx, spreadsheet))
		}, retryOpts)
		if err != nil {
			// Formatting is cosmetic; the data is already written.
			w.logger.Warn("failed to apply formatting", "error", err)
		}
	}

	w.logger.Info("spreadsheet export completed",
		"spreadsheet_id", spreadsheet.SpreadsheetId,
		"url", spreadsheet.SpreadsheetUrl)

	return nil
}

// createSheetsService creates a Google Sheets API service.
func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}

		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		client := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{sheets.SpreadsheetsScope},
		}

		token := &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		}

		tokenSource = client.TokenSource(ctx, token)
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	return srv, nil
}

// getOrCreateSpreadsheet returns the configured spreadsheet with both report tabs,
// creating the spreadsheet or the missing tabs as needed.
func (w *Writer) getOrCreateSpreadsheet(ctx context.Context) (*sheets.Spreadsheet, error) {
	if w.config.SpreadsheetID == "" {
		spreadsheet := &sheets.Spreadsheet{
			Properties: &sheets.SpreadsheetProperties{
				Title:    w.config.SpreadsheetName,
				TimeZone: w.config.TimeZone,
			},
			Sheets: []*sheets.Sheet{
				{Properties: &sheets.SheetProperties{Title: SeriesTab}},
				{Properties: &sheets.SheetProperties{Title: ZonalTab}},
			},
		}

		created, err := w.service.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("unable to create spreadsheet: %w", err)
		}

		w.logger.Info("created new spreadsheet",
			"id", created.SpreadsheetId,
			"url", created.SpreadsheetUrl)

		// Later runs write to the same spreadsheet.
		w.config.SpreadsheetID = created.SpreadsheetId
		return created, nil
	}

	existing, err := w.service.Spreadsheets.Get(w.config.SpreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to access spreadsheet %s: %w", w.config.SpreadsheetID, err)
	}

	var requests []*sheets.Request
	for _, title := range missingTabs(existing) {
		requests = append(requests, &sheets.Request{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: title}},
		})
	}
	if len(requests) == 0 {
		return existing, nil
	}

	_, err = w.service.Spreadsheets.BatchUpdate(existing.SpreadsheetId, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to add report tabs: %w", err)
	}

	return w.service.Spreadsheets.Get(existing.SpreadsheetId).Context(ctx).Do()
}

// missingTabs lists the report tabs absent from s.
func missingTabs(s *sheets.Spreadsheet) []string {
	have := map[string]bool{}
	for _, sh := range s.Sheets {
		if sh.Properties != nil {
			have[sh.Properties.Title] = true
		}
	}
	var missing []string
	for _, title := range []string{SeriesTab, ZonalTab} {
		if !have[title] {
			missing = append(missing, title)
		}
	}
	return missing
}

// clearTab clears all data from one tab.
func (w *Writer) clearTab(ctx context.Context, spreadsheetID, title string) error {
	_, err := w.service.Spreadsheets.Values.Clear(spreadsheetID, tabRange(title, "A:Z"), &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

// writeData writes values to one tab in batches.
func (w *Writer) writeData(ctx context.Context, spreadsheetID, title string, values [][]any) error {
	for i := 0; i < len(values); i += w.config.BatchSize {
		end := min(i+w.config.BatchSize, len(values))

		batch := values[i:end]
		valueRange := &sheets.ValueRange{
			Values: batch,
		}

		_, err := w.service.Spreadsheets.Values.Update(spreadsheetID, tabRange(title, fmt.Sprintf("A%d", i+1)), valueRange).
			ValueInputOption("RAW").
			Context(ctx).
			Do()

		if err != nil {
			return fmt.Errorf("failed to write batch starting at row %d: %w", i+1, err)
		}

		w.logger.Debug("wrote batch", "tab", title, "start_row", i+1, "rows", len(batch))
	}

	return nil
}

// applyFormatting bolds the first row of each tab and freezes it.
func (w *Writer) applyFormatting(ctx context.Context, spreadsheet *sheets.Spreadsheet) error {
	var requests []*sheets.Request
	for _, sh := range spreadsheet.Sheets {
		if sh.Properties == nil || (sh.Properties.Title != SeriesTab && sh.Properties.Title != ZonalTab) {
			continue
		}
		id := sh.Properties.SheetId
		requests = append(requests,
			&sheets.Request{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: &sheets.GridRange{
						SheetId:       id,
						StartRowIndex: 0,
						EndRowIndex:   1,
					},
					Cell: &sheets.CellData{
						UserEnteredFormat: &sheets.CellFormat{
							TextFormat: &sheets.TextFormat{Bold: true},
						},
					},
					Fields: "userEnteredFormat.textFormat",
				},
			},
			&sheets.Request{
				UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
					Properties: &sheets.SheetProperties{
						SheetId:        id,
						GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
					},
					Fields: "gridProperties.frozenRowCount",
				},
			},
			&sheets.Request{
				AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
					Dimensions: &sheets.DimensionRange{
						SheetId:    id,
						Dimension:  "COLUMNS",
						StartIndex: 0,
						EndIndex:   6,
					},
				},
			},
		)
	}
	if len(requests) == 0 {
		return nil
	}

	_, err := w.service.Spreadsheets.BatchUpdate(spreadsheet.SpreadsheetId, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	return err
}

// classify marks API errors for retrying: rate limits and server errors are
// transient, other API errors permanent, transport errors transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", common.ErrRateLimit, err)
		case apiErr.Code >= http.StatusInternalServerError:
			return common.Transient(err)
		default:
			return common.Permanent(err)
		}
	}
	if errors.Is(err, context.Canceled) {
		return common.Permanent(err)
	}
	return common.Transient(err)
}

func tabRange(title, cells string) string {
	return fmt.Sprintf("'%s'!%s", title, cells)
}
