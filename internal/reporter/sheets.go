package reporter

import (
	"context"
	"fmt"
	"os"
	"time"

	"fleet-reconciliation-service/internal/models"
	"fleet-reconciliation-service/internal/reconciler"
	"fleet-reconciliation-service/pkg/errors"
	"fleet-reconciliation-service/pkg/logger"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsConfig configures the Google Sheets report sink.
type SheetsConfig struct {
	// ServiceAccountPath is a service-account JSON key. When empty the
	// OAuth2 client credentials and refresh token are used instead.
	ServiceAccountPath string `json:"service_account_path"`
	ClientID           string `json:"client_id"`
	ClientSecret       string `json:"client_secret"`
	RefreshToken       string `json:"-"`

	SpreadsheetID string `json:"spreadsheet_id"`
	// SheetPrefix is prepended to the deployment ID to name the tab.
	SheetPrefix string        `json:"sheet_prefix"`
	WriteNotes  bool          `json:"write_notes"`
	Timeout     time.Duration `json:"timeout"`
}

// DefaultSheetsConfig returns a default Sheets configuration
func DefaultSheetsConfig() *SheetsConfig {
	return &SheetsConfig{
		SheetPrefix: "DR",
		WriteNotes:  true,
		Timeout:     time.Minute,
	}
}

// Enabled reports whether a spreadsheet was configured at all.
func (c *SheetsConfig) Enabled() bool {
	return c != nil && c.SpreadsheetID != ""
}

// Validate validates the Sheets configuration
func (c *SheetsConfig) Validate() error {
	if c.SpreadsheetID == "" {
		return fmt.Errorf("spreadsheet id is required")
	}
	if c.ServiceAccountPath == "" && (c.ClientID == "" || c.ClientSecret == "" || c.RefreshToken == "") {
		return fmt.Errorf("either a service account key or client id, client secret and refresh token are required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %v", c.Timeout)
	}
	return nil
}

// SheetsAPI is the subset of the Sheets API the writer needs.
type SheetsAPI interface {
	// SheetID returns the numeric ID of the tab with the given title.
	SheetID(ctx context.Context, spreadsheetID, title string) (int64, bool, error)
	AddSheet(ctx context.Context, spreadsheetID, title string) (int64, error)
	ClearValues(ctx context.Context, spreadsheetID, rng string) error
	UpdateValues(ctx context.Context, spreadsheetID, rng string, values [][]interface{}) error
	BatchUpdate(ctx context.Context, spreadsheetID string, requests []*sheets.Request) error
}

// SheetsWriter writes deployment results to one tab per deployment.
type SheetsWriter struct {
	api    SheetsAPI
	config *SheetsConfig
	logger logger.Logger
}

// NewSheetsWriter authenticates against Google and creates a writer.
func NewSheetsWriter(ctx context.Context, config *SheetsConfig, log logger.Logger) (*SheetsWriter, error) {
	if config == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "sheets", "", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "sheets", config.SpreadsheetID, err)
	}

	service, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, errors.NetworkError(errors.CodeSheetsUnavailable, config.SpreadsheetID, err)
	}

	return NewSheetsWriterWithAPI(&googleSheetsAPI{service: service}, config, log), nil
}

// NewSheetsWriterWithAPI creates a writer over an existing API client.
func NewSheetsWriterWithAPI(api SheetsAPI, config *SheetsConfig, log logger.Logger) *SheetsWriter {
	if config == nil {
		config = DefaultSheetsConfig()
	}
	return &SheetsWriter{
		api:    api,
		config: config,
		logger: logger.OrGlobal(log).WithComponent("sheets_writer"),
	}
}

// Name identifies the sink in logs.
func (w *SheetsWriter) Name() string {
	return "sheets:" + w.config.SpreadsheetID
}

// SheetTitle returns the tab title used for a deployment.
func (w *SheetsWriter) SheetTitle(result *reconciler.DeploymentResult) string {
	return w.config.SheetPrefix + result.Deployment.ID()
}

// Write replaces the deployment's tab with the record table, then colors
// each row by class and attaches the cell notes.
func (w *SheetsWriter) Write(ctx context.Context, result *reconciler.DeploymentResult) error {
	if result == nil {
		return errors.ValidationError(errors.CodeMissingField, "result", nil, nil)
	}
	if w.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.Timeout)
		defer cancel()
	}

	spreadsheetID := w.config.SpreadsheetID
	title := w.SheetTitle(result)
	log := w.logger.WithFields(logger.Fields{
		"spreadsheet_id": spreadsheetID,
		"sheet":          title,
	})

	sheetID, ok, err := w.api.SheetID(ctx, spreadsheetID, title)
	if err != nil {
		return w.wrap(err)
	}
	if !ok {
		if sheetID, err = w.api.AddSheet(ctx, spreadsheetID, title); err != nil {
			return w.wrap(err)
		}
		log.Info("Created sheet")
	}

	rng := fmt.Sprintf("'%s'!A:Z", title)
	if err := w.api.ClearValues(ctx, spreadsheetID, rng); err != nil {
		return w.wrap(err)
	}

	values := w.prepareValues(result)
	if err := w.api.UpdateValues(ctx, spreadsheetID, fmt.Sprintf("'%s'!A1", title), values); err != nil {
		return w.wrap(err)
	}

	requests := w.formatRequests(sheetID, result.Records)
	if len(requests) > 0 {
		if err := w.api.BatchUpdate(ctx, spreadsheetID, requests); err != nil {
			// the values stay written without colors
			log.WithError(err).Warn("Failed to apply formatting")
		}
	}

	log.WithFields(logger.Fields{
		"rows":     len(values),
		"requests": len(requests),
	}).Info("Sheet written")
	return nil
}

func (w *SheetsWriter) wrap(err error) error {
	return errors.NetworkError(errors.CodeSheetsUnavailable, w.config.SpreadsheetID, err)
}

func (w *SheetsWriter) prepareValues(result *reconciler.DeploymentResult) [][]interface{} {
	values := make([][]interface{}, 0, len(result.Records)+1)
	values = append(values, toInterfaces(RecordHeaders))
	for _, rec := range result.Records {
		values = append(values, toInterfaces(RecordRow(result.Deployment.ID(), rec)))
	}
	return values
}

func toInterfaces(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

// Cell positions within RecordHeaders.
const columnRow = 1

var fieldColumns = map[models.KeyField]int64{
	models.FieldAgreement:   5,
	models.FieldReservation: 6,
	models.FieldKey:         7,
	models.FieldPlate:       8,
}

var secondaryColumns = map[models.SecondaryAttribute]int64{
	models.AttrMake:       9,
	models.AttrModel:      10,
	models.AttrColor:      11,
	models.AttrLocation:   12,
	models.AttrPickupDate: 13,
	models.AttrReturnDate: 14,
}

// formatRequests builds the header style, one fill per row, cell fills for
// stale identifiers and secondary mismatches, and the cell notes.
func (w *SheetsWriter) formatRequests(sheetID int64, records []*models.ReconciliationRecord) []*sheets.Request {
	width := int64(len(RecordHeaders))
	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   width,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{Bold: true},
					},
				},
				Fields: "userEnteredFormat.textFormat",
			},
		},
	}

	for i, rec := range records {
		row := int64(i + 1)
		requests = append(requests, fillRequest(sheetID, row, 0, width, RowColor(rec)))

		for _, field := range models.KeyFields {
			col := fieldColumns[field]
			if rec.Fields[field].Stale {
				requests = append(requests, fillRequest(sheetID, row, col, col+1, ColorStale))
			}
			if w.config.WriteNotes {
				if note := FieldNote(rec, field); note != "" {
					requests = append(requests, noteRequest(sheetID, row, col, note))
				}
			}
		}

		for _, attr := range rec.Secondary.Mismatches() {
			col := secondaryColumns[attr]
			requests = append(requests, fillRequest(sheetID, row, col, col+1, ColorMismatch))
		}
		if w.config.WriteNotes {
			for _, attr := range models.SecondaryAttributes {
				col := secondaryColumns[attr]
				if note := SecondaryNote(rec, attr); note != "" {
					requests = append(requests, noteRequest(sheetID, row, col, note))
				}
			}
			if rec.IdentifierConflict || rec.HasErrors() {
				note := fmt.Sprintf("identifier conflict: %t", rec.IdentifierConflict)
				for _, msg := range rec.Errors {
					note += "\n" + msg
				}
				requests = append(requests, noteRequest(sheetID, row, columnRow, note))
			}
		}
	}
	return requests
}

func fillRequest(sheetID, row, startCol, endCol int64, color Color) *sheets.Request {
	r, g, b := color.Fraction()
	return &sheets.Request{
		RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId:          sheetID,
				StartRowIndex:    row,
				EndRowIndex:      row + 1,
				StartColumnIndex: startCol,
				EndColumnIndex:   endCol,
			},
			Cell: &sheets.CellData{
				UserEnteredFormat: &sheets.CellFormat{
					BackgroundColor: &sheets.Color{Red: r, Green: g, Blue: b},
				},
			},
			Fields: "userEnteredFormat.backgroundColor",
		},
	}
}

func noteRequest(sheetID, row, col int64, note string) *sheets.Request {
	return &sheets.Request{
		UpdateCells: &sheets.UpdateCellsRequest{
			Start: &sheets.GridCoordinate{
				SheetId:     sheetID,
				RowIndex:    row,
				ColumnIndex: col,
			},
			Rows: []*sheets.RowData{
				{Values: []*sheets.CellData{{Note: note}}},
			},
			Fields: "note",
		},
	}
}

// createSheetsService creates a Google Sheets API service.
func createSheetsService(ctx context.Context, config *SheetsConfig) (*sheets.Service, error) {
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

		tokenSource = client.TokenSource(ctx, &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		})
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, tokenSource)))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}
	return srv, nil
}

// googleSheetsAPI implements SheetsAPI over the generated client.
type googleSheetsAPI struct {
	service *sheets.Service
}

func (g *googleSheetsAPI) SheetID(ctx context.Context, spreadsheetID, title string) (int64, bool, error) {
	spreadsheet, err := g.service.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, false, fmt.Errorf("unable to access spreadsheet %s: %w", spreadsheetID, err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == title {
			return sheet.Properties.SheetId, true, nil
		}
	}
	return 0, false, nil
}

func (g *googleSheetsAPI) AddSheet(ctx context.Context, spreadsheetID, title string) (int64, error) {
	resp, err := g.service.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: title}}},
		},
	}).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("unable to add sheet %q: %w", title, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil {
		return 0, fmt.Errorf("no reply for added sheet %q", title)
	}
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

func (g *googleSheetsAPI) ClearValues(ctx context.Context, spreadsheetID, rng string) error {
	_, err := g.service.Spreadsheets.Values.Clear(spreadsheetID, rng, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (g *googleSheetsAPI) UpdateValues(ctx context.Context, spreadsheetID, rng string, values [][]interface{}) error {
	_, err := g.service.Spreadsheets.Values.Update(spreadsheetID, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func (g *googleSheetsAPI) BatchUpdate(ctx context.Context, spreadsheetID string, requests []*sheets.Request) error {
	_, err := g.service.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	return err
}
