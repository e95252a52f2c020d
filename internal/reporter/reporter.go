// Package reporter renders reconciliation results.
//
// Supported output formats:
//   - Console: human-readable summary and record listing, class-colored
//     with lipgloss when the output is a terminal
//   - JSON: structured data for programmatic consumption
//   - CSV: one line per record for spreadsheet applications
//
// SheetsWriter pushes the same record table to Google Sheets, with each row
// filled in its class color and per-cell notes explaining partial matches.
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = generator.GenerateRunReport(run, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"fleet-reconciliation-service/internal/models"
	"fleet-reconciliation-service/internal/reconciler"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Record selection
	IncludeRecords     bool `json:"include_records"`
	IncludeFullMatches bool `json:"include_full_matches"`
	IncludeExcluded    bool `json:"include_excluded"`
	IncludeWarnings    bool `json:"include_warnings"`

	// Console formatting options
	UseColors     bool `json:"use_colors"`
	MaxRecords    int  `json:"max_records"`
	TableMaxWidth int  `json:"table_max_width"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:             FormatConsole,
		IncludeRecords:     true,
		IncludeFullMatches: true,
		IncludeExcluded:    true,
		IncludeWarnings:    true,
		UseColors:          true,
		MaxRecords:         0,
		TableMaxWidth:      120,
		CSVDelimiter:       ',',
		CSVHeaders:         true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50 characters, got %d", c.TableMaxWidth)
	}

	if c.MaxRecords < 0 {
		return fmt.Errorf("max records cannot be negative, got %d", c.MaxRecords)
	}

	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport writes the report of one deployment.
func (rg *ReportGenerator) GenerateReport(result *reconciler.DeploymentResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("deployment result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(writer, result)
	case FormatJSON:
		return rg.encodeJSON(writer, rg.filterResultForOutput(result))
	case FormatCSV:
		return rg.generateCSVReport(writer, result)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GenerateRunReport writes the report of a multi-deployment run: every
// deployment result followed by the deployments that failed.
func (rg *ReportGenerator) GenerateRunReport(run *reconciler.RunResult, writer io.Writer) error {
	if run == nil {
		return fmt.Errorf("run result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		if err := rg.generateConsoleReport(writer, run.Results...); err != nil {
			return err
		}
		if len(run.Failures) > 0 {
			fmt.Fprintf(writer, "=== FAILED DEPLOYMENTS ===\n")
			for _, failure := range run.Failures {
				fmt.Fprintf(writer, "  - %s: %s\n", failure.DeploymentID, failure.Message)
			}
		}
		return nil
	case FormatJSON:
		deployments := make([]map[string]interface{}, 0, len(run.Results))
		for _, result := range run.Results {
			deployments = append(deployments, rg.filterResultForOutput(result))
		}
		output := map[string]interface{}{
			"run_id":      run.RunID,
			"started_at":  run.StartedAt,
			"duration":    run.Duration.String(),
			"deployments": deployments,
		}
		if len(run.Failures) > 0 {
			output["failures"] = run.Failures
		}
		return rg.encodeJSON(writer, output)
	case FormatCSV:
		return rg.generateCSVReport(writer, run.Results...)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

type consoleStyles struct {
	title   lipgloss.Style
	section lipgloss.Style
	dim     lipgloss.Style
	classes map[models.MatchClass]lipgloss.Style
}

func (rg *ReportGenerator) newConsoleStyles(writer io.Writer) consoleStyles {
	renderer := lipgloss.NewRenderer(writer)
	styles := consoleStyles{
		title:   renderer.NewStyle(),
		section: renderer.NewStyle(),
		dim:     renderer.NewStyle(),
		classes: make(map[models.MatchClass]lipgloss.Style, len(classColors)),
	}
	for class := range classColors {
		styles.classes[class] = renderer.NewStyle()
	}
	if !rg.config.UseColors {
		return styles
	}

	styles.title = styles.title.Bold(true).Foreground(lipgloss.Color("86"))
	styles.section = styles.section.Bold(true).Foreground(lipgloss.Color("4"))
	styles.dim = styles.dim.Foreground(lipgloss.Color("241"))
	for class, color := range classColors {
		styles.classes[class] = styles.classes[class].Foreground(lipgloss.Color(color.Hex()))
	}
	return styles
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(writer io.Writer, results ...*reconciler.DeploymentResult) error {
	styles := rg.newConsoleStyles(writer)

	for _, result := range results {
		fmt.Fprintf(writer, "%s\n", styles.title.Render("FLEET RECONCILIATION REPORT "+result.Deployment.String()))
		if result.RunID != "" {
			fmt.Fprintf(writer, "Run: %s\n", result.RunID)
		}
		fmt.Fprintf(writer, "Generated: %s\n", result.ProcessedAt.Format(time.RFC3339))
		fmt.Fprintf(writer, "Processing Duration: %v\n\n", result.Summary.ProcessingDuration)

		fmt.Fprintf(writer, "%s\n", styles.section.Render("=== SUMMARY ==="))
		rg.printSummaryTable(result.Summary, writer)
		fmt.Fprintf(writer, "\n")

		fmt.Fprintf(writer, "%s\n", styles.section.Render("=== MATCH CLASSES ==="))
		rg.printClassTable(result.Summary, writer, styles)
		fmt.Fprintf(writer, "\n")

		if rg.config.IncludeWarnings && (len(result.Warnings) > 0 || result.RecordErrors != nil || len(result.IndexConflicts) > 0) {
			fmt.Fprintf(writer, "%s\n", styles.section.Render("=== WARNINGS ==="))
			rg.printWarnings(result, writer)
			fmt.Fprintf(writer, "\n")
		}

		if rg.config.IncludeRecords {
			records := rg.selectRecords(result.Records)
			if len(records) > 0 {
				fmt.Fprintf(writer, "%s\n", styles.section.Render("=== RECORDS ==="))
				rg.printRecordList(records, writer, styles)
				fmt.Fprintf(writer, "\n")
			}
		}
	}
	return nil
}

// encodeJSON generates a structured JSON report
func (rg *ReportGenerator) encodeJSON(writer io.Writer, value interface{}) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}

// RecordHeaders are the column headers of the per-record table shared by the
// CSV and Sheets outputs.
var RecordHeaders = []string{
	"Deployment",
	"Row",
	"Provenance",
	"Class",
	"Sub_Class",
	"Agreement",
	"Reservation",
	"MVA",
	"Plate",
	"Make",
	"Model",
	"Color",
	"Pickup_Location",
	"Pickup_Date",
	"Expected_Return",
	"Cost_Control",
	"Matched_Vehicle",
	"Stale",
	"Secondary_Mismatches",
	"Fill",
	"Notes",
}

// RecordRow renders one record as a table row matching RecordHeaders.
func RecordRow(deploymentID string, rec *models.ReconciliationRecord) []string {
	v := rec.Vendor

	mismatches := make([]string, 0, len(models.SecondaryAttributes))
	for _, attr := range rec.Secondary.Mismatches() {
		mismatches = append(mismatches, string(attr))
	}

	return []string{
		deploymentID,
		v.RowID,
		string(v.Provenance),
		string(rec.Class),
		string(rec.SubClass),
		models.Deref(v.AgreementNumber),
		models.Deref(v.ReservationNumber),
		models.Deref(v.KeyNumber),
		v.Plate(),
		models.Deref(v.Make),
		models.Deref(v.Model),
		models.Deref(v.Color),
		models.Deref(v.PickupLocation),
		models.FormatDate(v.PickupDate),
		models.FormatDate(v.ExpectedReturn),
		models.Deref(v.CostControl),
		rec.MatchedVehicleID,
		strconv.FormatBool(rec.Stale),
		strings.Join(mismatches, ";"),
		RowColor(rec).Hex(),
		strings.Join(RecordNotes(rec), "; "),
	}
}

// generateCSVReport generates a CSV report with one line per record
func (rg *ReportGenerator) generateCSVReport(writer io.Writer, results ...*reconciler.DeploymentResult) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(RecordHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, result := range results {
		for _, rec := range rg.selectRecords(result.Records) {
			if err := csvWriter.Write(RecordRow(result.Deployment.ID(), rec)); err != nil {
				return fmt.Errorf("failed to write record %s: %w", rec.Vendor.RowID, err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printSummaryTable(summary *reconciler.ResultSummary, writer io.Writer) {
	fmt.Fprintf(writer, "Tracker Records:      %d\n", summary.TrackerRecords)
	fmt.Fprintf(writer, "Vendor Open Rows:     %d\n", summary.VendorOpenRows)
	fmt.Fprintf(writer, "Vendor All Rows:      %d\n", summary.VendorAllRows)
	fmt.Fprintf(writer, "Promoted From All:    %d\n", summary.Promoted)
	fmt.Fprintf(writer, "Missing From Vendor:  %d\n", summary.Synthesized)
	fmt.Fprintf(writer, "Stale Matches:        %d\n", summary.Stale)
	fmt.Fprintf(writer, "Secondary Mismatches: %d\n", summary.SecondaryMismatches)
	fmt.Fprintf(writer, "Full Match Rate:      %s%%\n", summary.FullMatchRate.Shift(2).StringFixed(2))
}

func (rg *ReportGenerator) printClassTable(summary *reconciler.ResultSummary, writer io.Writer, styles consoleStyles) {
	total := 0
	for _, n := range summary.ByClass {
		total += n
	}

	for _, class := range reportClasses {
		label := styles.classes[class].Width(16).Render(ClassLabel(class))
		count := summary.Count(class)
		fmt.Fprintf(writer, "%s %d (%.1f%%)\n", label, count, rg.calculatePercentage(count, total))
	}
	if summary.PartialElsewhere > 0 {
		fmt.Fprintf(writer, "  of which partial elsewhere: %d\n", summary.PartialElsewhere)
	}
}

func (rg *ReportGenerator) printWarnings(result *reconciler.DeploymentResult, writer io.Writer) {
	for _, warning := range result.Warnings {
		fmt.Fprintf(writer, "  - %s\n", warning.Message)
	}
	for _, conflict := range result.IndexConflicts {
		fmt.Fprintf(writer, "  - duplicate active %s key %s: kept %s, dropped %s\n",
			conflict.Field, conflict.Key, conflict.KeptID, conflict.DroppedID)
	}
	if result.RecordErrors != nil {
		fmt.Fprintf(writer, "  - %s\n", result.RecordErrors.Error())
	}
}

func (rg *ReportGenerator) printRecordList(records []*models.ReconciliationRecord, writer io.Writer, styles consoleStyles) {
	limit := len(records)
	if rg.config.MaxRecords > 0 && rg.config.MaxRecords < limit {
		limit = rg.config.MaxRecords
	}

	for i, rec := range records[:limit] {
		label := styles.classes[rec.Class].Render(ClassLabel(rec.Class))
		if rec.SubClass != models.SubClassNone {
			label += " / " + ClassLabel(models.MatchClass(rec.SubClass))
		}

		line := fmt.Sprintf("  %d. %s [%s] %s", i+1, rec.Vendor.RowID, rec.Vendor.Provenance, label)
		if rec.MatchedVehicleID != "" {
			line += fmt.Sprintf(" -> vehicle %s", rec.MatchedVehicleID)
		}
		if rec.Stale {
			line += " (stale)"
		}
		fmt.Fprintf(writer, "%s\n", line)

		for _, note := range RecordNotes(rec) {
			fmt.Fprintf(writer, "     %s\n", styles.dim.Render(truncate(note, rg.config.TableMaxWidth-5)))
		}
	}

	if limit < len(records) {
		fmt.Fprintf(writer, "  ... and %d more\n", len(records)-limit)
	}
}

var classColors = map[models.MatchClass]Color{
	models.ClassFullMatch:    ColorFullMatch,
	models.ClassPartialMatch: ColorPartialMatch,
	models.ClassNoMatch:      ColorNoMatch,
	models.ClassExcluded:     ColorExcluded,
	models.ClassUnresolved:   ColorUnresolved,
}

var reportClasses = []models.MatchClass{
	models.ClassFullMatch,
	models.ClassPartialMatch,
	models.ClassNoMatch,
	models.ClassExcluded,
	models.ClassUnresolved,
}

var titleCaser = cases.Title(language.English)

// ClassLabel renders a class for people, e.g. "Partial Match".
func ClassLabel(class models.MatchClass) string {
	return titleCaser.String(strings.ReplaceAll(strings.ToLower(string(class)), "_", " "))
}

func truncate(s string, width int) string {
	if width <= 3 || len(s) <= width {
		return s
	}
	return s[:width-3] + "..."
}

// Helper methods

func (rg *ReportGenerator) selectRecords(records []*models.ReconciliationRecord) []*models.ReconciliationRecord {
	out := make([]*models.ReconciliationRecord, 0, len(records))
	for _, rec := range records {
		if !rg.config.IncludeFullMatches && rec.Class == models.ClassFullMatch && !rec.Stale && len(rec.Secondary.Mismatches()) == 0 {
			continue
		}
		if !rg.config.IncludeExcluded && rec.Class == models.ClassExcluded {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (rg *ReportGenerator) calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func (rg *ReportGenerator) filterResultForOutput(result *reconciler.DeploymentResult) map[string]interface{} {
	output := map[string]interface{}{
		"deployment":   result.Deployment,
		"summary":      result.Summary,
		"processed_at": result.ProcessedAt,
	}
	if result.RunID != "" {
		output["run_id"] = result.RunID
	}

	if rg.config.IncludeRecords {
		output["records"] = rg.selectRecords(result.Records)
	}

	if rg.config.IncludeWarnings {
		if len(result.Warnings) > 0 {
			output["warnings"] = result.Warnings
		}
		if result.RecordErrors != nil {
			output["record_errors"] = result.RecordErrors
		}
		if len(result.IndexConflicts) > 0 {
			output["index_conflicts"] = result.IndexConflicts
		}
	}

	return output
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}

	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
