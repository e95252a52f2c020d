package reporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fleet-reconciliation-service/internal/deployment"
	"fleet-reconciliation-service/internal/models"
	"fleet-reconciliation-service/internal/reconciler"
	"fleet-reconciliation-service/pkg/errors"
	"fleet-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

func sp(s string) *string { return &s }

func createTestRecords() []*models.ReconciliationRecord {
	full := models.NewReconciliationRecord(&models.VendorRecord{
		RowID:           "U12345678",
		AgreementNumber: sp("U12345678"),
		KeyNumber:       sp("42"),
		PlateState:      sp("CA"),
		PlateNumber:     sp("ABC1234"),
		Make:            sp("TOYT"),
		CostControl:     sp("DR155-22"),
		Provenance:      models.ProvenanceOpen,
	})
	full.Class = models.ClassFullMatch
	full.MatchedVehicleID = "100"
	for _, field := range models.KeyFields {
		full.Fields[field] = models.FieldResult{Annotation: models.AnnotationFound, VehicleID: "100"}
	}
	full.Secondary = models.SecondaryResult{
		models.AttrMake:     {Outcome: models.OutcomeMatch, Vendor: "TOYT", Tracker: "Toyota"},
		models.AttrColor:    {Outcome: models.OutcomeMismatch, Vendor: "BLK", Tracker: "White"},
		models.AttrModel:    {Outcome: models.OutcomeNoMapping, Vendor: "CAMRY", Tracker: "Camry Hybrid"},
		models.AttrLocation: {Outcome: models.OutcomeMatch},
	}

	partial := models.NewReconciliationRecord(&models.VendorRecord{
		RowID:      "U23456789",
		KeyNumber:  sp("777"),
		Provenance: models.ProvenanceOpen,
	})
	partial.Class = models.ClassPartialMatch
	partial.Stale = true
	partial.Fields[models.FieldAgreement] = models.FieldResult{Annotation: models.AnnotationMissing}
	partial.Fields[models.FieldReservation] = models.FieldResult{Annotation: models.AnnotationMissing}
	partial.Fields[models.FieldKey] = models.FieldResult{Annotation: models.AnnotationFound, VehicleID: "500", Stale: true}
	partial.Fields[models.FieldPlate] = models.FieldResult{Annotation: models.AnnotationMissing}

	elsewhere := models.NewReconciliationRecord(&models.VendorRecord{RowID: "U34567890", Provenance: models.ProvenanceOpenAll})
	elsewhere.Class = models.ClassNoMatch
	elsewhere.SubClass = models.SubClassPartialElsewhere

	excluded := models.NewReconciliationRecord(&models.VendorRecord{RowID: "U90000002", CostControl: sp("NONE"), Provenance: models.ProvenanceOpen})
	excluded.Class = models.ClassExcluded

	missing := models.NewReconciliationRecord(&models.VendorRecord{RowID: "missing:400", KeyNumber: sp("555"), Provenance: models.ProvenanceMissing})
	missing.Class = models.ClassPartialMatch
	missing.Fields[models.FieldKey] = models.FieldResult{Annotation: models.AnnotationFound, VehicleID: "400"}
	missing.Fields[models.FieldAgreement] = models.FieldResult{Annotation: models.AnnotationMissing}

	return []*models.ReconciliationRecord{full, partial, elsewhere, excluded, missing}
}

func createTestResult() *reconciler.DeploymentResult {
	records := createTestRecords()
	return &reconciler.DeploymentResult{
		RunID:      "run-1",
		Deployment: deployment.New("155", "22"),
		Records:    records,
		Summary: &reconciler.ResultSummary{
			TrackerRecords: 9,
			VendorOpenRows: 4,
			VendorAllRows:  5,
			Promoted:       1,
			Synthesized:    1,
			ByClass: map[models.MatchClass]int{
				models.ClassFullMatch:    1,
				models.ClassPartialMatch: 2,
				models.ClassNoMatch:      1,
				models.ClassExcluded:     1,
			},
			PartialElsewhere:    1,
			Stale:               1,
			SecondaryMismatches: 1,
			FullMatchRate:       decimal.RequireFromString("0.25"),
			ProcessingDuration:  150 * time.Millisecond,
		},
		Warnings: []*errors.ReconcilerError{
			errors.ReconciliationError(errors.CodeNoMatchingDeploymentRows, "155-22", nil),
		},
		ProcessedAt: time.Date(2024, 9, 10, 8, 0, 0, 0, time.UTC),
	}
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{
			name:        "default config",
			config:      nil,
			expectError: false,
		},
		{
			name:        "valid config",
			config:      DefaultReportConfig(),
			expectError: false,
		},
		{
			name: "invalid format",
			config: &ReportConfig{
				Format:        "invalid",
				TableMaxWidth: 120,
			},
			expectError: true,
		},
		{
			name: "table width too small",
			config: &ReportConfig{
				Format:        FormatConsole,
				TableMaxWidth: 30,
			},
			expectError: true,
		},
		{
			name: "negative max records",
			config: &ReportConfig{
				Format:        FormatCSV,
				TableMaxWidth: 120,
				MaxRecords:    -1,
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if generator == nil {
					t.Errorf("expected generator but got nil")
				}
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatCSV, true},
		{"invalid", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if tt.format.IsValid() != tt.valid {
				t.Errorf("expected IsValid() = %v for format %s", tt.valid, tt.format)
			}
		})
	}
}

func TestGenerateConsoleReport(t *testing.T) {
	config := DefaultReportConfig()
	config.UseColors = false
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(createTestResult(), &buf); err != nil {
		t.Fatalf("failed to generate console report: %v", err)
	}

	output := buf.String()
	expected := []string{
		"FLEET RECONCILIATION REPORT DR155-22 (Avis)",
		"Run: run-1",
		"=== SUMMARY ===",
		"Full Match Rate:      25.00%",
		"=== MATCH CLASSES ===",
		"Partial Match",
		"of which partial elsewhere: 1",
		"=== WARNINGS ===",
		"=== RECORDS ===",
		"U12345678 [OPEN] Full Match -> vehicle 100",
		"color mismatch: tracker has \"White\"",
		"model: no mapping for tracker value \"Camry Hybrid\"",
		"U23456789 [OPEN] Partial Match (stale)",
		"key: FOUND: vehicle 500 (vehicle 500 is released)",
		"No Match / Partial Elsewhere",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("console report missing %q\n%s", want, output)
		}
	}
}

func TestGenerateConsoleReport_MaxRecords(t *testing.T) {
	config := DefaultReportConfig()
	config.UseColors = false
	config.MaxRecords = 2
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(createTestResult(), &buf); err != nil {
		t.Fatalf("failed to generate console report: %v", err)
	}
	if !strings.Contains(buf.String(), "... and 3 more") {
		t.Errorf("expected truncation notice, got:\n%s", buf.String())
	}
}

func TestGenerateJSONReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	config.IncludeExcluded = false
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(createTestResult(), &buf); err != nil {
		t.Fatalf("failed to generate JSON report: %v", err)
	}

	var decoded struct {
		RunID   string `json:"run_id"`
		Summary struct {
			FullMatchRate string `json:"full_match_rate"`
			Promoted      int    `json:"promoted"`
		} `json:"summary"`
		Records []struct {
			Class  string `json:"class"`
			Vendor struct {
				RowID string `json:"row_id"`
			} `json:"vendor"`
		} `json:"records"`
		Warnings []json.RawMessage `json:"warnings"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if decoded.RunID != "run-1" {
		t.Errorf("expected run id run-1, got %q", decoded.RunID)
	}
	if decoded.Summary.FullMatchRate != "0.25" || decoded.Summary.Promoted != 1 {
		t.Errorf("unexpected summary: %+v", decoded.Summary)
	}
	if len(decoded.Records) != 4 {
		t.Fatalf("expected 4 records without the excluded one, got %d", len(decoded.Records))
	}
	for _, rec := range decoded.Records {
		if rec.Class == string(models.ClassExcluded) {
			t.Errorf("excluded record %s should have been filtered", rec.Vendor.RowID)
		}
	}
	if len(decoded.Warnings) != 1 {
		t.Errorf("expected 1 warning, got %d", len(decoded.Warnings))
	}
}

func TestGenerateCSVReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(createTestResult(), &buf); err != nil {
		t.Fatalf("failed to generate CSV report: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 6 {
		t.Fatalf("expected header + 5 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(RecordHeaders, ",") {
		t.Errorf("unexpected header: %v", rows[0])
	}

	full := rows[1]
	if full[0] != "155-22" || full[1] != "U12345678" || full[3] != "FULL_MATCH" {
		t.Errorf("unexpected full match row: %v", full)
	}
	if full[8] != "CA ABC1234" {
		t.Errorf("expected plate column, got %q", full[8])
	}
	if full[18] != "color" {
		t.Errorf("expected color mismatch, got %q", full[18])
	}
	if full[19] != ColorFullMatch.Hex() {
		t.Errorf("expected fill %s, got %s", ColorFullMatch.Hex(), full[19])
	}

	if rows[5][19] != ColorMissing.Hex() {
		t.Errorf("synthesized rows are blue whatever their class, got %s", rows[5][19])
	}
}

func TestGenerateRunReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	generator, _ := NewReportGenerator(config)

	run := &reconciler.RunResult{
		RunID:   "run-1",
		Results: []*reconciler.DeploymentResult{createTestResult()},
		Failures: []reconciler.DeploymentFailure{
			{DeploymentID: "204-22", Message: "missing tracker snapshot"},
		},
	}

	var buf bytes.Buffer
	if err := generator.GenerateRunReport(run, &buf); err != nil {
		t.Fatalf("failed to generate run report: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"run_id", "deployments", "failures"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("run report missing %q", key)
		}
	}

	config.Format = FormatConsole
	config.UseColors = false
	buf.Reset()
	if err := generator.GenerateRunReport(run, &buf); err != nil {
		t.Fatalf("failed to generate console run report: %v", err)
	}
	if !strings.Contains(buf.String(), "204-22: missing tracker snapshot") {
		t.Errorf("console run report should list failures:\n%s", buf.String())
	}
}

func TestGenerateReport_NilResult(t *testing.T) {
	generator, _ := NewReportGenerator(nil)
	if err := generator.GenerateReport(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil result")
	}
}

func TestClassLabel(t *testing.T) {
	tests := map[models.MatchClass]string{
		models.ClassFullMatch:    "Full Match",
		models.ClassPartialMatch: "Partial Match",
		models.ClassNoMatch:      "No Match",
		models.ClassExcluded:     "Excluded",
	}
	for class, want := range tests {
		if got := ClassLabel(class); got != want {
			t.Errorf("ClassLabel(%s) = %q, want %q", class, got, want)
		}
	}
}

func TestSafeReportGenerator(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	generator, err := NewSafeReportGenerator(config, logger.Discard())
	if err != nil {
		t.Fatalf("failed to create safe generator: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReportSafely(createTestResult(), &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected output")
	}

	if err := generator.GenerateRunReportSafely(nil, &buf); !errors.HasCode(err, errors.CodeMissingField) {
		t.Errorf("expected missing field error, got %v", err)
	}

	broken := createTestResult()
	broken.Summary = nil
	if err := generator.GenerateReportSafely(broken, &buf); !errors.HasCode(err, errors.CodeMissingField) {
		t.Errorf("expected missing summary error, got %v", err)
	}

	if _, err := NewSafeReportGenerator(&ReportConfig{Format: "xml", TableMaxWidth: 120}, logger.Discard()); !errors.HasCode(err, errors.CodeInvalidConfig) {
		t.Errorf("expected invalid config error, got %v", err)
	}
}

func TestGenerateBackupPath(t *testing.T) {
	got := generateBackupPath(filepath.Join("out", "report.csv"))
	if got != filepath.Join("out", "report_backup.csv") {
		t.Errorf("unexpected backup path %s", got)
	}
}

func TestFileSink(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	generator, _ := NewSafeReportGenerator(config, logger.Discard())

	dir := filepath.Join(t.TempDir(), "reports")
	sink := NewFileSink(generator, dir)
	result := createTestResult()

	if err := sink.Write(context.Background(), result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "155-22.json"))
	if err != nil {
		t.Fatalf("report file not written: %v", err)
	}
	if !json.Valid(data) {
		t.Errorf("report file is not valid JSON")
	}
}
