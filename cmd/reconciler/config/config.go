package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fleet-reconciliation-service/internal/deployment"
	"fleet-reconciliation-service/internal/matcher"
	"fleet-reconciliation-service/internal/parsers"
	"fleet-reconciliation-service/internal/reconciler"
	"fleet-reconciliation-service/internal/reporter"
	"fleet-reconciliation-service/pkg/errors"
	"fleet-reconciliation-service/pkg/logger"
)

// File names looked up in a deployment's data directory.
const (
	TrackerFileName    = "vehicles.json"
	VendorOpenFileName = "vendor_open.csv"
	VendorAllFileName  = "vendor_all.csv"
	AgenciesFileName   = "agencies.json"
	RosterFileName     = "roster.csv"
)

// CreateLoggerConfig creates the logger configuration for a CLI run.
// --verbose selects the debug preset and --log-file the production preset
// (JSON to a file); explicit level and format flags are applied on top.
func CreateLoggerConfig(verbose bool, level, format, logFile string) *logger.Config {
	var config *logger.Config
	switch {
	case verbose:
		config = logger.DebugConfig()
	case logFile != "":
		config = logger.ProductionConfig()
	default:
		config = logger.DefaultConfig()
	}

	if logFile != "" {
		config.Output = logger.FileOutput
		config.File = logFile
	}
	if level != "" && !verbose {
		config.Level = logger.Level(strings.ToLower(level))
	}
	if format != "" {
		config.Format = logger.Format(strings.ToLower(format))
	}

	return config
}

// CreateMatchingConfig creates a matching configuration
func CreateMatchingConfig(vendor string, strictLocation bool, translationsFile string) *matcher.MatchingConfig {
	config := matcher.DefaultMatchingConfig()
	if strictLocation {
		config = matcher.StrictMatchingConfig()
	}

	// Apply CLI overrides
	if vendor != "" {
		config.VendorName = vendor
	}
	config.TranslationsFile = translationsFile

	return config
}

// CreateReconcilerConfig creates a reconciler configuration
func CreateReconcilerConfig(filterByDeployment, stopOnError bool, maxRecordErrors int) *reconciler.Config {
	config := reconciler.DefaultConfig()

	// Apply CLI overrides
	config.FilterByDeployment = filterByDeployment
	config.StopOnError = stopOnError
	if maxRecordErrors > 0 {
		config.MaxRecordErrors = maxRecordErrors
	}

	return config
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string, maxRecords int) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()
	config.MaxRecords = maxRecords

	// Set output format
	switch format {
	case "console":
		config.Format = reporter.FormatConsole
		config.UseColors = true
		config.IncludeFullMatches = true
		config.IncludeExcluded = true
	case "json":
		config.Format = reporter.FormatJSON
		config.IncludeFullMatches = true
		config.IncludeExcluded = false // excluded rows are noise for a deployment
	case "csv":
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
		config.IncludeFullMatches = true
		config.IncludeExcluded = true
		config.IncludeWarnings = false
	default:
		config.Format = reporter.OutputFormat(format)
	}

	return config
}

// SheetsSettings are the raw Google Sheets settings read from flags,
// config file and environment.
type SheetsSettings struct {
	SpreadsheetID  string
	ServiceAccount string
	ClientID       string
	ClientSecret   string
	RefreshToken   string
	SheetPrefix    string
	WithoutNotes   bool
}

// CreateSheetsConfig creates the Sheets sink configuration. It returns nil
// when no spreadsheet is configured.
func CreateSheetsConfig(settings SheetsSettings) *reporter.SheetsConfig {
	if strings.TrimSpace(settings.SpreadsheetID) == "" {
		return nil
	}

	config := reporter.DefaultSheetsConfig()
	config.SpreadsheetID = strings.TrimSpace(settings.SpreadsheetID)
	config.ServiceAccountPath = settings.ServiceAccount
	config.ClientID = settings.ClientID
	config.ClientSecret = settings.ClientSecret
	config.RefreshToken = settings.RefreshToken
	config.WriteNotes = !settings.WithoutNotes
	if settings.SheetPrefix != "" {
		config.SheetPrefix = settings.SheetPrefix
	}

	return config
}

// LoadRegistry loads the deployments from path, or the built-in ones when
// path is empty.
func LoadRegistry(path string) (*deployment.Registry, error) {
	if path == "" {
		return deployment.DefaultRegistry()
	}
	return deployment.LoadRegistry(path)
}

// SnapshotFilesFor returns the snapshot files of a deployment laid out as
// "<dataDir>/<deployment id>/<file>". The optional files are only named
// when they exist.
func SnapshotFilesFor(dataDir string, d *deployment.Deployment) parsers.SnapshotFiles {
	dir := filepath.Join(dataDir, d.ID())

	files := parsers.SnapshotFiles{
		Tracker:    filepath.Join(dir, TrackerFileName),
		VendorOpen: filepath.Join(dir, VendorOpenFileName),
	}
	if path := filepath.Join(dir, VendorAllFileName); fileExists(path) {
		files.VendorAll = path
	}
	if path := filepath.Join(dir, AgenciesFileName); fileExists(path) {
		files.Agencies = path
	}
	if path := filepath.Join(dir, RosterFileName); fileExists(path) {
		files.Roster = path
	}

	return files
}

// CreateRequests builds one request per deployment. Explicit files apply
// to a single deployment only; otherwise each deployment's files are
// looked up in dataDir.
func CreateRequests(deployments []*deployment.Deployment, dataDir string, explicit parsers.SnapshotFiles) ([]*reconciler.ReconciliationRequest, error) {
	if len(deployments) == 0 {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "deployments", "", nil).
			WithSuggestion("Select a deployment with --deployments or add one to the registry")
	}

	hasExplicit := explicit.Tracker != "" || explicit.VendorOpen != ""
	if hasExplicit && len(deployments) != 1 {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"deployments",
			len(deployments),
			fmt.Errorf("file flags apply to exactly one deployment, got %d", len(deployments)),
		).WithSuggestion("Pass a single --deployments value or use --data-dir")
	}
	if !hasExplicit && dataDir == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "data-dir", "", nil).
			WithSuggestion("Pass --data-dir or the --tracker-file and --vendor-open-file flags")
	}

	requests := make([]*reconciler.ReconciliationRequest, 0, len(deployments))
	for _, d := range deployments {
		files := explicit
		if !hasExplicit {
			files = SnapshotFilesFor(dataDir, d)
		}
		requests = append(requests, &reconciler.ReconciliationRequest{
			Deployment: d,
			Files:      files,
		})
	}

	return requests, nil
}

// ValidateConfig validates that all required configurations are valid
func ValidateConfig(matchingConfig *matcher.MatchingConfig, reconcilerConfig *reconciler.Config, reportConfig *reporter.ReportConfig) error {
	// Validate matching config
	if err := matchingConfig.Validate(); err != nil {
		return fmt.Errorf("invalid matching config: %w", err)
	}

	// Validate reconciler config
	if err := reconcilerConfig.Validate(); err != nil {
		return fmt.Errorf("invalid reconciler config: %w", err)
	}

	// Validate report config
	if err := reportConfig.Validate(); err != nil {
		return fmt.Errorf("invalid report config: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
