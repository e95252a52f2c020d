package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"fleet-reconciliation-service/cmd/reconciler/config"
	"fleet-reconciliation-service/internal/parsers"
	"fleet-reconciliation-service/internal/reconciler"
	"fleet-reconciliation-service/internal/reporter"
	"fleet-reconciliation-service/pkg/errors"
	"fleet-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	deploymentIDs  []string
	dataDir        string
	trackerFile    string
	vendorOpenFile string
	vendorAllFile  string
	agenciesFile   string
	rosterFile     string
	outputFormat   string
	outputFile     string
	outputDir      string
	maxRecords     int
	showProgress   bool
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile tracker vehicles with the vendor's rental export",
	Long: `Reconcile matches every open rental row of the vendor's export against the
fleet tracker on agreement, reservation, key (MVA) and plate, and classifies
it as a full, partial or no match. Rows the vendor lists only in its
all-records export are promoted, and active tracker vehicles the vendor does
not list at all are added as missing rows.

Files for a single deployment can be passed with the file flags. For several
deployments, --data-dir holds one directory per deployment ID containing
vehicles.json, vendor_open.csv and optionally vendor_all.csv, agencies.json
and roster.csv.

Examples:
  # One deployment from explicit files
  reconciler reconcile --deployments 155-22 \
    --tracker-file vehicles.json --vendor-open-file open.csv --vendor-all-file all.csv

  # Every configured deployment from a data directory, as JSON
  reconciler reconcile --data-dir ./exports --output-format json --output-file report.json

  # One CSV file per deployment, also pushed to Google Sheets
  reconciler reconcile --data-dir ./exports --output-format csv --output-dir ./reports \
    --spreadsheet-id 1AbC... --sheets-service-account key.json

  # With a progress bar
  reconciler reconcile --data-dir ./exports --progress`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Input flags
	reconcileCmd.Flags().StringSliceVarP(&deploymentIDs, "deployments", "d", []string{}, "comma-separated deployment IDs, e.g. 155-22 (default: all configured)")
	reconcileCmd.Flags().StringVar(&dataDir, "data-dir", "", "directory with one sub-directory of exports per deployment")
	reconcileCmd.Flags().StringVarP(&trackerFile, "tracker-file", "t", "", "path to the tracker vehicles JSON file")
	reconcileCmd.Flags().StringVar(&vendorOpenFile, "vendor-open-file", "", "path to the vendor's open rentals CSV file")
	reconcileCmd.Flags().StringVar(&vendorAllFile, "vendor-all-file", "", "path to the vendor's all-records CSV file (optional)")
	reconcileCmd.Flags().StringVar(&agenciesFile, "agencies-file", "", "path to the agency directory JSON file (optional)")
	reconcileCmd.Flags().StringVar(&rosterFile, "roster-file", "", "path to the staffing roster CSV file (optional)")

	// Output flags
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	reconcileCmd.Flags().StringVar(&outputDir, "output-dir", "", "also write one report file per deployment into this directory")
	reconcileCmd.Flags().IntVar(&maxRecords, "max-records", 0, "maximum records listed per deployment (0: all)")

	// Matching flags
	reconcileCmd.Flags().String("vendor", "", "vendor name tracker records must carry (default: Avis)")
	reconcileCmd.Flags().Bool("no-filter", false, "keep vendor rows of every deployment")
	reconcileCmd.Flags().Bool("strict-location", false, "require exact pickup location equality")
	reconcileCmd.Flags().String("translations", "", "YAML file overriding the make/model/color tables")
	reconcileCmd.Flags().Bool("stop-on-error", false, "stop at the first failed deployment")

	// Google Sheets flags
	reconcileCmd.Flags().String("spreadsheet-id", "", "Google Sheets spreadsheet to write one tab per deployment into")
	reconcileCmd.Flags().String("sheets-service-account", "", "service account JSON key for Google Sheets")
	reconcileCmd.Flags().String("sheet-prefix", "", "prefix of the per-deployment tab names (default: DR)")
	reconcileCmd.Flags().Bool("sheets-without-notes", false, "do not attach cell notes")

	// UI flags
	reconcileCmd.Flags().BoolVar(&showProgress, "progress", false, "show a progress bar")

	// Bind flags to viper
	for _, name := range []string{
		"deployments", "data-dir", "tracker-file", "vendor-open-file", "vendor-all-file",
		"agencies-file", "roster-file", "output-format", "output-file", "output-dir",
		"max-records", "vendor", "no-filter", "strict-location", "translations",
		"stop-on-error", "spreadsheet-id", "sheets-service-account", "sheet-prefix",
		"sheets-without-notes", "progress",
	} {
		viper.BindPFlag(name, reconcileCmd.Flags().Lookup(name))
	}
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	deploymentIDs = viper.GetStringSlice("deployments")
	dataDir = viper.GetString("data-dir")
	trackerFile = viper.GetString("tracker-file")
	vendorOpenFile = viper.GetString("vendor-open-file")
	vendorAllFile = viper.GetString("vendor-all-file")
	agenciesFile = viper.GetString("agencies-file")
	rosterFile = viper.GetString("roster-file")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	outputDir = viper.GetString("output-dir")
	maxRecords = viper.GetInt("max-records")
	showProgress = viper.GetBool("progress")

	// Validate the input source
	explicit := trackerFile != "" || vendorOpenFile != ""
	if explicit {
		if trackerFile == "" {
			return fmt.Errorf("tracker-file is required with vendor-open-file")
		}
		if vendorOpenFile == "" {
			return fmt.Errorf("vendor-open-file is required with tracker-file")
		}
		if len(deploymentIDs) != 1 {
			return fmt.Errorf("file flags need exactly one deployment in --deployments")
		}
		for description, path := range map[string]string{
			"tracker file":            trackerFile,
			"vendor open file":        vendorOpenFile,
			"vendor all-records file": vendorAllFile,
			"agencies file":           agenciesFile,
			"roster file":             rosterFile,
		} {
			if path == "" {
				continue
			}
			if err := validateFileExists(path, description); err != nil {
				return err
			}
		}
	} else {
		if dataDir == "" {
			return fmt.Errorf("either data-dir or tracker-file and vendor-open-file are required")
		}
		if info, err := os.Stat(dataDir); err != nil || !info.IsDir() {
			return fmt.Errorf("data directory does not exist: %s", dataDir)
		}
	}

	// Validate output format
	validFormats := map[string]bool{"console": true, "json": true, "csv": true}
	if !validFormats[outputFormat] {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", outputFormat)
	}

	if maxRecords < 0 {
		return fmt.Errorf("max-records cannot be negative")
	}

	// Validate output file directory exists if specified
	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}

	// Check if file is readable
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("%s is not readable: %w", description, err)
	}
	file.Close()

	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	log := logger.GetGlobalLogger().WithComponent("cli")

	registry, err := config.LoadRegistry(viper.GetString("registry"))
	if err != nil {
		return err
	}
	deployments, err := registry.Select(deploymentIDs)
	if err != nil {
		return err
	}

	requests, err := config.CreateRequests(deployments, dataDir, parsers.SnapshotFiles{
		Tracker:    trackerFile,
		VendorOpen: vendorOpenFile,
		VendorAll:  vendorAllFile,
		Agencies:   agenciesFile,
		Roster:     rosterFile,
	})
	if err != nil {
		return err
	}

	// Create configurations
	matchingConfig := config.CreateMatchingConfig(
		viper.GetString("vendor"),
		viper.GetBool("strict-location"),
		viper.GetString("translations"),
	)
	reconcilerConfig := config.CreateReconcilerConfig(
		!viper.GetBool("no-filter"),
		viper.GetBool("stop-on-error"),
		0,
	)
	reportConfig := config.CreateReportConfig(outputFormat, maxRecords)
	if outputFile != "" {
		reportConfig.UseColors = false
	}
	if err := config.ValidateConfig(matchingConfig, reconcilerConfig, reportConfig); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "reconcile", "", err)
	}

	log.WithFields(logger.Fields{
		"deployments": len(requests),
		"format":      outputFormat,
		"output":      outputFile,
	}).Debug("Starting reconciliation")

	service, err := reconciler.NewReconciliationService(matchingConfig, reconcilerConfig, logger.GetGlobalLogger())
	if err != nil {
		return err
	}
	orchestrator, err := reconciler.NewReconciliationOrchestrator(service, logger.GetGlobalLogger())
	if err != nil {
		return err
	}
	if showProgress {
		orchestrator.WithProgressBar(os.Stderr)
	}

	run, err := orchestrator.Run(ctx, requests)
	if err != nil {
		return err
	}

	reportGenerator, err := reporter.NewSafeReportGenerator(reportConfig, logger.GetGlobalLogger())
	if err != nil {
		return err
	}

	// Determine output destination
	var output io.Writer = cmd.OutOrStdout()
	if outputFile != "" {
		file, err := os.Create(outputFile)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, outputFile, err)
		}
		defer file.Close()
		output = file
	}

	if err := reportGenerator.GenerateRunReportSafely(run, output); err != nil {
		return err
	}

	sink, err := createSink(ctx, reportConfig, log)
	if err != nil {
		return err
	}
	if sink != nil {
		for _, result := range run.Results {
			if err := sink.Write(ctx, result); err != nil {
				return err
			}
		}
	}

	// Show completion message
	if viper.GetBool("verbose") {
		fmt.Fprintf(cmd.ErrOrStderr(), "\nReconciliation run %s completed in %v.\n", run.RunID, run.Duration)
		for _, result := range run.Results {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %d rows, full match rate %s%%\n",
				result.Deployment, len(result.Records), result.Summary.FullMatchRate.Shift(2).StringFixed(1))
		}
	}

	if run.HasFailures() {
		return run.FirstError()
	}
	return nil
}

// commandContext returns the command's context, which is nil when the
// command did not go through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// createSink returns the per-deployment report sink: Google Sheets backed
// by report files when a spreadsheet is configured, report files alone when
// only --output-dir is set, or nil.
func createSink(ctx context.Context, reportConfig *reporter.ReportConfig, log logger.Logger) (reporter.Sink, error) {
	sheetsConfig := config.CreateSheetsConfig(config.SheetsSettings{
		SpreadsheetID:  viper.GetString("spreadsheet-id"),
		ServiceAccount: viper.GetString("sheets-service-account"),
		ClientID:       viper.GetString("sheets-client-id"),
		ClientSecret:   viper.GetString("sheets-client-secret"),
		RefreshToken:   viper.GetString("sheets-refresh-token"),
		SheetPrefix:    viper.GetString("sheet-prefix"),
		WithoutNotes:   viper.GetBool("sheets-without-notes"),
	})

	var fileSink reporter.Sink
	if outputDir != "" || sheetsConfig.Enabled() {
		dir := outputDir
		if dir == "" {
			dir = "reports"
		}
		fileConfig := *reportConfig
		fileConfig.UseColors = false
		generator, err := reporter.NewSafeReportGenerator(&fileConfig, logger.GetGlobalLogger())
		if err != nil {
			return nil, err
		}
		fileSink = reporter.NewFileSink(generator, dir)
	}

	if !sheetsConfig.Enabled() {
		return fileSink, nil
	}

	writer, err := reporter.NewSheetsWriter(ctx, sheetsConfig, logger.GetGlobalLogger())
	if err != nil {
		log.WithError(err).Warn("Google Sheets unavailable, writing report files only")
		return fileSink, nil
	}
	return reporter.NewFallbackSink(writer, fileSink, logger.GetGlobalLogger()), nil
}
