package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"fleet-reconciliation-service/internal/reconciler"
	"fleet-reconciliation-service/pkg/errors"
	"fleet-reconciliation-service/pkg/logger"
)

// SafeReportGenerator renders reconciliation runs with input checks and
// fallbacks for unwritable files and failing JSON/CSV rendering.
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator validates config and builds a SafeReportGenerator.
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "report_config", config, err).
			WithSuggestion("Use --format console, json or csv and a positive table width")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          logger.OrGlobal(log).WithComponent("reporter"),
	}, nil
}

// GenerateRunReportSafely renders every deployment of run to writer.
func (srg *SafeReportGenerator) GenerateRunReportSafely(run *reconciler.RunResult, writer io.Writer) error {
	if run == nil {
		return errors.ValidationError(errors.CodeMissingField, "run", nil, nil).
			WithSuggestion("Reconcile at least one deployment before rendering a report")
	}
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("Pass --output or let the report go to stdout")
	}

	log := srg.logger.WithFields(logger.Fields{
		"run_id":      run.RunID,
		"deployments": len(run.Results),
		"format":      srg.config.Format,
		"destination": describeWriter(writer),
	})

	for _, result := range run.Results {
		if err := srg.ValidateResult(result); err != nil {
			log.WithError(err).Error("Refusing to render incomplete deployment result")
			return err
		}
	}

	log.Debug("Rendering reconciliation report")
	if err := srg.render(run, writer, log); err != nil {
		log.WithError(err).Error("Reconciliation report not rendered")
		return err
	}
	log.Info("Reconciliation report rendered")
	return nil
}

// GenerateReportSafely renders a single deployment as a one-deployment run.
func (srg *SafeReportGenerator) GenerateReportSafely(result *reconciler.DeploymentResult, writer io.Writer) error {
	if result == nil {
		return errors.ValidationError(errors.CodeMissingField, "result", nil, nil).
			WithSuggestion("Reconcile the deployment before rendering it")
	}
	return srg.GenerateRunReportSafely(&reconciler.RunResult{
		RunID:     result.RunID,
		StartedAt: result.ProcessedAt,
		Results:   []*reconciler.DeploymentResult{result},
	}, writer)
}

// ValidateResult reports whether result carries the deployment header and
// summary every report format renders.
func (srg *SafeReportGenerator) ValidateResult(result *reconciler.DeploymentResult) error {
	switch {
	case result == nil:
		return errors.ValidationError(errors.CodeMissingField, "result", nil, nil)
	case result.Deployment == nil:
		return errors.ValidationError(errors.CodeMissingField, "deployment", result.RunID, nil).
			WithSuggestion("Check that the deployment code resolved to a configured deployment")
	case result.Summary == nil:
		return errors.ValidationError(errors.CodeMissingField, "summary", result.Deployment.ID(), nil).
			WithSuggestion("Summaries are computed by the reconciler; rerun the deployment")
	}
	return nil
}

// render tries the configured rendering first, then a backup file when the
// destination file is the problem, then plain console output.
func (srg *SafeReportGenerator) render(run *reconciler.RunResult, writer io.Writer, log logger.Logger) error {
	primaryErr := srg.GenerateRunReport(run, writer)
	if primaryErr == nil {
		return nil
	}

	if file, ok := writer.(*os.File); ok && file.Name() != "" && isFileError(primaryErr) {
		log.WithError(primaryErr).Warn("Report destination unwritable, writing backup file")
		return srg.renderToBackup(run, file.Name(), primaryErr, log)
	}

	if srg.config.Format == FormatConsole {
		return srg.wrapGenerationError(primaryErr)
	}

	log.WithError(primaryErr).Warnf("Rendering %s failed, falling back to console", srg.config.Format)
	return srg.renderAsConsole(run, writer, primaryErr)
}

func (srg *SafeReportGenerator) renderAsConsole(run *reconciler.RunResult, writer io.Writer, primaryErr error) error {
	plain := *srg.config
	plain.Format = FormatConsole
	plain.UseColors = false

	console, err := NewReportGenerator(&plain)
	if err != nil {
		return srg.wrapGenerationError(primaryErr)
	}

	fmt.Fprintf(writer, "# %s rendering failed (%v); console report follows\n\n", srg.config.Format, primaryErr)
	if err := console.GenerateRunReport(run, writer); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "report_console_fallback",
			fmt.Errorf("%s: %v; console: %v", srg.config.Format, primaryErr, err))
	}
	return nil
}

func (srg *SafeReportGenerator) renderToBackup(run *reconciler.RunResult, path string, primaryErr error, log logger.Logger) error {
	backupPath := generateBackupPath(path)

	backup, err := os.Create(backupPath)
	if err != nil {
		return srg.wrapGenerationError(primaryErr)
	}
	defer backup.Close()

	if err := srg.GenerateRunReport(run, backup); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "report_backup_file",
			fmt.Errorf("%s: %v; %s: %v", path, primaryErr, backupPath, err))
	}

	log.WithField("backup_file", backupPath).Warn("Reconciliation report saved to backup file")
	return nil
}

func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}
	return errors.InternalError(errors.CodeUnexpectedError, "report_generation", err).
		WithSuggestion("Check --output and --format")
}

var fileErrorFragments = []string{"no space left", "disk full", "file already closed", "bad file descriptor"}

func isFileError(err error) bool {
	if err == nil {
		return false
	}
	if os.IsPermission(err) || os.IsNotExist(err) || os.IsExist(err) {
		return true
	}
	msg := err.Error()
	for _, fragment := range fileErrorFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// generateBackupPath turns out/report.csv into out/report_backup.csv.
func generateBackupPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_backup" + ext
}

func describeWriter(writer io.Writer) string {
	if file, ok := writer.(*os.File); ok {
		if file.Name() == "" {
			return "file"
		}
		return "file:" + file.Name()
	}
	return fmt.Sprintf("%T", writer)
}
