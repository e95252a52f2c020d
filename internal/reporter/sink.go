package reporter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"fleet-reconciliation-service/internal/reconciler"
	"fleet-reconciliation-service/pkg/errors"
	"fleet-reconciliation-service/pkg/logger"
)

// Sink receives the result of each reconciled deployment.
type Sink interface {
	Write(ctx context.Context, result *reconciler.DeploymentResult) error
	Name() string
}

// FileSink writes one report file per deployment into a directory.
type FileSink struct {
	generator *SafeReportGenerator
	dir       string
}

// NewFileSink creates a sink writing "<deployment id>.<format>" files in dir.
func NewFileSink(generator *SafeReportGenerator, dir string) *FileSink {
	return &FileSink{generator: generator, dir: dir}
}

// Name identifies the sink in logs.
func (s *FileSink) Name() string {
	return "file:" + s.dir
}

// Path returns the file a deployment result is written to.
func (s *FileSink) Path(result *reconciler.DeploymentResult) string {
	ext := string(s.generator.config.Format)
	if s.generator.config.Format == FormatConsole {
		ext = "txt"
	}
	return filepath.Join(s.dir, fmt.Sprintf("%s.%s", result.Deployment.ID(), ext))
}

// Write renders result into its file.
func (s *FileSink) Write(_ context.Context, result *reconciler.DeploymentResult) error {
	if result == nil || result.Deployment == nil {
		return errors.ValidationError(errors.CodeMissingField, "result", nil, nil)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.FileError(errors.CodeDirectoryError, s.dir, err)
	}

	path := s.Path(result)
	file, err := os.Create(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	defer file.Close()

	return s.generator.GenerateReportSafely(result, file)
}

// FallbackSink writes to a primary sink and, when that fails, to a
// fallback one, typically Google Sheets backed by a local file.
type FallbackSink struct {
	primary  Sink
	fallback Sink
	logger   logger.Logger
}

// NewFallbackSink creates a sink that falls back from primary to fallback.
func NewFallbackSink(primary, fallback Sink, log logger.Logger) *FallbackSink {
	return &FallbackSink{
		primary:  primary,
		fallback: fallback,
		logger:   logger.OrGlobal(log).WithComponent("report_sink"),
	}
}

// Name identifies the sink in logs.
func (s *FallbackSink) Name() string {
	return s.primary.Name() + "|" + s.fallback.Name()
}

// Write tries the primary sink first.
func (s *FallbackSink) Write(ctx context.Context, result *reconciler.DeploymentResult) error {
	err := s.primary.Write(ctx, result)
	if err == nil {
		return nil
	}

	s.logger.WithError(err).WithFields(logger.Fields{
		"primary":  s.primary.Name(),
		"fallback": s.fallback.Name(),
	}).Warn("Report sink failed, using fallback")

	if fallbackErr := s.fallback.Write(ctx, result); fallbackErr != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_sink_fallback",
			fmt.Errorf("primary=%v, fallback=%v", err, fallbackErr),
		)
	}
	return nil
}
