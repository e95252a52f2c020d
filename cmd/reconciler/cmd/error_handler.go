package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"

	"fleet-reconciliation-service/pkg/errors"
	"fleet-reconciliation-service/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	out     io.Writer
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		out:     os.Stderr,
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError prints err and returns the process exit code.
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}
	h.logger.WithError(err).Debug("Command failed")

	reconcilerErr, ok := errors.AsReconcilerError(err)
	if !ok {
		return h.handleGenericError(err)
	}

	fmt.Fprintf(h.out, "Error: %s\n", reconcilerErr.Message)
	if len(reconcilerErr.Context) > 0 {
		keys := make([]string, 0, len(reconcilerErr.Context))
		for key := range reconcilerErr.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintln(h.out, "\nContext:")
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, reconcilerErr.Context[key])
		}
	}
	if reconcilerErr.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", reconcilerErr.Suggestion)
	}
	fmt.Fprintf(h.out, "\n%s\n", h.getCategoryHelp(reconcilerErr.Category))

	if h.verbose && reconcilerErr.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", reconcilerErr.Cause)
	}
	return reconcilerErr.GetExitCode()
}

// systemErrors maps common OS failures that reach the CLI unwrapped to a
// short message. Each one exits with the file error code.
var systemErrors = []struct {
	match      func(error) bool
	message    string
	suggestion string
}{
	{isNotExist, "File not found", "Check the --tracker, --vendor and --data-dir paths"},
	{isPermission, "Permission denied", "The reconciler needs read access to exports and write access to --output-dir"},
	{isDiskFull, "Insufficient disk space", "Free space in --output-dir or write the report to stdout"},
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	for _, known := range systemErrors {
		if known.match(err) {
			fmt.Fprintf(h.out, "Error: %s\nSuggestion: %s\n", known.message, known.suggestion)
			return 2
		}
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	if !h.verbose {
		fmt.Fprintln(h.out, "\nRun with --verbose for more details")
	}
	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check that the export files exist and are readable
• With --data-dir, each deployment needs its own <id>/ sub-directory
• Use absolute paths if the command runs from another directory`

	case errors.CategoryParse:
		return `Parse error help:
• Re-export the file from the tracker or the vendor portal
• Vendor exports must be UTF-8 CSV with a header row
• The tracker export must be the JSON vehicle list`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that every row carries the required identifiers
• Dates must be in one of the vendor's export formats`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and the --config file
• Use 'reconciler deployments' to list the known deployment IDs
• Use 'reconciler reconcile --help' to see all available options`

	case errors.CategoryReconciliation:
		return `Reconciliation error help:
• A deployment needs a tracker snapshot before it can be reconciled
• Check that the vendor export belongs to the selected deployment`

	case errors.CategoryNetwork:
		return `Network error help:
• Check the Google Sheets credentials and spreadsheet ID
• Share the spreadsheet with the service account's e-mail address
• Reports are still written to --output-dir when Sheets is unavailable`

	default:
		return `For more help:
• Use 'reconciler --help' for general help
• Use 'reconciler reconcile --help' for command-specific help`
	}
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory")
}

func isPermission(err error) bool {
	msg := err.Error()
	return os.IsPermission(err) || strings.Contains(msg, "permission denied") || strings.Contains(msg, "access denied")
}

func isDiskFull(err error) bool {
	if stderrors.Is(err, syscall.ENOSPC) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no space left") || strings.Contains(msg, "disk full")
}
