// Package parsers is the boundary between exported snapshot files and the
// typed records the reconciliation engine works on.
//
// Column names are mapped to record fields here, once. Nothing past this
// package looks at a header name or a raw JSON key.
//
// Parser Types:
//   - TrackerParser: the tracker's vehicle list (JSON array of
//     {"Status": ..., "Vehicle": {...}} objects)
//   - VendorParser: the vendor's "open" and "all" rental exports (CSV)
//   - ParseAgencies: the tracker's pickup-agency directory (JSON object)
//   - RosterParser: the staffing roster used for vehicle ratios (CSV)
//   - SnapshotLoader: loads all of the above for one deployment concurrently
//
// Example usage:
//
//	loader, _ := NewSnapshotLoader(DefaultSnapshotConfig(), nil, log)
//	snap, err := loader.Load(ctx, SnapshotFiles{Tracker: "vehicles.json", VendorOpen: "open.csv", VendorAll: "all.csv"})
//
// Field values that fail to parse (dates, mostly) are logged as malformed
// input and left unset; they never fail the file.
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"fleet-reconciliation-service/pkg/errors"
	"fleet-reconciliation-service/pkg/logger"
)

// ParseError represents an error that occurred while parsing one row
type ParseError struct {
	File    string
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	where := fmt.Sprintf("line %d", e.Line)
	if e.File != "" {
		where = fmt.Sprintf("%s:%d", e.File, e.Line)
	}
	if e.Field != "" {
		where = fmt.Sprintf("%s (%s=%q)", where, e.Field, e.Value)
	}
	if e.Err != nil {
		return fmt.Sprintf("parse error at %s: %s: %v", where, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error at %s: %s", where, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int
	ValidateEncoding bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     64 * 1024,
		ValidateEncoding: true,
	}
}

// Validate checks the configuration
func (c *ParseConfig) Validate() error {
	if c.Delimiter == 0 || c.Delimiter == '\n' || c.Delimiter == '\r' || c.Delimiter == '"' {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "parser.delimiter", string(c.Delimiter), nil)
	}
	if c.MaxFieldSize < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "parser.max_field_size", c.MaxFieldSize, nil)
	}
	return nil
}

// BaseParser provides common file handling for all parsers
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig, log logger.Logger, component string) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	return &BaseParser{
		config: config,
		logger: logger.OrGlobal(log).WithComponent(component),
	}
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	File       string
	LineNumber int
	Headers    []string
	HeaderMap  map[string]int
	ctx        context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context, file string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		File:      file,
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

// IsCancelled checks if the parsing context has been cancelled
func (pc *ParseContext) IsCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// Err returns a ParseError located at the current line.
func (pc *ParseContext) Err(field, value, message string, err error) *ParseError {
	return &ParseError{
		File:    pc.File,
		Line:    pc.LineNumber,
		Field:   field,
		Value:   value,
		Message: message,
		Err:     err,
	}
}

// GetColumnIndex returns the index of a column by name, or -1 if not found
func (pc *ParseContext) GetColumnIndex(name string) int {
	if index, exists := pc.HeaderMap[name]; exists {
		return index
	}

	lowerName := strings.ToLower(strings.TrimSpace(name))
	for header, index := range pc.HeaderMap {
		if strings.ToLower(header) == lowerName {
			return index
		}
	}

	return -1
}

// FindColumn returns the index of the first alias present in the headers.
func (pc *ParseContext) FindColumn(aliases []string) int {
	for _, alias := range aliases {
		if index := pc.GetColumnIndex(alias); index != -1 {
			return index
		}
	}
	return -1
}

// OpenFile opens a file, checking its encoding when configured.
func (bp *BaseParser) OpenFile(filePath string) (*os.File, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening file")

	file, err := os.Open(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open file")

		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		}
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		}
		return nil, errors.FileError(errors.CodeDirectoryError, filePath, err)
	}

	if bp.config.ValidateEncoding {
		if err := bp.validateEncoding(file, filePath); err != nil {
			file.Close()
			bp.logger.WithError(err).WithField("file_path", filePath).Error("File encoding validation failed")
			return nil, err
		}

		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, errors.FileError(errors.CodeDirectoryError, filePath, err)
		}
	}

	return file, nil
}

// OpenCSV opens a CSV file and returns a configured csv.Reader
func (bp *BaseParser) OpenCSV(filePath string) (*os.File, *csv.Reader, error) {
	file, err := bp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	return file, bp.NewReader(file), nil
}

// NewReader wraps r in a csv.Reader configured from the parser settings.
func (bp *BaseParser) NewReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader
}

// validateEncoding checks if the file contains valid UTF-8 text
func (bp *BaseParser) validateEncoding(file *os.File, filePath string) error {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() && lineNum < 100 {
		lineNum++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(
				errors.CodeInvalidFormat,
				filePath,
				lineNum,
				"encoding",
				"",
				fmt.Errorf("invalid UTF-8 encoding detected"),
			).WithSuggestion("Save the file in UTF-8 encoding and try again")
		}
	}

	// JSON exports are often a single long line; those are left to the decoder.
	if err := scanner.Err(); err != nil && err != bufio.ErrTooLong {
		return errors.FileError(errors.CodeDirectoryError, filePath, err)
	}

	return nil
}

// ReadHeaders reads the header row and checks that every required column
// group has at least one alias present.
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext, required map[string][]string) error {
	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.ValidationError(
				errors.CodeMissingField,
				"file_content",
				"empty",
				nil,
			).WithSuggestion("Ensure the file contains a header row")
		}

		bp.logger.WithError(err).Error("Failed to read header row")
		return errors.ParseError(errors.CodeInvalidFormat, parseCtx.File, 1, "headers", "", err).
			WithSuggestion("Check the file format and ensure it's a valid CSV")
	}

	parseCtx.LineNumber++
	parseCtx.Headers = cleanHeaders(headers)
	parseCtx.HeaderMap = make(map[string]int, len(parseCtx.Headers))
	for i, header := range parseCtx.Headers {
		if _, exists := parseCtx.HeaderMap[header]; !exists {
			parseCtx.HeaderMap[header] = i
		}
	}

	bp.logger.WithField("headers", parseCtx.Headers).Debug("Read headers")

	var missing []string
	for name, aliases := range required {
		if parseCtx.FindColumn(aliases) == -1 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"missing_headers":   missing,
			"available_headers": parseCtx.Headers,
		}).Error("Required headers are missing")

		return errors.ParseError(
			errors.CodeMissingColumn,
			parseCtx.File,
			parseCtx.LineNumber,
			"headers",
			strings.Join(missing, ", "),
			nil,
		).WithSuggestion(fmt.Sprintf("Ensure the file contains these columns: %s", strings.Join(missing, ", ")))
	}

	return nil
}

// cleanHeaders trims whitespace and a leading byte-order mark
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		if i == 0 {
			header = strings.TrimPrefix(header, "\ufeff")
		}
		cleaned[i] = strings.TrimSpace(header)
	}
	return cleaned
}

// ReadRecord reads the next non-empty CSV record
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	for {
		if parseCtx.IsCancelled() {
			return nil, errors.InternalError(errors.CodeCancelled, "csv_parsing", parseCtx.ctx.Err())
		}

		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			parseCtx.LineNumber++
			bp.logger.WithError(err).WithField("line_number", parseCtx.LineNumber).Warn("Failed to read CSV record")
			return nil, parseCtx.Err("", "", "failed to read record", err)
		}

		parseCtx.LineNumber++

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		if bp.config.MaxFieldSize > 0 {
			for i, field := range record {
				if len(field) > bp.config.MaxFieldSize {
					return nil, parseCtx.Err(fmt.Sprintf("column_%d", i), field[:50]+"...",
						fmt.Sprintf("field exceeds maximum size of %d bytes", bp.config.MaxFieldSize), nil)
				}
			}
		}

		return record, nil
	}
}

// isEmptyRecord checks if all fields in a record are empty or whitespace
func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// FieldValue returns the trimmed value at index, or "" when the column is
// absent or the row is short.
func FieldValue(record []string, index int) string {
	if index < 0 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	File          string
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	ErrorCount    int
	Errors        []*ParseError
	// Warnings are malformed field values; their records were kept.
	Warnings []*ParseError
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(file string) *ParseStats {
	return &ParseStats{File: file}
}

// AddError records a row that was dropped
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// AddWarning records a malformed value in a row that was kept
func (ps *ParseStats) AddWarning(err *ParseError) {
	ps.Warnings = append(ps.Warnings, err)
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors, %d warnings",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount, len(ps.Warnings))
}

// GetSampleErrors returns a sample of the parsing errors for logging/debugging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}
	return samples
}
