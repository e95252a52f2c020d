package parsers

import (
	"context"
	"io"
	"path/filepath"

	"fleet-reconciliation-service/internal/models"
	"fleet-reconciliation-service/pkg/errors"
	"fleet-reconciliation-service/pkg/logger"
)

// RosterParser handles parsing of the staffing roster CSV
type RosterParser struct {
	*BaseParser
	config *RosterParserConfig
}

// NewRosterParser creates a new RosterParser
func NewRosterParser(config *RosterParserConfig, log logger.Logger) (*RosterParser, error) {
	if config == nil {
		config = DefaultRosterParserConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &RosterParser{
		BaseParser: NewBaseParser(config.Parse, log, "roster_parser"),
		config:     config,
	}, nil
}

// ParseRosterFile parses a roster export.
func (rp *RosterParser) ParseRosterFile(ctx context.Context, filePath string) ([]*models.RosterMember, *ParseStats, error) {
	file, err := rp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return rp.ParseRoster(ctx, file, filepath.Base(filePath))
}

// ParseRoster parses roster rows from r. Rows without a name are dropped.
func (rp *RosterParser) ParseRoster(ctx context.Context, r io.Reader, name string) ([]*models.RosterMember, *ParseStats, error) {
	reader := rp.NewReader(r)
	parseCtx := NewParseContext(ctx, name)
	stats := NewParseStats(name)

	required := map[string][]string{
		"name":  {rp.config.NameColumn},
		"gap":   {rp.config.GAPColumn},
		"tandm": {rp.config.TandMColumn},
	}
	if err := rp.ReadHeaders(reader, parseCtx, required); err != nil {
		return nil, stats, err
	}
	nameCol := parseCtx.GetColumnIndex(rp.config.NameColumn)
	gapCol := parseCtx.GetColumnIndex(rp.config.GAPColumn)
	tandmCol := parseCtx.GetColumnIndex(rp.config.TandMColumn)

	var members []*models.RosterMember
	for {
		record, err := rp.ReadRecord(reader, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}
			if pe, ok := err.(*ParseError); ok {
				stats.AddError(pe)
				continue
			}
			return members, stats, err
		}
		stats.RecordsParsed++

		member := &models.RosterMember{
			Name:  FieldValue(record, nameCol),
			GAP:   FieldValue(record, gapCol),
			TandM: FieldValue(record, tandmCol),
		}
		if member.Name == "" {
			stats.AddError(parseCtx.Err(rp.config.NameColumn, "", "roster row has no name",
				errors.New(errors.CategoryValidation, errors.CodeMissingField, "name is required")))
			continue
		}

		members = append(members, member)
		stats.RecordsValid++
	}
	stats.TotalLines = parseCtx.LineNumber

	rp.logger.WithFields(logger.Fields{
		"file":    name,
		"members": stats.RecordsValid,
		"errors":  stats.ErrorCount,
	}).Info("Parsed roster")

	return members, stats, nil
}
