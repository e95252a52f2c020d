package parsers

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"fleet-reconciliation-service/internal/models"
	"fleet-reconciliation-service/internal/normalize"
	"fleet-reconciliation-service/pkg/errors"
	"fleet-reconciliation-service/pkg/logger"
)

// VendorParser handles parsing of vendor rental export CSV files
type VendorParser struct {
	*BaseParser
	config     *VendorParserConfig
	normalizer *normalize.Normalizer
}

// NewVendorParser creates a new VendorParser. The normalizer derives row
// identities from agreement numbers so the same rental gets the same RowID
// in the "open" and "all" exports.
func NewVendorParser(config *VendorParserConfig, n *normalize.Normalizer, log logger.Logger) (*VendorParser, error) {
	if config == nil {
		config = DefaultVendorParserConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if n == nil {
		n = normalize.Default()
	}

	return &VendorParser{
		BaseParser: NewBaseParser(config.Parse, log, "vendor_parser"),
		config:     config,
		normalizer: n,
	}, nil
}

// ParseVendorFile parses one vendor export and tags every row with
// provenance.
func (vp *VendorParser) ParseVendorFile(ctx context.Context, filePath string, provenance models.Provenance) ([]*models.VendorRecord, *ParseStats, error) {
	file, err := vp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return vp.ParseVendor(ctx, file, filepath.Base(filePath), provenance)
}

// ParseVendor parses vendor rows from r. name identifies the source in row
// identities and error messages.
func (vp *VendorParser) ParseVendor(ctx context.Context, r io.Reader, name string, provenance models.Provenance) ([]*models.VendorRecord, *ParseStats, error) {
	if !provenance.IsValid() || provenance == models.ProvenanceMissing {
		return nil, nil, errors.ValidationError(errors.CodeMalformedInput, "provenance", provenance, nil)
	}

	reader := vp.NewReader(r)
	parseCtx := NewParseContext(ctx, name)
	stats := NewParseStats(name)

	if err := vp.ReadHeaders(reader, parseCtx, vp.config.required()); err != nil {
		return nil, stats, err
	}
	columns := vp.resolveColumns(parseCtx)

	var records []*models.VendorRecord
	rowIDs := make(map[string]bool)

	for {
		record, err := vp.ReadRecord(reader, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}
			if errors.HasCode(err, errors.CodeCancelled) {
				return records, stats, err
			}
			if pe, ok := err.(*ParseError); ok {
				stats.AddError(pe)
				continue
			}
			return records, stats, err
		}

		stats.RecordsParsed++

		rec := vp.recordFromRow(record, columns, parseCtx, stats)
		rec.Provenance = provenance
		rec.RowID = vp.rowID(rec, parseCtx, rowIDs)

		if err := rec.Validate(); err != nil {
			stats.AddError(parseCtx.Err("", "", "vendor row validation failed", err))
			continue
		}

		records = append(records, rec)
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber

	vp.logger.WithFields(logger.Fields{
		"file":       name,
		"provenance": provenance,
		"records":    stats.RecordsValid,
		"errors":     stats.ErrorCount,
		"warnings":   len(stats.Warnings),
	}).Info("Parsed vendor export")

	return records, stats, nil
}

func (vp *VendorParser) resolveColumns(parseCtx *ParseContext) map[string]int {
	columns := make(map[string]int, len(vp.config.ColumnAliases))
	for col, aliases := range vp.config.ColumnAliases {
		columns[col] = parseCtx.FindColumn(aliases)
	}
	return columns
}

func (vp *VendorParser) recordFromRow(row []string, columns map[string]int, parseCtx *ParseContext, stats *ParseStats) *models.VendorRecord {
	text := func(col string) *string {
		return models.Str(FieldValue(row, columns[col]))
	}
	date := func(col string) *time.Time {
		return vp.parseDate(FieldValue(row, columns[col]), col, parseCtx, stats)
	}

	return &models.VendorRecord{
		AgreementNumber:   text(ColAgreement),
		ReservationNumber: text(ColReservation),
		KeyNumber:         text(ColKeyNumber),
		PlateState:        text(ColPlateState),
		PlateNumber:       text(ColPlateNumber),
		Make:              text(ColMake),
		Model:             text(ColModel),
		Color:             text(ColColor),
		PickupLocation:    text(ColPickupLocation),
		PickupDate:        date(ColPickupDate),
		ExpectedReturn:    date(ColExpectedReturn),
		CostControl:       text(ColCostControl),
	}
}

// parseDate returns nil for blank or unparseable values; the latter are
// recorded as malformed input.
func (vp *VendorParser) parseDate(value, col string, parseCtx *ParseContext, stats *ParseStats) *time.Time {
	return parseOptionalDate(vp.logger, value, col, parseCtx, stats)
}

// rowID derives the row identity: the normalized agreement number, or
// <file>:<line> when the row has none or repeats one already seen.
func (vp *VendorParser) rowID(rec *models.VendorRecord, parseCtx *ParseContext, seen map[string]bool) string {
	id := fmt.Sprintf("%s:%d", parseCtx.File, parseCtx.LineNumber)
	if key, ok := vp.normalizer.Agreement(rec.AgreementNumber); ok {
		if !seen[string(key)] {
			id = string(key)
		} else {
			vp.logger.WithFields(logger.Fields{
				"agreement": string(key),
				"line":      parseCtx.LineNumber,
			}).Warn("Agreement number repeats within the export; using line identity")
		}
	}
	seen[id] = true
	return id
}

func parseOptionalDate(log logger.Logger, value, field string, parseCtx *ParseContext, stats *ParseStats) *time.Time {
	if value == "" {
		return nil
	}
	t, err := models.ParseTimeWithFormats(value)
	if err != nil {
		log.WithFields(logger.Fields{
			"file":  parseCtx.File,
			"line":  parseCtx.LineNumber,
			"field": field,
			"value": value,
			"code":  errors.CodeMalformedInput,
		}).Warn("Unparseable date; treating field as empty")
		stats.AddWarning(parseCtx.Err(field, value, "unparseable date", err))
		return nil
	}
	return &t
}
