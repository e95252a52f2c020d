package parsers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"fleet-reconciliation-service/internal/models"
	"fleet-reconciliation-service/pkg/errors"
	"fleet-reconciliation-service/pkg/logger"
)

// flexString decodes a JSON string or number; the tracker emits numeric
// identifiers as either depending on the export.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) ptr() *string {
	return models.Str(string(f))
}

type trackerVehicleJSON struct {
	ID                  flexString `json:"Id"`
	Vendor              flexString `json:"Vendor"`
	AgreementNumber     flexString `json:"RentalAgreementNumber"`
	ReservationNumber   flexString `json:"ReservationNumber"`
	KeyNumber           flexString `json:"KeyNumber"`
	PlateState          flexString `json:"PlateState"`
	PlateNumber         flexString `json:"PlateNumber"`
	Make                flexString `json:"Make"`
	Model               flexString `json:"Model"`
	Color               flexString `json:"Color"`
	VehicleCategoryCode flexString `json:"VehicleCategoryCode"`
	DriverID            flexString `json:"DriverId"`
	DriverName          flexString `json:"DriverName"`
	WorkGroup           flexString `json:"WorkGroup"`
	GAP                 flexString `json:"GAP"`
	PickupDate          flexString `json:"PickupDate"`
	ReturnDate          flexString `json:"ReturnDate"`
	PickupAgencyID      flexString `json:"PickupAgencyId"`
}

type trackerRowJSON struct {
	Status  flexString          `json:"Status"`
	Vehicle *trackerVehicleJSON `json:"Vehicle"`
}

// TrackerParser handles parsing of the tracker's vehicle list
type TrackerParser struct {
	*BaseParser
}

// NewTrackerParser creates a new TrackerParser
func NewTrackerParser(config *ParseConfig, log logger.Logger) *TrackerParser {
	return &TrackerParser{BaseParser: NewBaseParser(config, log, "tracker_parser")}
}

// ParseTrackerFile parses a tracker vehicle-list export.
func (tp *TrackerParser) ParseTrackerFile(ctx context.Context, filePath string) ([]*models.TrackerRecord, *ParseStats, error) {
	file, err := tp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return tp.ParseTracker(ctx, file, filepath.Base(filePath))
}

// ParseTracker parses a JSON array of tracker rows from r. Rows without a
// Vehicle object or stable identifier are dropped and counted as errors.
func (tp *TrackerParser) ParseTracker(ctx context.Context, r io.Reader, name string) ([]*models.TrackerRecord, *ParseStats, error) {
	parseCtx := NewParseContext(ctx, name)
	stats := NewParseStats(name)

	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, stats, errors.ValidationError(errors.CodeMissingField, "file_content", "empty", nil).
				WithSuggestion("Ensure the tracker export contains a JSON array")
		}
		return nil, stats, errors.ParseError(errors.CodeInvalidFormat, name, 0, "", "", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, stats, errors.ParseError(errors.CodeInvalidFormat, name, 0, "", fmt.Sprint(tok),
			fmt.Errorf("tracker export must be a JSON array"))
	}

	var records []*models.TrackerRecord
	for dec.More() {
		if parseCtx.IsCancelled() {
			return records, stats, errors.InternalError(errors.CodeCancelled, "tracker_parsing", parseCtx.ctx.Err())
		}
		parseCtx.LineNumber++

		var row trackerRowJSON
		if err := dec.Decode(&row); err != nil {
			return records, stats, errors.ParseError(errors.CodeInvalidFormat, name, parseCtx.LineNumber, "", "", err).
				WithSuggestion("The tracker export is not valid JSON")
		}
		stats.RecordsParsed++

		if row.Vehicle == nil {
			stats.AddError(parseCtx.Err("Vehicle", "", "row has no Vehicle object", nil))
			continue
		}

		rec := tp.recordFromRow(&row, parseCtx, stats)
		if err := rec.Validate(); err != nil {
			stats.AddError(parseCtx.Err("Id", rec.ID(), "tracker row validation failed", err))
			continue
		}

		records = append(records, rec)
		stats.RecordsValid++
	}
	stats.TotalLines = parseCtx.LineNumber

	tp.logger.WithFields(logger.Fields{
		"file":     name,
		"records":  stats.RecordsValid,
		"errors":   stats.ErrorCount,
		"warnings": len(stats.Warnings),
	}).Info("Parsed tracker vehicle list")

	return records, stats, nil
}

func (tp *TrackerParser) recordFromRow(row *trackerRowJSON, parseCtx *ParseContext, stats *ParseStats) *models.TrackerRecord {
	v := row.Vehicle
	date := func(f flexString, field string) *time.Time {
		return parseOptionalDate(tp.logger, strings.TrimSpace(string(f)), field, parseCtx, stats)
	}

	return &models.TrackerRecord{
		Status: models.Status(strings.TrimSpace(string(row.Status))),
		Vehicle: models.Vehicle{
			VehicleID:         strings.TrimSpace(string(v.ID)),
			Vendor:            v.Vendor.ptr(),
			AgreementNumber:   v.AgreementNumber.ptr(),
			ReservationNumber: v.ReservationNumber.ptr(),
			KeyNumber:         v.KeyNumber.ptr(),
			PlateState:        v.PlateState.ptr(),
			PlateNumber:       v.PlateNumber.ptr(),
			Make:              v.Make.ptr(),
			Model:             v.Model.ptr(),
			Color:             v.Color.ptr(),
			CategoryCode:      v.VehicleCategoryCode.ptr(),
			DriverID:          v.DriverID.ptr(),
			DriverName:        v.DriverName.ptr(),
			WorkGroup:         v.WorkGroup.ptr(),
			GAP:               v.GAP.ptr(),
			PickupDate:        date(v.PickupDate, "PickupDate"),
			ReturnDate:        date(v.ReturnDate, "ReturnDate"),
			PickupAgencyID:    v.PickupAgencyID.ptr(),
		},
	}
}
