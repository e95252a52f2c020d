package reporter

import (
	"fmt"
	"strings"

	"fleet-reconciliation-service/internal/models"
)

// Color is an RGB fill color used for report rows.
type Color struct {
	R, G, B uint8
}

// Hex returns the color as "#RRGGBB".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// Fraction returns the channels scaled to [0, 1].
func (c Color) Fraction() (r, g, b float64) {
	return float64(c.R) / 255, float64(c.G) / 255, float64(c.B) / 255
}

// Row fill colors.
var (
	ColorFullMatch        = Color{0xB7, 0xE1, 0xCD}
	ColorPartialMatch     = Color{0xFC, 0xE8, 0xB2}
	ColorNoMatch          = Color{0xF4, 0xC7, 0xC3}
	ColorPartialElsewhere = Color{0xF9, 0xCB, 0x9C}
	ColorExcluded         = Color{0xD9, 0xD9, 0xD9}
	ColorUnresolved       = Color{0xD9, 0xD2, 0xE9}
	ColorMissing          = Color{0xC9, 0xDA, 0xF8}
	ColorNone             = Color{0xFF, 0xFF, 0xFF}

	// ColorStale marks the cells of identifiers that resolved to a released
	// tracker record.
	ColorStale = Color{0xE6, 0xB8, 0xAF}
	// ColorMismatch marks secondary attributes that disagree.
	ColorMismatch = Color{0xEA, 0x99, 0x99}
)

// RowColor returns the fill color of a record's row. Excluded rows win over
// unresolved ones, which win over synthesized rows; everything else is
// colored by class.
func RowColor(rec *models.ReconciliationRecord) Color {
	switch {
	case rec.Class == models.ClassExcluded:
		return ColorExcluded
	case rec.Class == models.ClassUnresolved:
		return ColorUnresolved
	case rec.Vendor.Provenance == models.ProvenanceMissing:
		return ColorMissing
	}

	switch rec.Class {
	case models.ClassFullMatch:
		return ColorFullMatch
	case models.ClassPartialMatch:
		return ColorPartialMatch
	case models.ClassNoMatch:
		if rec.SubClass == models.SubClassPartialElsewhere {
			return ColorPartialElsewhere
		}
		return ColorNoMatch
	default:
		return ColorNone
	}
}

// FieldNote returns the cell note for one key field, or "" when the field
// needs no explanation. Notes are only written for partial matches and for
// stale identifiers.
func FieldNote(rec *models.ReconciliationRecord, field models.KeyField) string {
	result, ok := rec.Fields[field]
	if !ok {
		return ""
	}

	var note string
	if rec.Class == models.ClassPartialMatch {
		switch result.Annotation {
		case models.AnnotationFound:
			note = fmt.Sprintf("FOUND: vehicle %s", result.VehicleID)
		case models.AnnotationMissing:
			note = "MISSING: no tracker record"
		}
	}
	if result.Stale {
		note = strings.TrimSpace(note + fmt.Sprintf(" (vehicle %s is released)", result.VehicleID))
	}
	return note
}

// SecondaryNote returns the cell note for a secondary attribute, or "" when
// it matched or was not checked.
func SecondaryNote(rec *models.ReconciliationRecord, attr models.SecondaryAttribute) string {
	check, ok := rec.Secondary[attr]
	if !ok {
		return ""
	}

	label := strings.ReplaceAll(string(attr), "_", " ")
	switch check.Outcome {
	case models.OutcomeMismatch:
		return fmt.Sprintf("%s mismatch: tracker has %q", label, check.Tracker)
	case models.OutcomeNoMapping:
		return fmt.Sprintf("%s: no mapping for tracker value %q", label, check.Tracker)
	case models.OutcomeUnknown:
		return fmt.Sprintf("%s: not enough data to compare", label)
	default:
		return ""
	}
}

// RecordNotes collects every note of a record into one list, in report
// order: key fields, secondary attributes, then per-record errors.
func RecordNotes(rec *models.ReconciliationRecord) []string {
	var notes []string
	if rec.IdentifierConflict {
		notes = append(notes, "identifier conflict between key and tracker indexes")
	}
	for _, field := range models.KeyFields {
		if note := FieldNote(rec, field); note != "" {
			notes = append(notes, fmt.Sprintf("%s: %s", field, note))
		}
	}
	for _, attr := range models.SecondaryAttributes {
		if note := SecondaryNote(rec, attr); note != "" {
			notes = append(notes, note)
		}
	}
	notes = append(notes, rec.Errors...)
	return notes
}
