// Package models defines the typed records exchanged between the parsers,
// the matching engine and the reporters.
//
// Optional fields are pointers: a nil value means the source did not provide
// the field, which is distinct from any present value. The parsers are the
// only place that map raw column names onto these types.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Status is the tracker status of a vehicle assignment.
type Status string

const (
	StatusActive   Status = "Active"
	StatusReleased Status = "Released"
)

// IsActive reports whether the status denotes a live assignment. Any value
// other than Active counts as inactive.
func (s Status) IsActive() bool {
	return strings.EqualFold(strings.TrimSpace(string(s)), string(StatusActive))
}

// Provenance marks where a reconciliation row came from.
type Provenance string

const (
	// ProvenanceOpen rows come from the vendor's open-rental list.
	ProvenanceOpen Provenance = "OPEN"
	// ProvenanceOpenAll rows were promoted from the vendor's all-records list.
	ProvenanceOpenAll Provenance = "OPEN_ALL"
	// ProvenanceMissing rows were synthesized from a tracker record that has
	// no vendor counterpart.
	ProvenanceMissing Provenance = "MISSING"
)

// String returns the string representation of the provenance
func (p Provenance) String() string {
	return string(p)
}

// IsValid checks if the provenance is one of the known tags
func (p Provenance) IsValid() bool {
	return p == ProvenanceOpen || p == ProvenanceOpenAll || p == ProvenanceMissing
}

// Str returns a pointer to the trimmed value, or nil when it is blank.
func Str(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string, or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ParseTimeWithFormats attempts to parse time from string using the formats
// seen in tracker and vendor exports.
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05.000",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
		"01/02/2006 15:04:05",
		"01/02/2006 15:04",
		"1/2/2006 3:04 PM",
		"01/02/2006",
		"1/2/2006",
		"01/02/06",
		"Jan 2, 2006",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// SameDate compares the calendar dates of a and b, ignoring time of day.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// FormatDate renders an optional time as YYYY-MM-DD, or "" for nil.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
