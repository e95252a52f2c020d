package models

import (
	"fmt"
	"sort"
)

// KeyField names one of the four identifying fields used for matching.
type KeyField string

const (
	FieldAgreement   KeyField = "agreement"
	FieldReservation KeyField = "reservation"
	FieldKey         KeyField = "key"
	FieldPlate       KeyField = "plate"
)

// KeyFields lists the identifying fields in report order.
var KeyFields = []KeyField{FieldAgreement, FieldReservation, FieldKey, FieldPlate}

// FieldIDs holds, per key field, the stable tracker identifier a lookup
// resolved to. A field with no entry did not resolve.
type FieldIDs map[KeyField]string

// MatchClass is the overall confidence class of a reconciliation row.
type MatchClass string

const (
	ClassUnclassified MatchClass = ""
	ClassNoMatch      MatchClass = "NO_MATCH"
	ClassPartialMatch MatchClass = "PARTIAL_MATCH"
	ClassFullMatch    MatchClass = "FULL_MATCH"
	// ClassExcluded rows carry a cost-control code that denotes a synthesized
	// row or no deployment; they are noise for any given deployment.
	ClassExcluded MatchClass = "EXCLUDED"
	// ClassUnresolved rows referenced a tracker identifier that is not in
	// the loaded snapshot. They are reported as failures, never as matches.
	ClassUnresolved MatchClass = "UNRESOLVED"
)

// SubClass refines a match class.
type SubClass string

const (
	SubClassNone SubClass = ""
	// SubClassPartialElsewhere marks a NO_MATCH row that was seen in the
	// vendor's all-records list but not in the open one.
	SubClassPartialElsewhere SubClass = "PARTIAL_ELSEWHERE"
)

// FieldAnnotation is the per-field presence result of a partial match.
type FieldAnnotation string

const (
	AnnotationFound   FieldAnnotation = "FOUND"
	AnnotationMissing FieldAnnotation = "MISSING"
)

// FieldResult is the per-field outcome of matching one row.
type FieldResult struct {
	Annotation FieldAnnotation `json:"annotation"`
	VehicleID  string          `json:"vehicle_id,omitempty"`
	// Stale is set when the resolved tracker record is not active.
	Stale bool `json:"stale,omitempty"`
}

// SecondaryAttribute names a non-identifying attribute compared on full
// matches.
type SecondaryAttribute string

const (
	AttrLocation   SecondaryAttribute = "location"
	AttrPickupDate SecondaryAttribute = "pickup_date"
	AttrReturnDate SecondaryAttribute = "return_date"
	AttrMake       SecondaryAttribute = "make"
	AttrModel      SecondaryAttribute = "model"
	AttrColor      SecondaryAttribute = "color"
)

// SecondaryAttributes lists the secondary attributes in report order.
var SecondaryAttributes = []SecondaryAttribute{
	AttrLocation, AttrPickupDate, AttrReturnDate, AttrMake, AttrModel, AttrColor,
}

// SecondaryOutcome is the result of one secondary attribute comparison.
type SecondaryOutcome string

const (
	OutcomeMatch    SecondaryOutcome = "MATCH"
	OutcomeMismatch SecondaryOutcome = "MISMATCH"
	OutcomeUnknown  SecondaryOutcome = "UNKNOWN"
	// OutcomeNoMapping means the tracker value has no entry in the
	// translation table, so no verdict is possible.
	OutcomeNoMapping SecondaryOutcome = "NO_MAPPING"
)

// SecondaryCheck is one secondary attribute comparison.
type SecondaryCheck struct {
	Outcome SecondaryOutcome `json:"outcome"`
	Vendor  string           `json:"vendor,omitempty"`
	Tracker string           `json:"tracker,omitempty"`
}

// SecondaryResult holds the secondary attribute comparisons of a full match.
type SecondaryResult map[SecondaryAttribute]SecondaryCheck

// Mismatches returns the attributes whose outcome is MISMATCH, in report
// order.
func (s SecondaryResult) Mismatches() []SecondaryAttribute {
	var out []SecondaryAttribute
	for _, attr := range SecondaryAttributes {
		if check, ok := s[attr]; ok && check.Outcome == OutcomeMismatch {
			out = append(out, attr)
		}
	}
	return out
}

// ReconciliationRecord is a vendor row (real or synthesized) together with
// everything the engine concluded about it.
type ReconciliationRecord struct {
	Vendor *VendorRecord `json:"vendor"`

	Class    MatchClass               `json:"class"`
	SubClass SubClass                 `json:"sub_class,omitempty"`
	Fields   map[KeyField]FieldResult `json:"fields,omitempty"`
	// MatchedVehicleID is set for full matches.
	MatchedVehicleID string `json:"matched_vehicle_id,omitempty"`
	// Stale is set when any resolved tracker record is not active.
	Stale bool `json:"stale,omitempty"`
	// IdentifierConflict is set when an index entry points at a tracker record
	// whose own identifier differs from the indexed one.
	IdentifierConflict bool            `json:"identifier_conflict,omitempty"`
	Secondary          SecondaryResult `json:"secondary,omitempty"`
	Errors             []string        `json:"errors,omitempty"`
}

// NewReconciliationRecord wraps a vendor row for classification.
func NewReconciliationRecord(v *VendorRecord) *ReconciliationRecord {
	return &ReconciliationRecord{
		Vendor: v,
		Fields: make(map[KeyField]FieldResult, len(KeyFields)),
	}
}

// AddError records a per-record failure.
func (r *ReconciliationRecord) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// HasErrors reports whether any per-record failure was recorded.
func (r *ReconciliationRecord) HasErrors() bool {
	return len(r.Errors) > 0
}

// ResolvedIDs returns the distinct stable identifiers the row resolved to,
// sorted.
func (r *ReconciliationRecord) ResolvedIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, f := range r.Fields {
		if f.VehicleID != "" && !seen[f.VehicleID] {
			seen[f.VehicleID] = true
			ids = append(ids, f.VehicleID)
		}
	}
	sort.Strings(ids)
	return ids
}

// String returns a string representation of the reconciliation record
func (r *ReconciliationRecord) String() string {
	return fmt.Sprintf("ReconciliationRecord{Row: %s, Provenance: %s, Class: %s%s, Stale: %t}",
		r.Vendor.RowID, r.Vendor.Provenance, r.Class, subClassSuffix(r.SubClass), r.Stale)
}

func subClassSuffix(s SubClass) string {
	if s == SubClassNone {
		return ""
	}
	return "/" + string(s)
}
