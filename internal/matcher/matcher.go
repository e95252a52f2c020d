package matcher

import (
	"fleet-reconciliation-service/internal/models"
	"fleet-reconciliation-service/internal/normalize"
)

// FieldMatch is the tracker record a single field lookup resolved to.
type FieldMatch struct {
	VehicleID string
	Record    *models.TrackerRecord
}

// FieldMatches holds the lookups of one vendor row. Fields that did not
// resolve have no entry.
type FieldMatches map[models.KeyField]FieldMatch

// IDs returns the stable identifier per resolved field.
func (fm FieldMatches) IDs() models.FieldIDs {
	ids := make(models.FieldIDs, len(fm))
	for field, m := range fm {
		ids[field] = m.VehicleID
	}
	return ids
}

// VendorHits holds the vendor rows a tracker record's fields resolved to.
type VendorHits map[models.KeyField]*models.VendorRecord

// MatchState records through which fields a record has been seen. It lives
// in the Matcher's side table; records themselves are never marked.
type MatchState struct {
	Fields map[models.KeyField]bool
}

// Seen reports whether the record was seen through any field.
func (s *MatchState) Seen() bool {
	return s != nil && len(s.Fields) > 0
}

func (s *MatchState) mark(field models.KeyField) {
	if s.Fields == nil {
		s.Fields = make(map[models.KeyField]bool, len(models.KeyFields))
	}
	s.Fields[field] = true
}

// Matcher performs cross lookups between the two sources and remembers
// which records each lookup reached. Lookups are idempotent: repeating one
// returns the same answer and leaves the side table unchanged.
type Matcher struct {
	tracker    *TrackerIndex
	vendor     *VendorIndex
	normalizer *normalize.Normalizer

	trackerSeen map[string]*MatchState
	vendorSeen  map[string]*MatchState
}

// NewMatcher creates a matcher over the given indexes. Either index may be
// nil when only one direction is needed.
func NewMatcher(tracker *TrackerIndex, vendor *VendorIndex, n *normalize.Normalizer) *Matcher {
	return &Matcher{
		tracker:     tracker,
		vendor:      vendor,
		normalizer:  n,
		trackerSeen: make(map[string]*MatchState),
		vendorSeen:  make(map[string]*MatchState),
	}
}

// LookupTracker resolves a normalized key against the tracker index and
// marks the record seen.
func (m *Matcher) LookupTracker(field models.KeyField, key normalize.Key) (FieldMatch, bool) {
	if m.tracker == nil {
		return FieldMatch{}, false
	}
	rec, ok := m.tracker.Lookup(field, key)
	if !ok {
		return FieldMatch{}, false
	}

	state := m.trackerSeen[rec.ID()]
	if state == nil {
		state = &MatchState{}
		m.trackerSeen[rec.ID()] = state
	}
	state.mark(field)

	return FieldMatch{VehicleID: rec.ID(), Record: rec}, true
}

// LookupVendor resolves a normalized key against the vendor index and marks
// the row seen.
func (m *Matcher) LookupVendor(field models.KeyField, key normalize.Key) (*models.VendorRecord, bool) {
	if m.vendor == nil {
		return nil, false
	}
	rec, ok := m.vendor.Lookup(field, key)
	if !ok {
		return nil, false
	}

	state := m.vendorSeen[rec.RowID]
	if state == nil {
		state = &MatchState{}
		m.vendorSeen[rec.RowID] = state
	}
	state.mark(field)

	return rec, true
}

// MatchVendor looks a vendor row up on all four fields against the tracker.
func (m *Matcher) MatchVendor(v *models.VendorRecord) FieldMatches {
	matches := make(FieldMatches, len(models.KeyFields))
	for _, field := range models.KeyFields {
		key, ok := m.normalizer.Vendor(v, field)
		if !ok {
			continue
		}
		if match, found := m.LookupTracker(field, key); found {
			matches[field] = match
		}
	}
	return matches
}

// MatchTracker looks a tracker record up on all four fields against the
// vendor rows.
func (m *Matcher) MatchTracker(t *models.TrackerRecord) VendorHits {
	hits := make(VendorHits, len(models.KeyFields))
	for _, field := range models.KeyFields {
		key, ok := m.normalizer.Tracker(t, field)
		if !ok {
			continue
		}
		if rec, found := m.LookupVendor(field, key); found {
			hits[field] = rec
		}
	}
	return hits
}

// TrackerState returns the side-table entry of a tracker record.
func (m *Matcher) TrackerState(vehicleID string) *MatchState {
	return m.trackerSeen[vehicleID]
}

// VendorState returns the side-table entry of a vendor row.
func (m *Matcher) VendorState(rowID string) *MatchState {
	return m.vendorSeen[rowID]
}

// UnseenTracker returns, in index order, the tracker records no lookup has
// reached.
func (m *Matcher) UnseenTracker() []*models.TrackerRecord {
	if m.tracker == nil {
		return nil
	}
	var unseen []*models.TrackerRecord
	for _, rec := range m.tracker.AllRecords {
		if rec != nil && !m.trackerSeen[rec.ID()].Seen() {
			unseen = append(unseen, rec)
		}
	}
	return unseen
}

// SeenCounts returns how many tracker records and vendor rows were reached.
func (m *Matcher) SeenCounts() (tracker, vendor int) {
	return len(m.trackerSeen), len(m.vendorSeen)
}
