package matcher

import (
	"fleet-reconciliation-service/internal/models"
	"fleet-reconciliation-service/internal/normalize"
	"fleet-reconciliation-service/pkg/errors"
	"fleet-reconciliation-service/pkg/logger"
)

// TrackerIndex maps normalized keys to tracker records, one map per
// identifying field. Indexes are built fresh for every run.
type TrackerIndex struct {
	// ByField maps each key field to its normalized-key lookup
	ByField map[models.KeyField]map[normalize.Key]*models.TrackerRecord

	// ByID maps stable identifiers to the record that represents them
	ByID map[string]*models.TrackerRecord

	// AllRecords holds all indexed records in input order
	AllRecords []*models.TrackerRecord

	conflicts []KeyConflict
	stats     IndexStats
}

// VendorIndex maps normalized keys to vendor rows, one map per identifying
// field.
type VendorIndex struct {
	ByField    map[models.KeyField]map[normalize.Key]*models.VendorRecord
	ByRowID    map[string]*models.VendorRecord
	AllRecords []*models.VendorRecord

	stats IndexStats
}

// KeyConflict records a collision between two active tracker records.
type KeyConflict struct {
	// Field is empty for a collision on the stable identifier itself.
	Field     models.KeyField `json:"field,omitempty"`
	Key       string          `json:"key"`
	KeptID    string          `json:"kept_id"`
	DroppedID string          `json:"dropped_id"`
}

// IndexStats provides statistics about an index
type IndexStats struct {
	TotalRecords int                     `json:"total_records"`
	KeysByField  map[models.KeyField]int `json:"keys_by_field"`
	NullKeys     int                     `json:"null_keys"`
	Collisions   int                     `json:"collisions"`
	Conflicts    int                     `json:"conflicts"`
}

func newIndexStats(total int) IndexStats {
	return IndexStats{
		TotalRecords: total,
		KeysByField:  make(map[models.KeyField]int, len(models.KeyFields)),
	}
}

// NewTrackerIndex builds the tracker indexes. On a key collision the active
// record wins regardless of order; when both are active the first one seen
// is kept and the conflict is logged at error level.
func NewTrackerIndex(records []*models.TrackerRecord, n *normalize.Normalizer, log logger.Logger) *TrackerIndex {
	index := &TrackerIndex{
		ByField:    make(map[models.KeyField]map[normalize.Key]*models.TrackerRecord, len(models.KeyFields)),
		ByID:       make(map[string]*models.TrackerRecord, len(records)),
		AllRecords: records,
		stats:      newIndexStats(len(records)),
	}
	for _, field := range models.KeyFields {
		index.ByField[field] = make(map[normalize.Key]*models.TrackerRecord)
	}

	index.buildIndexes(n, logger.OrGlobal(log).WithComponent("tracker_index"))
	return index
}

func (ti *TrackerIndex) buildIndexes(n *normalize.Normalizer, log logger.Logger) {
	for _, rec := range ti.AllRecords {
		if rec == nil {
			continue
		}

		ti.ByID[rec.ID()] = ti.resolve(log, "", rec.ID(), ti.ByID[rec.ID()], rec)

		for _, field := range models.KeyFields {
			key, ok := n.Tracker(rec, field)
			if !ok {
				ti.stats.NullKeys++
				continue
			}

			m := ti.ByField[field]
			m[key] = ti.resolve(log, field, string(key), m[key], rec)
		}
	}

	for field, m := range ti.ByField {
		ti.stats.KeysByField[field] = len(m)
	}
	ti.stats.Conflicts = len(ti.conflicts)
}

// resolve decides which of two records owns a key. existing may be nil.
func (ti *TrackerIndex) resolve(log logger.Logger, field models.KeyField, key string, existing, incoming *models.TrackerRecord) *models.TrackerRecord {
	if existing == nil {
		return incoming
	}
	if existing == incoming {
		return existing
	}
	ti.stats.Collisions++

	switch {
	case existing.IsActive() && incoming.IsActive():
		conflict := KeyConflict{Field: field, Key: key, KeptID: existing.ID(), DroppedID: incoming.ID()}
		ti.conflicts = append(ti.conflicts, conflict)
		log.WithFields(logger.Fields{
			"field":      field,
			"key":        key,
			"kept_id":    conflict.KeptID,
			"dropped_id": conflict.DroppedID,
			"code":       errors.CodeDuplicateActiveKey,
		}).Error("Two active tracker records share a key; keeping the first")
		return existing
	case incoming.IsActive():
		log.WithFields(logger.Fields{
			"field":       field,
			"key":         key,
			"active_id":   incoming.ID(),
			"inactive_id": existing.ID(),
		}).Debug("Active record replaces inactive record for key")
		return incoming
	default:
		return existing
	}
}

// Lookup returns the record owning key for field.
func (ti *TrackerIndex) Lookup(field models.KeyField, key normalize.Key) (*models.TrackerRecord, bool) {
	rec, ok := ti.ByField[field][key]
	return rec, ok
}

// Record returns the record representing a stable identifier.
func (ti *TrackerIndex) Record(id string) (*models.TrackerRecord, bool) {
	rec, ok := ti.ByID[id]
	return rec, ok
}

// Conflicts returns the active/active collisions found while building.
func (ti *TrackerIndex) Conflicts() []KeyConflict {
	return ti.conflicts
}

// GetIndexStats returns statistics about the tracker index
func (ti *TrackerIndex) GetIndexStats() IndexStats {
	return ti.stats
}

// NewVendorIndex builds the vendor indexes. Vendor rows have no status, so
// the first row seen keeps a colliding key.
func NewVendorIndex(records []*models.VendorRecord, n *normalize.Normalizer, log logger.Logger) *VendorIndex {
	index := &VendorIndex{
		ByField:    make(map[models.KeyField]map[normalize.Key]*models.VendorRecord, len(models.KeyFields)),
		ByRowID:    make(map[string]*models.VendorRecord, len(records)),
		AllRecords: records,
		stats:      newIndexStats(len(records)),
	}
	for _, field := range models.KeyFields {
		index.ByField[field] = make(map[normalize.Key]*models.VendorRecord)
	}

	index.buildIndexes(n, logger.OrGlobal(log).WithComponent("vendor_index"))
	return index
}

func (vi *VendorIndex) buildIndexes(n *normalize.Normalizer, log logger.Logger) {
	for _, rec := range vi.AllRecords {
		if rec == nil {
			continue
		}
		if _, exists := vi.ByRowID[rec.RowID]; !exists {
			vi.ByRowID[rec.RowID] = rec
		}

		for _, field := range models.KeyFields {
			key, ok := n.Vendor(rec, field)
			if !ok {
				vi.stats.NullKeys++
				continue
			}

			m := vi.ByField[field]
			if existing, exists := m[key]; exists {
				if existing != rec {
					vi.stats.Collisions++
					log.WithFields(logger.Fields{
						"field":    field,
						"key":      string(key),
						"kept_row": existing.RowID,
						"row":      rec.RowID,
					}).Debug("Vendor rows share a key; keeping the first")
				}
				continue
			}
			m[key] = rec
		}
	}

	for field, m := range vi.ByField {
		vi.stats.KeysByField[field] = len(m)
	}
}

// Lookup returns the vendor row owning key for field.
func (vi *VendorIndex) Lookup(field models.KeyField, key normalize.Key) (*models.VendorRecord, bool) {
	rec, ok := vi.ByField[field][key]
	return rec, ok
}

// Contains reports whether a row with rowID is indexed.
func (vi *VendorIndex) Contains(rowID string) bool {
	_, ok := vi.ByRowID[rowID]
	return ok
}

// GetIndexStats returns statistics about the vendor index
func (vi *VendorIndex) GetIndexStats() IndexStats {
	return vi.stats
}
