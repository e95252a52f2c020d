package reconciler

import (
	"fleet-reconciliation-service/internal/matcher"
	"fleet-reconciliation-service/internal/models"
	"fleet-reconciliation-service/internal/normalize"
	"fleet-reconciliation-service/pkg/logger"
)

// GapResult is the output of a gap-fill pass. Open and All start with the
// input rows, same pointers and order, followed by what the pass added.
type GapResult struct {
	Open []*models.VendorRecord
	All  []*models.VendorRecord

	// Promoted rows were copied from the all-records list into Open.
	Promoted []*models.VendorRecord
	// Synthesized rows stand in for tracker records the vendor does not
	// list at all. They are appended to both Open and All.
	Synthesized []*models.VendorRecord
}

// GapFiller finds the records one source has and the other lacks.
type GapFiller struct {
	normalizer *normalize.Normalizer
	vendorName string
	promotable func(*models.VendorRecord) bool
	logger     logger.Logger
}

// NewGapFiller creates a gap filler for tracker records managed by
// vendorName.
func NewGapFiller(n *normalize.Normalizer, vendorName string, log logger.Logger) *GapFiller {
	if n == nil {
		n = normalize.Default()
	}
	return &GapFiller{
		normalizer: n,
		vendorName: vendorName,
		logger:     logger.OrGlobal(log).WithComponent("gap_filler"),
	}
}

// WithPromotionFilter restricts which superset rows may be promoted into
// Open and carried in All. Rows failing keep still count as vendor hits, so
// a tracker record they match is never reported MISSING.
func (g *GapFiller) WithPromotionFilter(keep func(*models.VendorRecord) bool) *GapFiller {
	g.promotable = keep
	return g
}

// Reconcile fills the gaps in both directions.
//
// Every tracker record is looked up on its four keys against vendorAll. A
// hit that is not already in vendorOpen, by row ID or by any of its keys,
// is promoted into Open with provenance OPEN_ALL. An active tracker record
// of the configured vendor that has a key number and no hit at all gets a
// synthesized MISSING row in both collections. Synthesized rows follow all
// promoted ones.
//
// vendorAll may be nil, in which case vendorOpen is the superset and
// nothing can be promoted. The inputs are never modified, and running
// Reconcile on its own output adds nothing.
func (g *GapFiller) Reconcile(tracker []*models.TrackerRecord, vendorAll, vendorOpen []*models.VendorRecord) *GapResult {
	superset := vendorAll
	if superset == nil {
		superset = vendorOpen
	}

	result := &GapResult{
		Open: append(make([]*models.VendorRecord, 0, len(vendorOpen)), vendorOpen...),
		All:  make([]*models.VendorRecord, 0, len(superset)),
	}
	for _, row := range superset {
		if row != nil && g.keeps(row) {
			result.All = append(result.All, row)
		}
	}

	openIDs := rowIDSet(vendorOpen)
	allIDs := rowIDSet(superset)
	openKeys := newVendorKeySet(g.normalizer)
	for _, row := range vendorOpen {
		openKeys.add(row)
	}

	index := matcher.NewVendorIndex(superset, g.normalizer, g.logger)
	m := matcher.NewMatcher(nil, index, g.normalizer)

	var synthesized []*models.VendorRecord
	for _, rec := range tracker {
		if rec == nil {
			continue
		}
		hits := m.MatchTracker(rec)

		for _, field := range models.KeyFields {
			row, ok := hits[field]
			if !ok || openIDs[row.RowID] || openKeys.overlaps(row) || !g.keeps(row) {
				continue
			}
			promoted := row.Clone()
			promoted.Provenance = models.ProvenanceOpenAll
			result.Open = append(result.Open, promoted)
			result.Promoted = append(result.Promoted, promoted)
			openIDs[row.RowID] = true
			openKeys.add(row)

			g.logger.WithFields(logger.Fields{
				"row":        row.RowID,
				"vehicle_id": rec.ID(),
				"field":      field,
			}).Debug("Promoted vendor row from the all-records list")
		}

		if len(hits) > 0 || !g.wantsSynthesis(rec) {
			continue
		}
		id := models.MissingRowID(rec.ID())
		if allIDs[id] || openIDs[id] {
			continue
		}
		missing := models.NewMissingVendorRecord(rec)
		synthesized = append(synthesized, missing)
		allIDs[id] = true
		openIDs[id] = true

		g.logger.WithFields(logger.Fields{
			"row":        id,
			"vehicle_id": rec.ID(),
		}).Debug("Synthesized vendor row for tracker record missing from the vendor feed")
	}

	result.Open = append(result.Open, synthesized...)
	result.All = append(result.All, synthesized...)
	result.Synthesized = synthesized

	g.logger.WithFields(logger.Fields{
		"tracker":     len(tracker),
		"open":        len(vendorOpen),
		"all":         len(superset),
		"promoted":    len(result.Promoted),
		"synthesized": len(result.Synthesized),
	}).Info("Gap fill completed")

	return result
}

func (g *GapFiller) keeps(row *models.VendorRecord) bool {
	return g.promotable == nil || g.promotable(row)
}

// wantsSynthesis reports whether a tracker record with no vendor hit is
// evidence of a rental the vendor does not list. A reservation alone is
// not enough; the record must carry a key number.
func (g *GapFiller) wantsSynthesis(rec *models.TrackerRecord) bool {
	if !rec.IsActive() || !rec.VendorIs(g.vendorName) {
		return false
	}
	_, ok := g.normalizer.KeyNumber(rec.Vehicle.KeyNumber)
	return ok
}

func rowIDSet(rows []*models.VendorRecord) map[string]bool {
	ids := make(map[string]bool, len(rows))
	for _, row := range rows {
		if row != nil {
			ids[row.RowID] = true
		}
	}
	return ids
}

// vendorKeySet holds the normalized keys of rows already in the open list.
// Row IDs are file-local when a row has no agreement number, so keys are
// what tells a superset row apart from an open one.
type vendorKeySet struct {
	normalizer *normalize.Normalizer
	keys       map[models.KeyField]map[normalize.Key]bool
}

func newVendorKeySet(n *normalize.Normalizer) *vendorKeySet {
	keys := make(map[models.KeyField]map[normalize.Key]bool, len(models.KeyFields))
	for _, field := range models.KeyFields {
		keys[field] = make(map[normalize.Key]bool)
	}
	return &vendorKeySet{normalizer: n, keys: keys}
}

func (s *vendorKeySet) add(row *models.VendorRecord) {
	if row == nil {
		return
	}
	for _, field := range models.KeyFields {
		if key, ok := s.normalizer.Vendor(row, field); ok {
			s.keys[field][key] = true
		}
	}
}

func (s *vendorKeySet) overlaps(row *models.VendorRecord) bool {
	for _, field := range models.KeyFields {
		if key, ok := s.normalizer.Vendor(row, field); ok && s.keys[field][key] {
			return true
		}
	}
	return false
}
