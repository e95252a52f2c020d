package matcher

import (
	"sort"
	"strings"

	"fleet-reconciliation-service/internal/models"
	"fleet-reconciliation-service/pkg/errors"
	"fleet-reconciliation-service/pkg/logger"
)

// Decision is the outcome of the classification policy for one set of
// per-field identifiers.
type Decision struct {
	Class       models.MatchClass
	SubClass    models.SubClass
	Annotations map[models.KeyField]models.FieldAnnotation
}

// Decide applies the classification policy, in order:
//  1. no field resolved: NO_MATCH, refined to PARTIAL_ELSEWHERE for rows
//     promoted from the all-records list
//  2. all four fields resolved to the same identifier: FULL_MATCH
//  3. anything else: PARTIAL_MATCH, each field FOUND or MISSING
//
// The decision depends only on the set of (field, identifier) pairs, so it
// is independent of the order fields are looked up in.
func Decide(ids models.FieldIDs, provenance models.Provenance) Decision {
	d := Decision{Annotations: make(map[models.KeyField]models.FieldAnnotation, len(models.KeyFields))}
	for _, field := range models.KeyFields {
		if ids[field] != "" {
			d.Annotations[field] = models.AnnotationFound
		} else {
			d.Annotations[field] = models.AnnotationMissing
		}
	}

	distinct := make(map[string]bool, len(ids))
	resolved := 0
	for _, field := range models.KeyFields {
		if id := ids[field]; id != "" {
			distinct[id] = true
			resolved++
		}
	}

	switch {
	case resolved == 0:
		d.Class = models.ClassNoMatch
		if provenance == models.ProvenanceOpenAll {
			d.SubClass = models.SubClassPartialElsewhere
		}
	case resolved == len(models.KeyFields) && len(distinct) == 1:
		d.Class = models.ClassFullMatch
	default:
		d.Class = models.ClassPartialMatch
	}
	return d
}

// ExclusionFunc reports whether a vendor row is noise for the deployment
// being reconciled.
type ExclusionFunc func(*models.VendorRecord) bool

// Classifier annotates reconciliation records in place.
type Classifier struct {
	index     *TrackerIndex
	secondary *SecondaryChecker
	exclude   ExclusionFunc
	logger    logger.Logger
}

// NewClassifier creates a classifier resolving identifiers against index.
// secondary may be nil to skip secondary checks.
func NewClassifier(index *TrackerIndex, secondary *SecondaryChecker, log logger.Logger) *Classifier {
	return &Classifier{
		index:     index,
		secondary: secondary,
		logger:    logger.OrGlobal(log).WithComponent("classifier"),
	}
}

// WithExclusion sets the predicate for rows that must not be classified.
func (c *Classifier) WithExclusion(fn ExclusionFunc) *Classifier {
	c.exclude = fn
	return c
}

// Classify annotates rec from the lookups of its vendor row.
//
// Excluded rows are marked and left alone. Every resolved identifier must
// name a loaded tracker record; if one does not, the record is marked
// UNRESOLVED and the returned error describes it, but the caller is expected
// to carry on with the next record. Stale and identifier-conflict flags are
// layered on top of whatever class the policy decides.
func (c *Classifier) Classify(rec *models.ReconciliationRecord, matches FieldMatches) error {
	rec.Fields = make(map[models.KeyField]models.FieldResult, len(models.KeyFields))
	rec.SubClass = models.SubClassNone
	rec.MatchedVehicleID = ""
	rec.Stale = false
	rec.IdentifierConflict = false
	rec.Secondary = nil

	if c.exclude != nil && c.exclude(rec.Vendor) {
		rec.Class = models.ClassExcluded
		return nil
	}

	var unresolved []string
	for field, m := range matches {
		resolved, ok := c.index.Record(m.VehicleID)
		if !ok {
			unresolved = append(unresolved, m.VehicleID)
			continue
		}

		owner := m.Record
		if owner == nil {
			owner = resolved
		}
		if owner != resolved || owner.ID() != m.VehicleID {
			rec.IdentifierConflict = true
			c.logger.WithFields(logger.Fields{
				"row":        rec.Vendor.RowID,
				"field":      field,
				"vehicle_id": m.VehicleID,
			}).Warn("Key index and identifier index disagree on the owning tracker record")
		}

		stale := !owner.IsActive()
		rec.Fields[field] = models.FieldResult{
			Annotation: models.AnnotationFound,
			VehicleID:  m.VehicleID,
			Stale:      stale,
		}
		rec.Stale = rec.Stale || stale
	}

	if len(unresolved) > 0 {
		sort.Strings(unresolved)
		detail := strings.Join(unresolved, ",")
		rec.Class = models.ClassUnresolved
		err := errors.RecordError(errors.CodeUnresolvedLookup, rec.Vendor.RowID, detail)
		rec.AddError(err.Message)
		c.logger.WithError(err).WithField("row", rec.Vendor.RowID).Error("Unresolved tracker identifier")
		return err
	}

	decision := Decide(matches.IDs(), rec.Vendor.Provenance)
	rec.Class = decision.Class
	rec.SubClass = decision.SubClass
	for field, annotation := range decision.Annotations {
		if annotation == models.AnnotationMissing {
			rec.Fields[field] = models.FieldResult{Annotation: models.AnnotationMissing}
		}
	}

	if rec.Class != models.ClassFullMatch {
		return nil
	}

	vehicleID := matches[models.FieldKey].VehicleID
	rec.MatchedVehicleID = vehicleID

	// A synthesized row copies its tracker record, so comparing the two again
	// says nothing.
	if c.secondary != nil && rec.Vendor.Provenance != models.ProvenanceMissing {
		tracker, _ := c.index.Record(vehicleID)
		rec.Secondary = c.secondary.Check(rec.Vendor, tracker)
	}
	return nil
}
