package matcher

import (
	"testing"

	"fleet-reconciliation-service/internal/models"
	"fleet-reconciliation-service/internal/normalize"
	"fleet-reconciliation-service/pkg/errors"
	"fleet-reconciliation-service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAgencies() map[string]*models.Agency {
	return map[string]*models.Agency{
		"AG-1": {ID: "AG-1", Name: "Fresno Downtown", Address: "123 Main St", City: "Fresno", State: "CA"},
	}
}

func newTestSecondary(t *testing.T) *SecondaryChecker {
	t.Helper()
	translations, err := DefaultTranslations()
	require.NoError(t, err)
	return NewSecondaryChecker(translations, testAgencies(), true)
}

// classify runs one vendor row through index, matcher and classifier.
func classify(t *testing.T, tracker []*models.TrackerRecord, v *models.VendorRecord) (*models.ReconciliationRecord, error) {
	t.Helper()
	n := normalize.Default()
	index := NewTrackerIndex(tracker, n, logger.Discard())
	m := NewMatcher(index, nil, n)
	c := NewClassifier(index, newTestSecondary(t), logger.Discard())

	rec := models.NewReconciliationRecord(v)
	err := c.Classify(rec, m.MatchVendor(v))
	return rec, err
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		ids        models.FieldIDs
		provenance models.Provenance
		class      models.MatchClass
		subClass   models.SubClass
	}{
		{
			name:       "nothing resolved on open row",
			ids:        models.FieldIDs{},
			provenance: models.ProvenanceOpen,
			class:      models.ClassNoMatch,
		},
		{
			name:       "nothing resolved on promoted row",
			ids:        models.FieldIDs{},
			provenance: models.ProvenanceOpenAll,
			class:      models.ClassNoMatch,
			subClass:   models.SubClassPartialElsewhere,
		},
		{
			name: "all four to one identifier",
			ids: models.FieldIDs{
				models.FieldAgreement: "A", models.FieldReservation: "A",
				models.FieldKey: "A", models.FieldPlate: "A",
			},
			provenance: models.ProvenanceOpen,
			class:      models.ClassFullMatch,
		},
		{
			name: "all four across two identifiers",
			ids: models.FieldIDs{
				models.FieldAgreement: "A", models.FieldReservation: "A",
				models.FieldKey: "A", models.FieldPlate: "B",
			},
			provenance: models.ProvenanceOpen,
			class:      models.ClassPartialMatch,
		},
		{
			name:       "three of four to one identifier",
			ids:        models.FieldIDs{models.FieldAgreement: "A", models.FieldKey: "A", models.FieldPlate: "A"},
			provenance: models.ProvenanceOpenAll,
			class:      models.ClassPartialMatch,
		},
		{
			name:       "single field",
			ids:        models.FieldIDs{models.FieldReservation: "A"},
			provenance: models.ProvenanceMissing,
			class:      models.ClassPartialMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.ids, tt.provenance)
			assert.Equal(t, tt.class, d.Class)
			assert.Equal(t, tt.subClass, d.SubClass)
			require.Len(t, d.Annotations, len(models.KeyFields))
			for _, field := range models.KeyFields {
				want := models.AnnotationMissing
				if tt.ids[field] != "" {
					want = models.AnnotationFound
				}
				assert.Equal(t, want, d.Annotations[field], field)
			}
		})
	}
}

func TestDecide_OrderIndependent(t *testing.T) {
	pairs := []struct {
		field models.KeyField
		id    string
	}{
		{models.FieldAgreement, "A"},
		{models.FieldReservation, "A"},
		{models.FieldKey, "A"},
		{models.FieldPlate, "B"},
	}

	var want Decision
	for i := range pairs {
		ids := models.FieldIDs{}
		for j := range pairs {
			p := pairs[(i+j)%len(pairs)]
			ids[p.field] = p.id
		}
		d := Decide(ids, models.ProvenanceOpen)
		if i == 0 {
			want = d
			continue
		}
		assert.Equal(t, want, d)
	}
	assert.Equal(t, models.ClassPartialMatch, want.Class)
}

func TestClassify_FullMatch(t *testing.T) {
	rec, err := classify(t, []*models.TrackerRecord{createTestTrackerRecord()}, createTestVendorRecord())
	require.NoError(t, err)

	assert.Equal(t, models.ClassFullMatch, rec.Class)
	assert.Equal(t, "VH-100", rec.MatchedVehicleID)
	assert.False(t, rec.Stale)
	assert.False(t, rec.IdentifierConflict)
	for _, field := range models.KeyFields {
		assert.Equal(t, models.AnnotationFound, rec.Fields[field].Annotation, field)
	}

	require.NotNil(t, rec.Secondary)
	assert.Empty(t, rec.Secondary.Mismatches())
	assert.Equal(t, models.OutcomeMatch, rec.Secondary[models.AttrLocation].Outcome)
	assert.Equal(t, models.OutcomeMatch, rec.Secondary[models.AttrModel].Outcome)
}

func TestClassify_FullMatchIsSymmetric(t *testing.T) {
	// The same rental written tracker-style on the vendor side still
	// classifies as a full match.
	tr := createTestTrackerRecord()
	v := &models.VendorRecord{
		RowID:             "row-1",
		AgreementNumber:   tr.Vehicle.AgreementNumber,
		ReservationNumber: tr.Vehicle.ReservationNumber,
		KeyNumber:         tr.Vehicle.KeyNumber,
		PlateState:        tr.Vehicle.PlateState,
		PlateNumber:       tr.Vehicle.PlateNumber,
		Provenance:        models.ProvenanceOpen,
	}

	rec, err := classify(t, []*models.TrackerRecord{tr}, v)
	require.NoError(t, err)
	assert.Equal(t, models.ClassFullMatch, rec.Class)
}

func TestClassify_PartialWhenPlateResolvesElsewhere(t *testing.T) {
	v := createTestVendorRecord()
	v.PlateNumber = sp("XYZ9999")

	rec, err := classify(t, []*models.TrackerRecord{createTestTrackerRecord(), createOtherTrackerRecord()}, v)
	require.NoError(t, err)

	assert.Equal(t, models.ClassPartialMatch, rec.Class)
	assert.Empty(t, rec.MatchedVehicleID)
	assert.Nil(t, rec.Secondary)
	assert.Equal(t, models.FieldResult{Annotation: models.AnnotationFound, VehicleID: "VH-200"}, rec.Fields[models.FieldPlate])
	assert.Equal(t, "VH-100", rec.Fields[models.FieldKey].VehicleID)
	assert.Equal(t, []string{"VH-100", "VH-200"}, rec.ResolvedIDs())
}

func TestClassify_PartialAnnotatesMissingFields(t *testing.T) {
	v := createTestVendorRecord()
	v.PlateNumber = sp("NOPE000")
	v.ReservationNumber = nil

	rec, err := classify(t, []*models.TrackerRecord{createTestTrackerRecord()}, v)
	require.NoError(t, err)

	assert.Equal(t, models.ClassPartialMatch, rec.Class)
	assert.Equal(t, models.AnnotationMissing, rec.Fields[models.FieldPlate].Annotation)
	assert.Equal(t, models.AnnotationMissing, rec.Fields[models.FieldReservation].Annotation)
	assert.Equal(t, models.AnnotationFound, rec.Fields[models.FieldAgreement].Annotation)
}

func TestClassify_NoMatchByProvenance(t *testing.T) {
	for _, tc := range []struct {
		provenance models.Provenance
		subClass   models.SubClass
	}{
		{models.ProvenanceOpen, models.SubClassNone},
		{models.ProvenanceOpenAll, models.SubClassPartialElsewhere},
	} {
		t.Run(tc.provenance.String(), func(t *testing.T) {
			v := &models.VendorRecord{
				RowID:           "U77777777",
				AgreementNumber: sp("U77777777"),
				KeyNumber:       sp("808"),
				Provenance:      tc.provenance,
			}

			rec, err := classify(t, []*models.TrackerRecord{createTestTrackerRecord()}, v)
			require.NoError(t, err)
			assert.Equal(t, models.ClassNoMatch, rec.Class)
			assert.Equal(t, tc.subClass, rec.SubClass)
			assert.Empty(t, rec.ResolvedIDs())
		})
	}
}

func TestClassify_StaleOverlay(t *testing.T) {
	released := createTestTrackerRecord()
	released.Status = models.StatusReleased

	rec, err := classify(t, []*models.TrackerRecord{released}, createTestVendorRecord())
	require.NoError(t, err)

	assert.Equal(t, models.ClassFullMatch, rec.Class)
	assert.True(t, rec.Stale)
	assert.True(t, rec.Fields[models.FieldKey].Stale)
}

func TestClassify_MissingRowSkipsSecondary(t *testing.T) {
	tr := createTestTrackerRecord()
	rec, err := classify(t, []*models.TrackerRecord{tr}, models.NewMissingVendorRecord(tr))
	require.NoError(t, err)

	assert.Equal(t, models.ClassFullMatch, rec.Class)
	assert.Nil(t, rec.Secondary)
}

func TestClassify_Excluded(t *testing.T) {
	n := normalize.Default()
	index := NewTrackerIndex([]*models.TrackerRecord{createTestTrackerRecord()}, n, logger.Discard())
	m := NewMatcher(index, nil, n)
	c := NewClassifier(index, nil, logger.Discard()).WithExclusion(func(v *models.VendorRecord) bool {
		return models.Deref(v.CostControl) == "NONE"
	})

	v := createTestVendorRecord()
	v.CostControl = sp("NONE")
	rec := models.NewReconciliationRecord(v)

	require.NoError(t, c.Classify(rec, m.MatchVendor(v)))
	assert.Equal(t, models.ClassExcluded, rec.Class)
	assert.Empty(t, rec.Fields)
}

func TestClassify_UnresolvedIdentifier(t *testing.T) {
	log, hook := newHookedLogger()
	tr := createTestTrackerRecord()
	index := NewTrackerIndex([]*models.TrackerRecord{tr}, normalize.Default(), log)
	c := NewClassifier(index, nil, log)

	rec := models.NewReconciliationRecord(createTestVendorRecord())
	matches := FieldMatches{
		models.FieldAgreement: {VehicleID: "VH-100", Record: tr},
		models.FieldKey:       {VehicleID: "VH-GONE"},
	}

	err := c.Classify(rec, matches)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnresolvedLookup))
	assert.Equal(t, models.ClassUnresolved, rec.Class)
	assert.True(t, rec.HasErrors())
	assert.Empty(t, rec.MatchedVehicleID)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "Unresolved tracker identifier", entry.Message)
}

func TestClassify_IdentifierConflict(t *testing.T) {
	// Two active records claim the same stable identifier with different
	// keys: the identifier index keeps the first, the agreement key still
	// points at the second.
	first := createTestTrackerRecord()
	second := createTestTrackerRecord()
	second.Vehicle.AgreementNumber = sp("99990000")

	n := normalize.Default()
	index := NewTrackerIndex([]*models.TrackerRecord{first, second}, n, logger.Discard())
	m := NewMatcher(index, nil, n)
	c := NewClassifier(index, nil, logger.Discard())

	v := createTestVendorRecord()
	v.AgreementNumber = sp("U99990000")
	rec := models.NewReconciliationRecord(v)

	require.NoError(t, c.Classify(rec, m.MatchVendor(v)))
	assert.True(t, rec.IdentifierConflict)
	assert.Equal(t, models.ClassFullMatch, rec.Class)
}

func TestClassify_ReclassifyResetsState(t *testing.T) {
	n := normalize.Default()
	released := createTestTrackerRecord()
	released.Status = models.StatusReleased
	index := NewTrackerIndex([]*models.TrackerRecord{released}, n, logger.Discard())
	m := NewMatcher(index, nil, n)
	c := NewClassifier(index, nil, logger.Discard())

	v := createTestVendorRecord()
	rec := models.NewReconciliationRecord(v)
	require.NoError(t, c.Classify(rec, m.MatchVendor(v)))
	require.True(t, rec.Stale)

	require.NoError(t, c.Classify(rec, FieldMatches{}))
	assert.Equal(t, models.ClassNoMatch, rec.Class)
	assert.False(t, rec.Stale)
	assert.Empty(t, rec.MatchedVehicleID)
}
