package matcher

import (
	"testing"

	"fleet-reconciliation-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecondaryChecker_AllMatch(t *testing.T) {
	result := newTestSecondary(t).Check(createTestVendorRecord(), createTestTrackerRecord())

	require.Len(t, result, len(models.SecondaryAttributes))
	for _, attr := range models.SecondaryAttributes {
		assert.Equal(t, models.OutcomeMatch, result[attr].Outcome, attr)
	}
	assert.Equal(t, "123 Main St Fresno CA", result[models.AttrLocation].Tracker)
	assert.Equal(t, "2024-09-01", result[models.AttrPickupDate].Vendor)
}

func TestSecondaryChecker_Location(t *testing.T) {
	translations, err := DefaultTranslations()
	require.NoError(t, err)

	withZip := map[string]*models.Agency{
		"AG-1": {ID: "AG-1", Address: "123 Main St", City: "Fresno", State: "CA", Zip: "93721"},
	}

	tests := []struct {
		name        string
		agencies    map[string]*models.Agency
		containment bool
		location    *string
		agencyID    *string
		want        models.SecondaryOutcome
	}{
		{"exact after normalization", testAgencies(), false, sp("123 MAIN ST, FRESNO CA"), sp("AG-1"), models.OutcomeMatch},
		{"contained", withZip, true, sp("123 Main St., Fresno, CA"), sp("AG-1"), models.OutcomeMatch},
		{"contained but strict", withZip, false, sp("123 Main St., Fresno, CA"), sp("AG-1"), models.OutcomeMismatch},
		{"different place", testAgencies(), true, sp("9 Airport Way, Sacramento, CA"), sp("AG-1"), models.OutcomeMismatch},
		{"vendor blank", testAgencies(), true, sp(" "), sp("AG-1"), models.OutcomeUnknown},
		{"unknown agency", testAgencies(), true, sp("123 Main St"), sp("AG-404"), models.OutcomeUnknown},
		{"no agency on tracker", testAgencies(), true, sp("123 Main St"), nil, models.OutcomeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := createTestVendorRecord()
			v.PickupLocation = tt.location
			tr := createTestTrackerRecord()
			tr.Vehicle.PickupAgencyID = tt.agencyID

			sc := NewSecondaryChecker(translations, tt.agencies, tt.containment)
			assert.Equal(t, tt.want, sc.Check(v, tr)[models.AttrLocation].Outcome)
		})
	}
}

func TestSecondaryChecker_Dates(t *testing.T) {
	sc := newTestSecondary(t)

	v := createTestVendorRecord()
	v.PickupDate = tp(2024, 9, 1)
	v.ExpectedReturn = tp(2024, 10, 2)
	tr := createTestTrackerRecord()
	tr.Vehicle.ReturnDate = nil

	result := sc.Check(v, tr)
	assert.Equal(t, models.OutcomeMatch, result[models.AttrPickupDate].Outcome)
	assert.Equal(t, models.OutcomeUnknown, result[models.AttrReturnDate].Outcome)

	tr.Vehicle.ReturnDate = tp(2024, 9, 30)
	result = sc.Check(v, tr)
	assert.Equal(t, models.OutcomeMismatch, result[models.AttrReturnDate].Outcome)
	assert.Equal(t, []models.SecondaryAttribute{models.AttrReturnDate}, result.Mismatches())
}

func TestSecondaryChecker_Vocabulary(t *testing.T) {
	sc := newTestSecondary(t)

	v := createTestVendorRecord()
	v.Color = sp("BLK")
	tr := createTestTrackerRecord()
	tr.Vehicle.Model = sp("Prius")

	result := sc.Check(v, tr)
	assert.Equal(t, models.OutcomeMatch, result[models.AttrMake].Outcome)
	assert.Equal(t, models.OutcomeNoMapping, result[models.AttrModel].Outcome)
	assert.Equal(t, models.OutcomeMismatch, result[models.AttrColor].Outcome)
	assert.Equal(t, "BLK", result[models.AttrColor].Vendor)
	assert.Equal(t, "White", result[models.AttrColor].Tracker)
}
