package matcher

import (
	"strings"
	"time"

	"fleet-reconciliation-service/internal/models"
	"fleet-reconciliation-service/internal/normalize"
)

// SecondaryChecker compares the non-identifying attributes of a fully
// matched vendor row and tracker record. Each attribute is judged on its own
// and never changes the primary class.
type SecondaryChecker struct {
	translations *Translations
	agencies     map[string]*models.Agency
	containment  bool
}

// NewSecondaryChecker creates a checker. agencies maps tracker agency IDs to
// the agency directory entries used to build comparable locations.
func NewSecondaryChecker(translations *Translations, agencies map[string]*models.Agency, containment bool) *SecondaryChecker {
	if agencies == nil {
		agencies = make(map[string]*models.Agency)
	}
	return &SecondaryChecker{
		translations: translations,
		agencies:     agencies,
		containment:  containment,
	}
}

// Check runs every secondary comparison.
func (sc *SecondaryChecker) Check(v *models.VendorRecord, t *models.TrackerRecord) models.SecondaryResult {
	veh := &t.Vehicle
	return models.SecondaryResult{
		models.AttrLocation:   sc.checkLocation(v, t),
		models.AttrPickupDate: checkDate(v.PickupDate, veh.PickupDate),
		models.AttrReturnDate: checkDate(v.ExpectedReturn, veh.ReturnDate),
		models.AttrMake:       sc.checkVocabulary(models.AttrMake, veh.Make, v.Make),
		models.AttrModel:      sc.checkVocabulary(models.AttrModel, veh.Model, v.Model),
		models.AttrColor:      sc.checkVocabulary(models.AttrColor, veh.Color, v.Color),
	}
}

func (sc *SecondaryChecker) checkLocation(v *models.VendorRecord, t *models.TrackerRecord) models.SecondaryCheck {
	check := models.SecondaryCheck{
		Outcome: models.OutcomeUnknown,
		Vendor:  models.Deref(v.PickupLocation),
	}

	var agency *models.Agency
	if t.Vehicle.PickupAgencyID != nil {
		agency = sc.agencies[*t.Vehicle.PickupAgencyID]
	}
	if agency != nil {
		check.Tracker = agency.LocationString()
	}

	vendorLoc := normalize.Location(check.Vendor)
	trackerLoc := normalize.Location(check.Tracker)
	if vendorLoc == "" || trackerLoc == "" {
		return check
	}

	switch {
	case vendorLoc == trackerLoc:
		check.Outcome = models.OutcomeMatch
	case sc.containment && (strings.Contains(vendorLoc, trackerLoc) || strings.Contains(trackerLoc, vendorLoc)):
		check.Outcome = models.OutcomeMatch
	default:
		check.Outcome = models.OutcomeMismatch
	}
	return check
}

// checkDate compares calendar dates only. Time of day is ignored because
// exports that fail to parse a time fall back to midnight.
func checkDate(vendor, tracker *time.Time) models.SecondaryCheck {
	check := models.SecondaryCheck{
		Outcome: models.OutcomeUnknown,
		Vendor:  models.FormatDate(vendor),
		Tracker: models.FormatDate(tracker),
	}
	if vendor == nil || tracker == nil {
		return check
	}

	if models.SameDate(*vendor, *tracker) {
		check.Outcome = models.OutcomeMatch
	} else {
		check.Outcome = models.OutcomeMismatch
	}
	return check
}

func (sc *SecondaryChecker) checkVocabulary(attr models.SecondaryAttribute, tracker, vendor *string) models.SecondaryCheck {
	return models.SecondaryCheck{
		Outcome: sc.translations.Compare(attr, models.Deref(tracker), models.Deref(vendor)),
		Vendor:  models.Deref(vendor),
		Tracker: models.Deref(tracker),
	}
}
