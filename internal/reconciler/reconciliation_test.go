package reconciler

import (
	"context"
	"path/filepath"
	"testing"

	"fleet-reconciliation-service/internal/deployment"
	"fleet-reconciliation-service/internal/matcher"
	"fleet-reconciliation-service/internal/models"
	"fleet-reconciliation-service/internal/parsers"
	"fleet-reconciliation-service/pkg/errors"
	"fleet-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDataDir = "../../testdata/fleet"

func fixtureFiles() parsers.SnapshotFiles {
	return parsers.SnapshotFiles{
		Tracker:    filepath.Join(testDataDir, "vehicles.json"),
		VendorOpen: filepath.Join(testDataDir, "vendor_open.csv"),
		VendorAll:  filepath.Join(testDataDir, "vendor_all.csv"),
		Agencies:   filepath.Join(testDataDir, "agencies.json"),
		Roster:     filepath.Join(testDataDir, "roster.csv"),
	}
}

func newTestService(t *testing.T, config *Config) *ReconciliationService {
	t.Helper()
	service, err := NewReconciliationService(matcher.DefaultMatchingConfig(), config, logger.Discard())
	require.NoError(t, err)
	return service
}

func recordsByRow(result *DeploymentResult) map[string]*models.ReconciliationRecord {
	out := make(map[string]*models.ReconciliationRecord, len(result.Records))
	for _, rec := range result.Records {
		out[rec.Vendor.RowID] = rec
	}
	return out
}

func TestConfig_Validate(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, config.Validate())
	assert.True(t, config.FilterByDeployment)

	config.MaxRecordErrors = -1
	assert.Error(t, config.Validate())

	_, err := NewReconciliationService(nil, config, logger.Discard())
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig))
}

func TestReconciliationRequest_Validate(t *testing.T) {
	request := &ReconciliationRequest{Files: fixtureFiles()}
	assert.True(t, errors.HasCode(request.Validate(), errors.CodeMissingConfig))

	request.Deployment = deployment.New("15x", "22")
	assert.True(t, errors.HasCode(request.Validate(), errors.CodeInvalidConfig))

	request.Deployment = deployment.New("155", "22")
	assert.NoError(t, request.Validate())

	request.Files.Tracker = ""
	assert.True(t, errors.HasCode(request.Validate(), errors.CodeMissingTrackerSnapshot))
}

func TestReconciliationService_ProcessReconciliation(t *testing.T) {
	service := newTestService(t, nil)

	result, err := service.ProcessReconciliation(context.Background(), &ReconciliationRequest{
		Deployment: deployment.New("155", "22"),
		Files:      fixtureFiles(),
	})
	require.NoError(t, err)

	var order []string
	for _, rec := range result.Records {
		order = append(order, rec.Vendor.RowID)
	}
	assert.Equal(t, []string{
		"U12345678", "U23456789", "U90000001", "U90000002", "U66666666",
		"U34567890",
		"missing:400", "missing:900",
	}, order)

	byRow := recordsByRow(result)

	full := byRow["U12345678"]
	assert.Equal(t, models.ClassFullMatch, full.Class)
	assert.Equal(t, "100", full.MatchedVehicleID)
	assert.False(t, full.Stale, "the released duplicate key owner is not chosen")
	assert.Equal(t, models.OutcomeMatch, full.Secondary[models.AttrLocation].Outcome)
	assert.Equal(t, models.OutcomeMatch, full.Secondary[models.AttrPickupDate].Outcome)
	assert.Equal(t, models.OutcomeMatch, full.Secondary[models.AttrMake].Outcome)

	partial := byRow["U23456789"]
	assert.Equal(t, models.ClassPartialMatch, partial.Class)
	assert.Equal(t, "300", partial.Fields[models.FieldKey].VehicleID)
	assert.Equal(t, "200", partial.Fields[models.FieldPlate].VehicleID)
	for _, field := range models.KeyFields {
		assert.Equal(t, models.AnnotationFound, partial.Fields[field].Annotation, field)
	}

	assert.Equal(t, models.ClassNoMatch, byRow["U90000001"].Class)
	assert.Equal(t, models.SubClassNone, byRow["U90000001"].SubClass)
	assert.Equal(t, models.ClassExcluded, byRow["U90000002"].Class)
	assert.Equal(t, models.ClassNoMatch, byRow["U66666666"].Class)

	promoted := byRow["U34567890"]
	assert.Equal(t, models.ProvenanceOpenAll, promoted.Vendor.Provenance)
	assert.Equal(t, models.ClassFullMatch, promoted.Class)
	assert.Equal(t, "800", promoted.MatchedVehicleID)

	missing := byRow["missing:400"]
	assert.Equal(t, models.ProvenanceMissing, missing.Vendor.Provenance)
	assert.Equal(t, models.ClassPartialMatch, missing.Class)
	assert.Equal(t, models.AnnotationMissing, missing.Fields[models.FieldAgreement].Annotation)
	assert.Nil(t, missing.Secondary)

	summary := result.Summary
	assert.Equal(t, 9, summary.TrackerRecords)
	assert.Equal(t, 5, summary.VendorOpenRows)
	assert.Equal(t, 7, summary.VendorAllRows)
	assert.Equal(t, 1, summary.Promoted)
	assert.Equal(t, 2, summary.Synthesized)
	assert.Equal(t, 2, summary.Count(models.ClassFullMatch))
	assert.Equal(t, 3, summary.Count(models.ClassPartialMatch))
	assert.Equal(t, 2, summary.Count(models.ClassNoMatch))
	assert.Equal(t, 1, summary.Count(models.ClassExcluded))
	assert.Equal(t, 0, summary.Count(models.ClassUnresolved))
	assert.True(t, decimal.RequireFromString("0.2857").Equal(summary.FullMatchRate), summary.FullMatchRate.String())

	assert.Equal(t, 1, result.Filter["vendor_open"].Dropped)
	assert.Len(t, result.All, 9)
	assert.Empty(t, result.Warnings)
	assert.Nil(t, result.RecordErrors)
	assert.Len(t, result.ParseWarnings, 3)
}

func TestReconciliationService_NoMatchingDeploymentRows(t *testing.T) {
	service := newTestService(t, nil)

	result, err := service.ProcessReconciliation(context.Background(), &ReconciliationRequest{
		Deployment: deployment.New("999", "22"),
		Files:      fixtureFiles(),
	})
	require.NoError(t, err, "an empty deployment is a warning, not a failure")

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, errors.CodeNoMatchingDeploymentRows, result.Warnings[0].Code)
	// only the excluded noise row is left
	assert.Equal(t, 1, result.Summary.Count(models.ClassExcluded))
}

func TestReconciliationService_MissingTrackerSnapshot(t *testing.T) {
	service := newTestService(t, nil)

	files := fixtureFiles()
	files.Tracker = filepath.Join(t.TempDir(), "vehicles.json")
	_, err := service.ProcessReconciliation(context.Background(), &ReconciliationRequest{
		Deployment: deployment.New("155", "22"),
		Files:      files,
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeMissingTrackerSnapshot))

	_, err = service.ReconcileSnapshot(deployment.New("155", "22"), nil)
	assert.True(t, errors.HasCode(err, errors.CodeMissingTrackerSnapshot))
}

func TestReconciliationService_UnfilteredRun(t *testing.T) {
	config := DefaultConfig()
	config.FilterByDeployment = false
	service := newTestService(t, config)

	snap := &parsers.Snapshot{
		Tracker: []*models.TrackerRecord{
			createTrackerRecord("VH-1", models.StatusActive, "1001", "1001US1", "11", "CA", "AAA111"),
		},
		VendorOpen: []*models.VendorRecord{
			createVendorRecord("U1001", models.ProvenanceOpen, "U1001", "1001-US-1", "11", "CA", "AAA111"),
			withCostControl("U2", sp("DR204-22")),
		},
	}

	result, err := service.ReconcileSnapshot(deployment.New("155", "22"), snap)
	require.NoError(t, err)

	require.Len(t, result.Records, 2)
	assert.Equal(t, models.ClassFullMatch, result.Records[0].Class)
	assert.Equal(t, models.ClassNoMatch, result.Records[1].Class)
	assert.Empty(t, result.Filter)
	assert.Empty(t, result.Warnings)
	assert.True(t, decimal.RequireFromString("0.5").Equal(result.Summary.FullMatchRate))
}

func TestReconciliationService_OtherDeploymentRowIsNotMissing(t *testing.T) {
	service := newTestService(t, nil)

	listedElsewhere := createVendorRecord("U7007", models.ProvenanceOpenAll, "U7007", "", "77", "", "")
	listedElsewhere.CostControl = sp("Shelter DR204-22")
	snap := &parsers.Snapshot{
		Tracker: []*models.TrackerRecord{
			createTrackerRecord("VH-1", models.StatusActive, "1001", "", "11", "", ""),
			createTrackerRecord("VH-7", models.StatusActive, "", "", "77", "", ""),
		},
		VendorOpen: []*models.VendorRecord{
			createVendorRecord("U1001", models.ProvenanceOpen, "U1001", "", "11", "", ""),
		},
		VendorAll: []*models.VendorRecord{
			createVendorRecord("U1001", models.ProvenanceOpenAll, "U1001", "", "11", "", ""),
			listedElsewhere,
		},
	}

	result, err := service.ReconcileSnapshot(deployment.New("155", "22"), snap)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Filter["vendor_all"].Dropped)
	assert.Zero(t, result.Summary.Synthesized)
	assert.Zero(t, result.Summary.Promoted)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "U1001", result.Records[0].Vendor.RowID)
	assert.Equal(t, []string{"U1001"}, rowIDs(result.All))
}

func TestReconciliationService_FreeTextDeploymentCode(t *testing.T) {
	service := newTestService(t, nil)

	tagged := createVendorRecord("U7007", models.ProvenanceOpenAll, "U7007", "", "77", "", "")
	tagged.CostControl = sp("Red Cross DR155-22")
	snap := &parsers.Snapshot{
		Tracker: []*models.TrackerRecord{
			createTrackerRecord("VH-7", models.StatusActive, "", "", "77", "", ""),
		},
		VendorOpen: []*models.VendorRecord{},
		VendorAll:  []*models.VendorRecord{tagged},
	}

	result, err := service.ReconcileSnapshot(deployment.New("155", "22"), snap)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Filter["vendor_all"].Matched)
	assert.Zero(t, result.Summary.Synthesized)
	require.Len(t, result.Records, 1)
	assert.Equal(t, models.ProvenanceOpenAll, result.Records[0].Vendor.Provenance)
	assert.Equal(t, models.ClassPartialMatch, result.Records[0].Class)
}

func TestReconciliationService_StaleAndConflict(t *testing.T) {
	service := newTestService(t, nil)

	released := createTrackerRecord("VH-9", models.StatusReleased, "9009", "9009US9", "99", "WA", "OLD999")
	snap := &parsers.Snapshot{
		Tracker: []*models.TrackerRecord{released},
		VendorOpen: []*models.VendorRecord{
			createVendorRecord("U9009", models.ProvenanceOpen, "U9009", "9009US9", "99", "WA", "OLD999"),
		},
	}

	result, err := service.ReconcileSnapshot(deployment.New("155", "22"), snap)
	require.NoError(t, err)

	rec := result.Records[0]
	assert.Equal(t, models.ClassFullMatch, rec.Class)
	assert.True(t, rec.Stale)
	assert.Equal(t, 1, result.Summary.Stale)
	assert.Empty(t, result.Summary.IdentifierConflicts)
}

func TestReconciliationService_DeploymentsAreIsolated(t *testing.T) {
	service := newTestService(t, nil)
	files := fixtureFiles()

	first, err := service.ProcessReconciliation(context.Background(), &ReconciliationRequest{Deployment: deployment.New("155", "22"), Files: files})
	require.NoError(t, err)
	second, err := service.ProcessReconciliation(context.Background(), &ReconciliationRequest{Deployment: deployment.New("155", "22"), Files: files})
	require.NoError(t, err)

	assert.Equal(t, first.Summary.ByClass, second.Summary.ByClass)
	assert.Equal(t, first.Summary.Synthesized, second.Summary.Synthesized)
}
