package stats

import (
	"context"
	"testing"

	"fleet-reconciliation-service/internal/models"
	"fleet-reconciliation-service/internal/parsers"
	"fleet-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixtures(t *testing.T) ([]*models.TrackerRecord, []*models.RosterMember) {
	t.Helper()
	ctx := context.Background()

	vehicles, _, err := parsers.NewTrackerParser(nil, logger.Discard()).
		ParseTrackerFile(ctx, "../../testdata/fleet/vehicles.json")
	require.NoError(t, err)

	rosterParser, err := parsers.NewRosterParser(nil, logger.Discard())
	require.NoError(t, err)
	roster, _, err := rosterParser.ParseRosterFile(ctx, "../../testdata/fleet/roster.csv")
	require.NoError(t, err)

	return vehicles, roster
}

func TestComputeStats(t *testing.T) {
	vehicles, roster := loadFixtures(t)

	tests := []struct {
		prefix   string
		name     string
		drivers  int
		vehicles int
		ratio    string
	}{
		{"DST", "DST", 2, 4, "2"},
		{"MC", "MC", 1, 3, "3"},
		{"ALL", "ALL", 4, 7, "1.75"},
		{"", "ALL", 4, 7, "1.75"},
		{"LOG", "LOG", 0, 0, "0"},
		// a prefix must be a whole GAP component
		{"DS", "DS", 0, 0, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.prefix, func(t *testing.T) {
			got := ComputeStats(vehicles, roster, tt.prefix)
			assert.Equal(t, tt.name, got.Prefix)
			assert.Equal(t, tt.drivers, got.Drivers)
			assert.Equal(t, tt.vehicles, got.Vehicles)
			assert.True(t, decimal.RequireFromString(tt.ratio).Equal(got.Ratio), got.Ratio.String())
		})
	}
}

func TestComputeStats_Rounding(t *testing.T) {
	gap := "LOG/TR/SV"
	var vehicles []*models.TrackerRecord
	for i := 0; i < 2; i++ {
		vehicles = append(vehicles, &models.TrackerRecord{
			Status:  models.StatusActive,
			Vehicle: models.Vehicle{VehicleID: string(rune('a' + i)), CategoryCode: models.Str("r"), GAP: &gap},
		})
	}
	roster := []*models.RosterMember{
		{Name: "A", GAP: gap, TandM: DriverTandM},
		{Name: "B", GAP: gap, TandM: DriverTandM},
		{Name: "C", GAP: gap, TandM: DriverTandM},
		nil,
	}

	got := ComputeStats(vehicles, roster, "LOG")
	assert.True(t, got.HasDrivers())
	assert.Equal(t, "0.67", got.Ratio.StringFixed(2))
}

func TestComputeGroups(t *testing.T) {
	vehicles, roster := loadFixtures(t)

	groups := ComputeGroups(vehicles, roster, []string{"DST", "MC"})
	require.Len(t, groups, 2)
	assert.Equal(t, "DST", groups[0].Prefix)
	assert.Equal(t, "MC", groups[1].Prefix)
	assert.False(t, ComputeStats(nil, nil, "DST").HasDrivers())
}
