// Package stats computes rental vehicle ratios per GAP group: how many
// active rental vehicles a group holds against how many of its roster
// members are authorized to drive.
package stats

import (
	"regexp"
	"strings"

	"fleet-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// AllGroups selects every roster member and vehicle regardless of GAP.
const AllGroups = "ALL"

// DriverTandM is the T&M code of roster members who drive.
const DriverTandM = "MDA"

// GroupStats holds the counts of one GAP group.
type GroupStats struct {
	Prefix   string `json:"prefix"`
	Drivers  int    `json:"drivers"`
	Vehicles int    `json:"vehicles"`
	// Ratio is vehicles per driver, rounded to two places. It is zero when
	// the group has no drivers.
	Ratio decimal.Decimal `json:"ratio"`
}

// HasDrivers reports whether the ratio is meaningful.
func (g *GroupStats) HasDrivers() bool {
	return g.Drivers > 0
}

// ComputeStats counts the drivers and active rental vehicles whose GAP
// starts with prefix followed by "/". An empty prefix or AllGroups matches
// everything.
func ComputeStats(vehicles []*models.TrackerRecord, roster []*models.RosterMember, prefix string) *GroupStats {
	prefix = strings.TrimSpace(prefix)
	match := gapMatcher(prefix)

	stats := &GroupStats{Prefix: prefix, Ratio: decimal.Zero}
	if prefix == "" {
		stats.Prefix = AllGroups
	}

	for _, member := range roster {
		if member == nil || member.TandM != DriverTandM {
			continue
		}
		if match(member.GAP) {
			stats.Drivers++
		}
	}

	for _, rec := range vehicles {
		if rec == nil || !rec.IsActive() || !rec.IsRental() {
			continue
		}
		if match(models.Deref(rec.Vehicle.GAP)) {
			stats.Vehicles++
		}
	}

	if stats.Drivers > 0 {
		stats.Ratio = decimal.NewFromInt(int64(stats.Vehicles)).
			Div(decimal.NewFromInt(int64(stats.Drivers))).
			Round(2)
	}
	return stats
}

// ComputeGroups runs ComputeStats for each prefix, in order.
func ComputeGroups(vehicles []*models.TrackerRecord, roster []*models.RosterMember, prefixes []string) []*GroupStats {
	out := make([]*GroupStats, 0, len(prefixes))
	for _, prefix := range prefixes {
		out = append(out, ComputeStats(vehicles, roster, prefix))
	}
	return out
}

func gapMatcher(prefix string) func(string) bool {
	if prefix == "" || strings.EqualFold(prefix, AllGroups) {
		return func(string) bool { return true }
	}
	re := regexp.MustCompile("^" + regexp.QuoteMeta(prefix) + "/")
	return re.MatchString
}
