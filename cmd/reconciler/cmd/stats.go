package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"fleet-reconciliation-service/internal/parsers"
	"fleet-reconciliation-service/internal/stats"
	"fleet-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show rental vehicles per driver for GAP groups",
	Long: `Stats counts, per GAP group, the roster members authorized to drive
(T&M "MDA") and the active rental vehicles assigned to the group, and prints
the number of vehicles per driver. ALL selects everyone.

Examples:
  reconciler stats --tracker-file vehicles.json --roster-file roster.csv
  reconciler stats --tracker-file vehicles.json --roster-file roster.csv --groups ALL,DST,MC --json`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringP("tracker-file", "t", "", "path to the tracker vehicles JSON file (required)")
	statsCmd.Flags().StringP("roster-file", "r", "", "path to the staffing roster CSV file (required)")
	statsCmd.Flags().StringSliceP("groups", "g", []string{stats.AllGroups}, "comma-separated GAP group prefixes")
	statsCmd.Flags().Bool("json", false, "print JSON instead of a table")

	statsCmd.MarkFlagRequired("tracker-file")
	statsCmd.MarkFlagRequired("roster-file")
}

func runStats(cmd *cobra.Command, args []string) error {
	trackerPath, _ := cmd.Flags().GetString("tracker-file")
	rosterPath, _ := cmd.Flags().GetString("roster-file")
	groups, _ := cmd.Flags().GetStringSlice("groups")
	asJSON, _ := cmd.Flags().GetBool("json")

	if err := validateFileExists(trackerPath, "tracker file"); err != nil {
		return err
	}
	if err := validateFileExists(rosterPath, "roster file"); err != nil {
		return err
	}

	ctx := commandContext(cmd)
	log := logger.GetGlobalLogger()

	vehicles, _, err := parsers.NewTrackerParser(nil, log).ParseTrackerFile(ctx, trackerPath)
	if err != nil {
		return err
	}

	rosterParser, err := parsers.NewRosterParser(nil, log)
	if err != nil {
		return err
	}
	roster, _, err := rosterParser.ParseRosterFile(ctx, rosterPath)
	if err != nil {
		return err
	}

	results := stats.ComputeGroups(vehicles, roster, groups)
	if asJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	}

	printStats(cmd.OutOrStdout(), results)
	return nil
}

func printStats(w io.Writer, results []*stats.GroupStats) {
	fmt.Fprintf(w, "%-10s %8s %9s %7s\n", "GROUP", "DRIVERS", "VEHICLES", "RATIO")
	for _, g := range results {
		ratio := "-"
		if g.HasDrivers() {
			ratio = g.Ratio.StringFixed(2)
		}
		fmt.Fprintf(w, "%-10s %8d %9d %7s\n", g.Prefix, g.Drivers, g.Vehicles, ratio)
	}
}
