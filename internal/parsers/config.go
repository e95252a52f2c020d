package parsers

import (
	"strings"

	"fleet-reconciliation-service/pkg/errors"
)

// Vendor column groups. Each maps to the header names the vendor has used
// for it across export versions.
const (
	ColAgreement      = "agreement"
	ColReservation    = "reservation"
	ColKeyNumber      = "key_number"
	ColPlateState     = "plate_state"
	ColPlateNumber    = "plate_number"
	ColMake           = "make"
	ColModel          = "model"
	ColColor          = "color"
	ColPickupLocation = "pickup_location"
	ColPickupDate     = "pickup_date"
	ColExpectedReturn = "expected_return"
	ColCostControl    = "cost_control"
)

// VendorParserConfig holds configuration for parsing vendor rental exports
type VendorParserConfig struct {
	Parse *ParseConfig `json:"-"`
	// ColumnAliases maps a column group to candidate header names, tried in
	// order and matched case-insensitively.
	ColumnAliases map[string][]string `json:"column_aliases"`
	// RequiredColumns must each resolve to a header.
	RequiredColumns []string `json:"required_columns"`
}

// DefaultVendorParserConfig returns the column layout of the Avis open
// rentals report.
func DefaultVendorParserConfig() *VendorParserConfig {
	return &VendorParserConfig{
		Parse: DefaultParseConfig(),
		ColumnAliases: map[string][]string{
			ColAgreement:      {"Rental Agreement Number", "Agreement Number", "RA Number", "RA #", "Agreement"},
			ColReservation:    {"Reservation Number", "Reservation", "Res Number", "Res #"},
			ColKeyNumber:      {"MVA", "MVA Number", "Key Number", "Key"},
			ColPlateState:     {"License Plate State Code", "Plate State", "License State"},
			ColPlateNumber:    {"License Plate Number", "Plate Number", "License Plate", "Plate"},
			ColMake:           {"Vehicle Make", "Make"},
			ColModel:          {"Vehicle Model", "Model"},
			ColColor:          {"Exterior Color", "Vehicle Color", "Color"},
			ColPickupLocation: {"Pickup Location", "Pick Up Location", "Rental Location"},
			ColPickupDate:     {"Pickup Date", "Pick Up Date", "Checkout Date"},
			ColExpectedReturn: {"Expected Return Date", "Return Date", "Due Date"},
			ColCostControl:    {"Cost Control Number", "Cost Control", "CC Number"},
		},
		RequiredColumns: []string{ColAgreement, ColKeyNumber},
	}
}

// Validate checks the configuration
func (c *VendorParserConfig) Validate() error {
	if c.Parse != nil {
		if err := c.Parse.Validate(); err != nil {
			return err
		}
	}
	for _, col := range c.RequiredColumns {
		if len(c.ColumnAliases[col]) == 0 {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "vendor.column_aliases."+col, "", nil)
		}
	}
	return nil
}

// WithAlias returns a copy that also accepts header for column group col,
// ahead of the built-in names.
func (c *VendorParserConfig) WithAlias(col, header string) *VendorParserConfig {
	clone := *c
	clone.ColumnAliases = make(map[string][]string, len(c.ColumnAliases))
	for k, v := range c.ColumnAliases {
		clone.ColumnAliases[k] = append([]string(nil), v...)
	}
	clone.ColumnAliases[col] = append([]string{strings.TrimSpace(header)}, clone.ColumnAliases[col]...)
	return &clone
}

func (c *VendorParserConfig) required() map[string][]string {
	out := make(map[string][]string, len(c.RequiredColumns))
	for _, col := range c.RequiredColumns {
		out[col] = c.ColumnAliases[col]
	}
	return out
}

// RosterParserConfig holds configuration for parsing the staffing roster
type RosterParserConfig struct {
	Parse       *ParseConfig `json:"-"`
	NameColumn  string       `json:"name_column"`
	GAPColumn   string       `json:"gap_column"`
	TandMColumn string       `json:"tandm_column"`
}

// DefaultRosterParserConfig returns the column names of the roster export.
func DefaultRosterParserConfig() *RosterParserConfig {
	return &RosterParserConfig{
		Parse:       DefaultParseConfig(),
		NameColumn:  "Name",
		GAPColumn:   "GAP(s)",
		TandMColumn: "T&M",
	}
}

// Validate checks the configuration
func (c *RosterParserConfig) Validate() error {
	if strings.TrimSpace(c.NameColumn) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "roster.name_column", "", nil)
	}
	if strings.TrimSpace(c.GAPColumn) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "roster.gap_column", "", nil)
	}
	if strings.TrimSpace(c.TandMColumn) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "roster.tandm_column", "", nil)
	}
	return nil
}

// SnapshotConfig holds configuration for loading a deployment's snapshot
type SnapshotConfig struct {
	MaxConcurrency int                 `json:"max_concurrency"`
	Vendor         *VendorParserConfig `json:"vendor"`
	Roster         *RosterParserConfig `json:"roster"`
}

// DefaultSnapshotConfig returns a configuration with sensible defaults
func DefaultSnapshotConfig() *SnapshotConfig {
	return &SnapshotConfig{
		MaxConcurrency: 4,
		Vendor:         DefaultVendorParserConfig(),
		Roster:         DefaultRosterParserConfig(),
	}
}

// Validate checks the configuration
func (c *SnapshotConfig) Validate() error {
	if c.MaxConcurrency <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "snapshot.max_concurrency", c.MaxConcurrency, nil)
	}
	if c.Vendor != nil {
		if err := c.Vendor.Validate(); err != nil {
			return err
		}
	}
	if c.Roster != nil {
		if err := c.Roster.Validate(); err != nil {
			return err
		}
	}
	return nil
}
