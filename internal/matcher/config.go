// Package matcher provides the record-matching engine that links vendor
// rental rows to tracker vehicle records.
//
// Matching runs in four stages, each with its own type:
//  1. Index building: one lookup map per identifying field and source,
//     with deterministic resolution of key collisions (TrackerIndex,
//     VendorIndex)
//  2. Cross lookup: every vendor row is looked up on all four fields and
//     the side table records which records were seen (Matcher)
//  3. Classification: the per-field identifiers decide the confidence
//     class of the row, with stale and conflict annotations layered on top
//     (Classifier)
//  4. Secondary checks: full matches additionally compare location, dates
//     and make/model/color (SecondaryChecker)
//
// There is no numeric score. A row either resolves all four fields to the
// same vehicle, resolves none, or is a partial match annotated per field.
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	norm, _ := normalize.New(config.Normalization, log)
//	trackerIdx := matcher.NewTrackerIndex(trackerRecords, norm, log)
//	m := matcher.NewMatcher(trackerIdx, nil, norm)
//	classifier := matcher.NewClassifier(trackerIdx, checker, log)
//	for _, row := range open {
//		rec := models.NewReconciliationRecord(row)
//		err := classifier.Classify(rec, m.MatchVendor(row))
//	}
package matcher

import (
	"fmt"
	"strings"

	"fleet-reconciliation-service/internal/normalize"
)

// MatchingConfig holds the matching policy for one deployment run.
type MatchingConfig struct {
	// Normalization is the field normalization policy.
	Normalization *normalize.Config `json:"normalization" yaml:"normalization"`

	// VendorName identifies tracker records managed by the vendor whose feed
	// is being reconciled.
	VendorName string `json:"vendor_name" yaml:"vendor_name"`

	// EnableSecondaryChecks runs the location/date/vehicle comparisons on
	// full matches.
	EnableSecondaryChecks bool `json:"enable_secondary_checks" yaml:"enable_secondary_checks"`

	// LocationContainment accepts a location as matching when one
	// normalized string contains the other, not only on equality.
	LocationContainment bool `json:"location_containment" yaml:"location_containment"`

	// TranslationsFile overrides the built-in make/model/color tables.
	TranslationsFile string `json:"translations_file,omitempty" yaml:"translations_file,omitempty"`
}

// DefaultMatchingConfig returns a configuration with sensible defaults
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		Normalization:         normalize.DefaultConfig(),
		VendorName:            "Avis",
		EnableSecondaryChecks: true,
		LocationContainment:   true,
	}
}

// StrictMatchingConfig returns a configuration that only accepts exact
// location equality.
func StrictMatchingConfig() *MatchingConfig {
	config := DefaultMatchingConfig()
	config.LocationContainment = false
	return config
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.Normalization == nil {
		return fmt.Errorf("normalization config is required")
	}
	if err := mc.Normalization.Validate(); err != nil {
		return fmt.Errorf("invalid normalization config: %w", err)
	}
	if strings.TrimSpace(mc.VendorName) == "" {
		return fmt.Errorf("vendor name cannot be empty")
	}
	return nil
}

// Clone creates a deep copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}

	c := *mc
	if mc.Normalization != nil {
		n := *mc.Normalization
		c.Normalization = &n
	}
	return &c
}
