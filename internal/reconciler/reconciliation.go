package reconciler

import (
	"context"
	"fmt"
	"time"

	"fleet-reconciliation-service/internal/deployment"
	"fleet-reconciliation-service/internal/matcher"
	"fleet-reconciliation-service/internal/models"
	"fleet-reconciliation-service/internal/normalize"
	"fleet-reconciliation-service/internal/parsers"
	"fleet-reconciliation-service/pkg/errors"
	"fleet-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// ReconciliationService reconciles the snapshot of one deployment.
type ReconciliationService struct {
	config         *Config
	matchingConfig *matcher.MatchingConfig
	normalizer     *normalize.Normalizer
	translations   *matcher.Translations
	loader         *parsers.SnapshotLoader
	logger         logger.Logger
}

// Config holds configuration options for the reconciliation service
type Config struct {
	// FilterByDeployment drops vendor rows whose cost-control code names
	// another deployment.
	FilterByDeployment bool `json:"filter_by_deployment" yaml:"filter_by_deployment"`

	// MaxRecordErrors caps the per-record errors kept on a result. Every
	// error is still counted. Zero keeps them all.
	MaxRecordErrors int `json:"max_record_errors" yaml:"max_record_errors"`

	// StopOnError aborts a multi-deployment run at the first failed
	// deployment instead of moving on to the next one.
	StopOnError bool `json:"stop_on_error" yaml:"stop_on_error"`

	// Snapshot configures the file parsers.
	Snapshot *parsers.SnapshotConfig `json:"snapshot,omitempty" yaml:"-"`
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		FilterByDeployment: true,
		MaxRecordErrors:    100,
		Snapshot:           parsers.DefaultSnapshotConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxRecordErrors < 0 {
		return fmt.Errorf("max record errors cannot be negative, got %d", c.MaxRecordErrors)
	}
	if c.Snapshot != nil {
		if err := c.Snapshot.Validate(); err != nil {
			return fmt.Errorf("invalid snapshot config: %w", err)
		}
	}
	return nil
}

// ReconciliationRequest names a deployment and its snapshot files.
type ReconciliationRequest struct {
	Deployment *deployment.Deployment `json:"deployment"`
	Files      parsers.SnapshotFiles  `json:"files"`
}

// Validate validates the reconciliation request
func (r *ReconciliationRequest) Validate() error {
	if r.Deployment == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "deployment", "", nil)
	}
	if err := r.Deployment.Validate(); err != nil {
		return err
	}
	return r.Files.Validate()
}

// DeploymentResult is the classified record set of one deployment, ready
// for rendering.
type DeploymentResult struct {
	RunID      string                 `json:"run_id,omitempty"`
	Deployment *deployment.Deployment `json:"deployment"`

	// Records holds one classified record per row of the augmented open
	// list, in order: the vendor's open rows, then promoted rows, then
	// synthesized ones.
	Records []*models.ReconciliationRecord `json:"records"`
	// All is the augmented all-records list.
	All []*models.VendorRecord `json:"-"`

	Summary        *ResultSummary            `json:"summary"`
	Warnings       []*errors.ReconcilerError `json:"warnings,omitempty"`
	RecordErrors   *errors.ErrorSummary      `json:"record_errors,omitempty"`
	ParseWarnings  []*parsers.ParseError     `json:"-"`
	IndexConflicts []matcher.KeyConflict     `json:"index_conflicts,omitempty"`
	Filter         map[string]*FilterResult  `json:"filter,omitempty"`
	ProcessedAt    time.Time                 `json:"processed_at"`
}

// ResultSummary provides a high-level overview of one deployment's results
type ResultSummary struct {
	TrackerRecords int `json:"tracker_records"`
	VendorOpenRows int `json:"vendor_open_rows"`
	VendorAllRows  int `json:"vendor_all_rows"`

	Promoted    int `json:"promoted"`
	Synthesized int `json:"synthesized"`

	ByClass             map[models.MatchClass]int `json:"by_class"`
	PartialElsewhere    int                       `json:"partial_elsewhere"`
	Stale               int                       `json:"stale"`
	IdentifierConflicts int                       `json:"identifier_conflicts"`
	SecondaryMismatches int                       `json:"secondary_mismatches"`

	// FullMatchRate is the share of classified rows, excluded ones aside,
	// that matched on all four fields.
	FullMatchRate decimal.Decimal `json:"full_match_rate"`

	ProcessingDuration time.Duration `json:"processing_duration"`
}

// Count returns the number of records with class c.
func (s *ResultSummary) Count(c models.MatchClass) int {
	return s.ByClass[c]
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(
	matchingConfig *matcher.MatchingConfig,
	config *Config,
	log logger.Logger,
) (*ReconciliationService, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", "", err)
	}
	if matchingConfig == nil {
		matchingConfig = matcher.DefaultMatchingConfig()
	}
	if err := matchingConfig.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", "", err)
	}

	log = logger.OrGlobal(log).WithComponent("reconciliation_service")

	normalizer, err := normalize.New(matchingConfig.Normalization, log)
	if err != nil {
		return nil, err
	}

	translations, err := loadTranslations(matchingConfig.TranslationsFile)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "translations_file", matchingConfig.TranslationsFile, err)
	}

	loader, err := parsers.NewSnapshotLoader(config.Snapshot, normalizer, log)
	if err != nil {
		return nil, err
	}

	return &ReconciliationService{
		config:         config,
		matchingConfig: matchingConfig,
		normalizer:     normalizer,
		translations:   translations,
		loader:         loader,
		logger:         log,
	}, nil
}

func loadTranslations(path string) (*matcher.Translations, error) {
	if path == "" {
		return matcher.DefaultTranslations()
	}
	return matcher.LoadTranslations(path)
}

// GetConfiguration returns the current configuration
func (rs *ReconciliationService) GetConfiguration() *Config {
	return rs.config
}

// GetMatchingConfig returns the matching configuration
func (rs *ReconciliationService) GetMatchingConfig() *matcher.MatchingConfig {
	return rs.matchingConfig
}

// ProcessReconciliation loads the snapshot files of a deployment and
// reconciles them.
func (rs *ReconciliationService) ProcessReconciliation(
	ctx context.Context,
	request *ReconciliationRequest,
) (*DeploymentResult, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	snap, err := rs.loader.Load(ctx, request.Files)
	if err != nil {
		return nil, err
	}

	result, err := rs.ReconcileSnapshot(request.Deployment, snap)
	if err != nil {
		return nil, err
	}
	result.ParseWarnings = snap.ParseWarnings()
	return result, nil
}

// ReconcileSnapshot runs the reconciliation of one deployment over an
// already loaded snapshot.
//
// Per-record failures are recorded on the record and in the result and
// never stop the run. The only fatal condition is a missing tracker
// snapshot.
func (rs *ReconciliationService) ReconcileSnapshot(d *deployment.Deployment, snap *parsers.Snapshot) (*DeploymentResult, error) {
	if d == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "deployment", "", nil)
	}
	if snap == nil {
		return nil, errors.ReconciliationError(errors.CodeMissingTrackerSnapshot, d.ID(), nil)
	}

	startTime := time.Now()
	log := rs.logger.WithField("deployment", d.ID())
	op := logger.NewOperationLogger("reconcile_deployment", log)

	result := &DeploymentResult{
		Deployment:  d,
		Filter:      make(map[string]*FilterResult),
		ProcessedAt: startTime,
		Summary: &ResultSummary{
			TrackerRecords: len(snap.Tracker),
			ByClass:        make(map[models.MatchClass]int),
		},
	}

	// Step 1: keep the vendor rows of this deployment. The all-records list
	// stays whole: a superset row of another deployment still proves the
	// vendor lists a tracker vehicle.
	op.Step("filter")
	filter := NewDeploymentFilter(d, log)
	open, superset := snap.VendorOpen, snap.VendorAll
	if superset == nil {
		superset = snap.VendorOpen
	}
	if rs.config.FilterByDeployment {
		openFilter := filter.Filter(open)
		result.Filter["vendor_open"] = openFilter
		open = openFilter.Kept

		if snap.VendorAll != nil {
			result.Filter["vendor_all"] = filter.Filter(snap.VendorAll)
		}

		if openFilter.Matched == 0 {
			warning := errors.ReconciliationError(errors.CodeNoMatchingDeploymentRows, d.ID(), nil)
			result.Warnings = append(result.Warnings, warning)
			log.WithField("code", warning.Code).Warn("No vendor rows match the deployment")
		}
	}

	// Step 2: fill the gaps between the two sources
	op.Step("gap_fill")
	vendorName := d.Vendor
	if vendorName == "" {
		vendorName = rs.matchingConfig.VendorName
	}
	gapFiller := NewGapFiller(rs.normalizer, vendorName, log)
	if rs.config.FilterByDeployment {
		gapFiller.WithPromotionFilter(filter.Keeps)
	}
	gaps := gapFiller.Reconcile(snap.Tracker, superset, open)
	result.All = gaps.All
	result.Summary.VendorOpenRows = len(open)
	result.Summary.VendorAllRows = len(gaps.All) - len(gaps.Synthesized)
	result.Summary.Promoted = len(gaps.Promoted)
	result.Summary.Synthesized = len(gaps.Synthesized)

	// Step 3: index the tracker and classify every open row
	op.Step("classify")
	trackerIndex := matcher.NewTrackerIndex(snap.Tracker, rs.normalizer, log)
	result.IndexConflicts = trackerIndex.Conflicts()

	m := matcher.NewMatcher(trackerIndex, nil, rs.normalizer)
	var secondary *matcher.SecondaryChecker
	if rs.matchingConfig.EnableSecondaryChecks {
		secondary = matcher.NewSecondaryChecker(rs.translations, snap.Agencies, rs.matchingConfig.LocationContainment)
	}
	classifier := matcher.NewClassifier(trackerIndex, secondary, log).WithExclusion(filter.Excluded)

	collector := errors.NewRecordErrorCollector(rs.config.MaxRecordErrors)
	result.Records = make([]*models.ReconciliationRecord, 0, len(gaps.Open))
	for _, row := range gaps.Open {
		rec := models.NewReconciliationRecord(row)
		if err := classifier.Classify(rec, m.MatchVendor(row)); err != nil {
			collector.Add(errors.WrapIfNeeded(err, errors.CategoryReconciliation, errors.CodeUnresolvedLookup, rec.Vendor.RowID))
		}
		result.Records = append(result.Records, rec)
	}
	if collector.HasErrors() {
		result.RecordErrors = collector.Summary()
	}

	// Step 4: summarize
	summarize(result.Summary, result.Records)
	result.Summary.ProcessingDuration = time.Since(startTime)

	op.Success("Deployment reconciled", logger.Fields{
		"records":       len(result.Records),
		"full_match":    result.Summary.Count(models.ClassFullMatch),
		"partial_match": result.Summary.Count(models.ClassPartialMatch),
		"no_match":      result.Summary.Count(models.ClassNoMatch),
		"excluded":      result.Summary.Count(models.ClassExcluded),
		"unresolved":    result.Summary.Count(models.ClassUnresolved),
		"promoted":      result.Summary.Promoted,
		"synthesized":   result.Summary.Synthesized,
		"record_errors": collector.Total(),
	})

	return result, nil
}

func summarize(s *ResultSummary, records []*models.ReconciliationRecord) {
	for _, rec := range records {
		s.ByClass[rec.Class]++
		if rec.SubClass == models.SubClassPartialElsewhere {
			s.PartialElsewhere++
		}
		if rec.Stale {
			s.Stale++
		}
		if rec.IdentifierConflict {
			s.IdentifierConflicts++
		}
		if len(rec.Secondary.Mismatches()) > 0 {
			s.SecondaryMismatches++
		}
	}

	classified := len(records) - s.ByClass[models.ClassExcluded]
	if classified > 0 {
		s.FullMatchRate = decimal.NewFromInt(int64(s.ByClass[models.ClassFullMatch])).
			Div(decimal.NewFromInt(int64(classified))).
			Round(4)
	}
}
