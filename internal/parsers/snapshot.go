package parsers

import (
	"context"
	"sync"
	"time"

	"fleet-reconciliation-service/internal/models"
	"fleet-reconciliation-service/internal/normalize"
	"fleet-reconciliation-service/pkg/errors"
	"fleet-reconciliation-service/pkg/logger"
)

// SnapshotFiles names the export files of one deployment. Agencies and
// Roster are optional; VendorAll falls back to the open export when empty.
type SnapshotFiles struct {
	Tracker    string `json:"tracker"`
	VendorOpen string `json:"vendor_open"`
	VendorAll  string `json:"vendor_all,omitempty"`
	Agencies   string `json:"agencies,omitempty"`
	Roster     string `json:"roster,omitempty"`
}

// Validate checks that the mandatory files are named
func (f SnapshotFiles) Validate() error {
	if f.Tracker == "" {
		return errors.ReconciliationError(errors.CodeMissingTrackerSnapshot, "", nil)
	}
	if f.VendorOpen == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "vendor_open", "", nil)
	}
	return nil
}

// Snapshot is everything loaded for one deployment. Records are read-only
// from here on.
type Snapshot struct {
	Tracker    []*models.TrackerRecord
	VendorOpen []*models.VendorRecord
	// VendorAll is nil when no "all records" export was given.
	VendorAll []*models.VendorRecord
	Agencies  map[string]*models.Agency
	Roster    []*models.RosterMember

	// Stats holds per-file parse statistics keyed by file role.
	Stats    map[string]*ParseStats
	LoadTime time.Duration
}

// ParseWarnings returns the malformed values found across all files.
func (s *Snapshot) ParseWarnings() []*ParseError {
	var out []*ParseError
	for _, role := range []string{"tracker", "vendor_open", "vendor_all", "roster"} {
		if st := s.Stats[role]; st != nil {
			out = append(out, st.Warnings...)
		}
	}
	return out
}

// SnapshotLoader loads the files of a deployment concurrently, bounded by
// MaxConcurrency.
type SnapshotLoader struct {
	config     *SnapshotConfig
	normalizer *normalize.Normalizer
	logger     logger.Logger
	semaphore  chan struct{}
}

// NewSnapshotLoader creates a new loader
func NewSnapshotLoader(config *SnapshotConfig, n *normalize.Normalizer, log logger.Logger) (*SnapshotLoader, error) {
	if config == nil {
		config = DefaultSnapshotConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if n == nil {
		n = normalize.Default()
	}

	return &SnapshotLoader{
		config:     config,
		normalizer: n,
		logger:     logger.OrGlobal(log).WithComponent("snapshot_loader"),
		semaphore:  make(chan struct{}, config.MaxConcurrency),
	}, nil
}

type loadResult struct {
	role string
	err  error
}

// Load parses every named file. A missing or unreadable tracker export is
// reported as a missing tracker snapshot.
func (sl *SnapshotLoader) Load(ctx context.Context, files SnapshotFiles) (*Snapshot, error) {
	if err := files.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	vendorParser, err := NewVendorParser(sl.config.Vendor, sl.normalizer, sl.logger)
	if err != nil {
		return nil, err
	}
	rosterParser, err := NewRosterParser(sl.config.Roster, sl.logger)
	if err != nil {
		return nil, err
	}
	trackerParser := NewTrackerParser(nil, sl.logger)

	snap := &Snapshot{Stats: make(map[string]*ParseStats)}
	var mu sync.Mutex
	record := func(role string, stats *ParseStats) {
		mu.Lock()
		defer mu.Unlock()
		if stats != nil {
			snap.Stats[role] = stats
		}
	}

	jobs := map[string]func() error{
		"tracker": func() error {
			recs, stats, err := trackerParser.ParseTrackerFile(ctx, files.Tracker)
			record("tracker", stats)
			if err != nil {
				return errors.ReconciliationError(errors.CodeMissingTrackerSnapshot, "", err)
			}
			snap.Tracker = recs
			return nil
		},
		"vendor_open": func() error {
			recs, stats, err := vendorParser.ParseVendorFile(ctx, files.VendorOpen, models.ProvenanceOpen)
			record("vendor_open", stats)
			snap.VendorOpen = recs
			return err
		},
	}
	if files.VendorAll != "" {
		jobs["vendor_all"] = func() error {
			recs, stats, err := vendorParser.ParseVendorFile(ctx, files.VendorAll, models.ProvenanceOpenAll)
			record("vendor_all", stats)
			snap.VendorAll = recs
			return err
		}
	}
	if files.Agencies != "" {
		jobs["agencies"] = func() error {
			agencies, err := ParseAgenciesFile(files.Agencies, sl.logger)
			snap.Agencies = agencies
			return err
		}
	}
	if files.Roster != "" {
		jobs["roster"] = func() error {
			members, stats, err := rosterParser.ParseRosterFile(ctx, files.Roster)
			record("roster", stats)
			snap.Roster = members
			return err
		}
	}

	results := make(chan loadResult, len(jobs))
	var wg sync.WaitGroup
	for role, job := range jobs {
		wg.Add(1)
		go func(role string, job func() error) {
			defer wg.Done()

			sl.semaphore <- struct{}{}
			defer func() { <-sl.semaphore }()

			results <- loadResult{role: role, err: job()}
		}(role, job)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// The tracker error wins so callers can tell a structural failure from
	// a bad vendor file.
	var trackerErr, firstErr error
	for res := range results {
		if res.err == nil {
			continue
		}
		sl.logger.WithError(res.err).WithField("role", res.role).Error("Failed to load snapshot file")
		if res.role == "tracker" {
			trackerErr = res.err
		} else if firstErr == nil {
			firstErr = res.err
		}
	}
	if trackerErr != nil {
		return nil, trackerErr
	}
	if firstErr != nil {
		return nil, firstErr
	}

	if snap.Agencies == nil {
		snap.Agencies = make(map[string]*models.Agency)
	}
	snap.LoadTime = time.Since(start)

	sl.logger.WithFields(logger.Fields{
		"tracker":     len(snap.Tracker),
		"vendor_open": len(snap.VendorOpen),
		"vendor_all":  len(snap.VendorAll),
		"agencies":    len(snap.Agencies),
		"roster":      len(snap.Roster),
		"duration":    snap.LoadTime,
	}).Info("Loaded snapshot")

	return snap, nil
}
