// Package reconciler runs the reconciliation of one or more deployments.
//
// For each deployment it:
//   - keeps the vendor rows whose cost-control code belongs to it
//     (DeploymentFilter)
//   - fills the gaps between tracker and vendor, promoting rows from the
//     all-records list and synthesizing rows for vehicles the vendor does
//     not list (GapFiller)
//   - indexes the tracker and classifies every row (matcher package)
//   - summarizes the classified set for the report renderers
//
// Deployments are processed one after another, each with its own indexes
// and matcher state.
//
// Example usage:
//
//	service, _ := reconciler.NewReconciliationService(matcher.DefaultMatchingConfig(), reconciler.DefaultConfig(), log)
//	orchestrator, _ := reconciler.NewReconciliationOrchestrator(service, log)
//	run, err := orchestrator.Run(ctx, []*reconciler.ReconciliationRequest{
//		{Deployment: dr155, Files: parsers.SnapshotFiles{Tracker: "vehicles.json", VendorOpen: "open.csv"}},
//	})
package reconciler

import (
	"context"
	"io"
	"sync"
	"time"

	"fleet-reconciliation-service/pkg/errors"
	"fleet-reconciliation-service/pkg/logger"

	"github.com/google/uuid"
)

// ReconciliationOrchestrator runs a batch of deployments sequentially.
type ReconciliationOrchestrator struct {
	service *ReconciliationService
	logger  logger.Logger

	// progressWriter receives the terminal progress bar; nil disables it.
	progressWriter io.Writer

	progressCallbacks []ProgressCallback
	currentProgress   *ReconciliationProgress
	progressMutex     sync.RWMutex
}

// ReconciliationProgress tracks the progress of a multi-deployment run
type ReconciliationProgress struct {
	RunID                string        `json:"run_id"`
	TotalDeployments     int           `json:"total_deployments"`
	CompletedDeployments int           `json:"completed_deployments"`
	CurrentDeployment    string        `json:"current_deployment"`
	PercentComplete      float64       `json:"percent_complete"`
	StartTime            time.Time     `json:"start_time"`
	ElapsedTime          time.Duration `json:"elapsed_time"`
	Failures             int           `json:"failures"`
}

// ProgressCallback is called to report reconciliation progress
type ProgressCallback func(ReconciliationProgress)

// DeploymentFailure records a deployment that produced no result.
type DeploymentFailure struct {
	DeploymentID string `json:"deployment_id"`
	Err          error  `json:"-"`
	Message      string `json:"message"`
}

// RunResult is the outcome of a multi-deployment run.
type RunResult struct {
	RunID     string              `json:"run_id"`
	StartedAt time.Time           `json:"started_at"`
	Duration  time.Duration       `json:"duration"`
	Results   []*DeploymentResult `json:"results"`
	Failures  []DeploymentFailure `json:"failures,omitempty"`
}

// HasFailures reports whether any deployment failed.
func (r *RunResult) HasFailures() bool {
	return len(r.Failures) > 0
}

// FirstError returns the error of the first failed deployment, or nil.
func (r *RunResult) FirstError() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return r.Failures[0].Err
}

// NewReconciliationOrchestrator creates a new reconciliation orchestrator
func NewReconciliationOrchestrator(service *ReconciliationService, log logger.Logger) (*ReconciliationOrchestrator, error) {
	if service == nil {
		return nil, errors.ValidationError(
			errors.CodeMissingField,
			"reconciliation_service",
			nil,
			nil,
		).WithSuggestion("Provide a valid ReconciliationService instance")
	}

	return &ReconciliationOrchestrator{
		service:         service,
		logger:          logger.OrGlobal(log).WithComponent("reconciliation_orchestrator"),
		currentProgress: &ReconciliationProgress{},
	}, nil
}

// WithProgressBar draws a terminal progress bar on w while a run is going.
func (ro *ReconciliationOrchestrator) WithProgressBar(w io.Writer) *ReconciliationOrchestrator {
	ro.progressWriter = w
	return ro
}

// AddProgressCallback adds a progress callback function
func (ro *ReconciliationOrchestrator) AddProgressCallback(callback ProgressCallback) {
	ro.progressCallbacks = append(ro.progressCallbacks, callback)
}

// GetProgress returns a snapshot of the current progress.
func (ro *ReconciliationOrchestrator) GetProgress() ReconciliationProgress {
	ro.progressMutex.RLock()
	defer ro.progressMutex.RUnlock()
	return *ro.currentProgress
}

// Run reconciles each request in turn. A failed deployment is recorded and
// the run moves on unless the service is configured to stop on error.
// Cancellation is checked between deployments, never inside one; a
// cancelled run returns what it finished so far together with the error.
func (ro *ReconciliationOrchestrator) Run(ctx context.Context, requests []*ReconciliationRequest) (*RunResult, error) {
	run := &RunResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	log := ro.logger.WithField("run_id", run.RunID)
	log.WithField("deployments", len(requests)).Info("Starting reconciliation run")

	ro.initializeProgress(run, len(requests))
	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "reconcile",
		Total:     int64(len(requests)),
		Logger:    log,
		Writer:    ro.progressWriter,
	})

	for _, request := range requests {
		if err := ctx.Err(); err != nil {
			cancelled := errors.InternalError(errors.CodeCancelled, "reconciliation_run", err)
			tracker.CompleteWithError(cancelled)
			run.Duration = time.Since(run.StartedAt)
			return run, cancelled
		}

		id := "<none>"
		if request != nil && request.Deployment != nil {
			id = request.Deployment.ID()
		}
		tracker.Describe(id)
		ro.updateProgress(id, len(run.Results)+len(run.Failures), len(run.Failures), run.StartedAt)

		result, err := ro.runOne(ctx, request)
		if err != nil {
			log.WithError(err).WithField("deployment", id).Error("Deployment reconciliation failed")
			run.Failures = append(run.Failures, DeploymentFailure{DeploymentID: id, Err: err, Message: err.Error()})
			tracker.Increment()

			if ro.service.config.StopOnError {
				tracker.CompleteWithError(err)
				run.Duration = time.Since(run.StartedAt)
				return run, err
			}
			continue
		}

		result.RunID = run.RunID
		run.Results = append(run.Results, result)
		tracker.Increment()
	}

	ro.updateProgress("", len(run.Results)+len(run.Failures), len(run.Failures), run.StartedAt)
	tracker.Complete()
	run.Duration = time.Since(run.StartedAt)

	log.WithFields(logger.Fields{
		"succeeded": len(run.Results),
		"failed":    len(run.Failures),
		"duration":  run.Duration,
	}).Info("Reconciliation run completed")

	return run, nil
}

func (ro *ReconciliationOrchestrator) runOne(ctx context.Context, request *ReconciliationRequest) (*DeploymentResult, error) {
	if request == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "reconciliation_request", nil, nil)
	}
	return ro.service.ProcessReconciliation(ctx, request)
}

func (ro *ReconciliationOrchestrator) initializeProgress(run *RunResult, total int) {
	ro.progressMutex.Lock()
	defer ro.progressMutex.Unlock()

	ro.currentProgress = &ReconciliationProgress{
		RunID:            run.RunID,
		TotalDeployments: total,
		StartTime:        run.StartedAt,
	}
}

func (ro *ReconciliationOrchestrator) updateProgress(current string, completed, failures int, start time.Time) {
	ro.progressMutex.Lock()
	p := ro.currentProgress
	p.CurrentDeployment = current
	p.CompletedDeployments = completed
	p.Failures = failures
	p.ElapsedTime = time.Since(start)
	if p.TotalDeployments > 0 {
		p.PercentComplete = float64(completed) / float64(p.TotalDeployments) * 100
	}
	snapshot := *p
	ro.progressMutex.Unlock()

	for _, callback := range ro.progressCallbacks {
		callback(snapshot)
	}
}
