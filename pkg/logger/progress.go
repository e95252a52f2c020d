package logger

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// ProgressTracker counts work items of a long-running operation, such as
// deployments in a batch run. It logs a "Progress update" at most once per
// LogInterval and optionally draws a terminal bar.
type ProgressTracker struct {
	mu        sync.Mutex
	logger    Logger
	operation string
	total     int64
	current   int64
	started   time.Time
	nextLog   time.Time
	interval  time.Duration
	bar       *progressbar.ProgressBar
}

// ProgressConfig configures a ProgressTracker. A zero Total means the
// amount of work is unknown.
type ProgressConfig struct {
	Operation   string
	Total       int64
	LogInterval time.Duration
	Logger      Logger
	// Writer receives the progress bar. Nil disables the bar.
	Writer io.Writer
}

const defaultProgressInterval = 5 * time.Second

// NewProgressTracker starts tracking and logs "Starting operation".
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	interval := config.LogInterval
	if interval <= 0 {
		interval = defaultProgressInterval
	}

	started := time.Now()
	p := &ProgressTracker{
		logger:    OrGlobal(config.Logger).WithComponent("progress"),
		operation: config.Operation,
		total:     config.Total,
		started:   started,
		nextLog:   started.Add(interval),
		interval:  interval,
	}
	if config.Writer != nil {
		p.bar = progressbar.NewOptions64(config.Total,
			progressbar.OptionSetWriter(config.Writer),
			progressbar.OptionSetDescription(config.Operation),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	p.logger.WithFields(Fields{"operation": p.operation, "total": p.total}).Info("Starting operation")
	return p
}

// Describe relabels the bar, typically with the deployment in progress.
func (p *ProgressTracker) Describe(description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		p.bar.Describe(description)
	}
}

func (p *ProgressTracker) Increment() { p.Add(1) }

func (p *ProgressTracker) Add(delta int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current += delta
	if p.bar != nil {
		_ = p.bar.Add64(delta)
	}

	if now := time.Now(); !now.Before(p.nextLog) {
		fields := Fields{
			"operation": p.operation,
			"processed": p.current,
			"elapsed":   now.Sub(p.started).String(),
		}
		if p.total > 0 {
			fields["total"] = p.total
			fields["percentage"] = fmt.Sprintf("%.1f%%", p.percent())
		}
		p.logger.WithFields(fields).Info("Progress update")
		p.nextLog = now.Add(p.interval)
	}
}

// Complete finishes the bar and logs the final counts.
func (p *ProgressTracker) Complete() { p.finish(nil) }

// CompleteWithError is Complete for an operation that stopped on err.
func (p *ProgressTracker) CompleteWithError(err error) { p.finish(err) }

func (p *ProgressTracker) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar != nil {
		_ = p.bar.Finish()
	}

	log := p.logger.WithFields(Fields{
		"operation": p.operation,
		"total":     p.total,
		"processed": p.current,
		"duration":  time.Since(p.started).String(),
	})
	if err != nil {
		log.WithError(err).Error("Operation completed with error")
		return
	}
	log.Info("Operation completed")
}

// percent must be called with mu held.
func (p *ProgressTracker) percent() float64 {
	if p.total <= 0 {
		return 0
	}
	return float64(p.current) / float64(p.total) * 100
}

// GetStats returns a snapshot of the tracker.
func (p *ProgressTracker) GetStats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProgressStats{
		Operation:  p.operation,
		Total:      p.total,
		Current:    p.current,
		Percentage: p.percent(),
		Duration:   time.Since(p.started),
	}
}

type ProgressStats struct {
	Operation  string        `json:"operation"`
	Total      int64         `json:"total"`
	Current    int64         `json:"current"`
	Percentage float64       `json:"percentage"`
	Duration   time.Duration `json:"duration"`
}

func (ps ProgressStats) String() string {
	if ps.Total > 0 {
		return fmt.Sprintf("%s: %d/%d (%.1f%%), elapsed: %v",
			ps.Operation, ps.Current, ps.Total, ps.Percentage, ps.Duration)
	}
	return fmt.Sprintf("%s: %d processed, elapsed: %v", ps.Operation, ps.Current, ps.Duration)
}

// OperationLogger provides structured logging for a named operation with
// timing.
type OperationLogger struct {
	logger    Logger
	operation string
	startTime time.Time
}

// NewOperationLogger creates a new operation logger
func NewOperationLogger(operation string, logger Logger) *OperationLogger {
	ol := &OperationLogger{
		logger:    OrGlobal(logger).WithField("operation", operation),
		operation: operation,
		startTime: time.Now(),
	}

	ol.logger.Debug("Starting operation")
	return ol
}

// Step logs a step within the operation
func (ol *OperationLogger) Step(step string) {
	ol.logger.WithField("step", step).Debug("Operation step")
}

// Success completes the operation successfully
func (ol *OperationLogger) Success(message string, fields Fields) {
	ol.logger.WithFields(fields).
		WithField("duration", time.Since(ol.startTime).String()).
		Info(message)
}

// Error completes the operation with an error
func (ol *OperationLogger) Error(err error, message string) {
	ol.logger.WithError(err).
		WithField("duration", time.Since(ol.startTime).String()).
		Error(message)
}
