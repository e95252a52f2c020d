package reconciler

import (
	"fleet-reconciliation-service/internal/deployment"
	"fleet-reconciliation-service/internal/models"
	"fleet-reconciliation-service/pkg/logger"
)

// FilterResult is the outcome of filtering vendor rows by deployment.
type FilterResult struct {
	// Kept holds matched and excluded rows in input order.
	Kept []*models.VendorRecord `json:"-"`

	Matched  int `json:"matched"`
	Excluded int `json:"excluded"`
	Dropped  int `json:"dropped"`
}

// DeploymentFilter selects the vendor rows that belong to one deployment
// by their cost-control code.
//
// Rows naming the deployment are kept. Rows whose code names no deployment
// are kept too so they show up in the report, but the classifier marks
// them EXCLUDED. Rows naming another deployment are dropped.
type DeploymentFilter struct {
	deployment *deployment.Deployment
	logger     logger.Logger
}

// NewDeploymentFilter creates a filter for d.
func NewDeploymentFilter(d *deployment.Deployment, log logger.Logger) *DeploymentFilter {
	return &DeploymentFilter{
		deployment: d,
		logger:     logger.OrGlobal(log).WithComponent("deployment_filter").WithField("deployment", d.ID()),
	}
}

// Filter returns the rows of the deployment. The input is not modified.
func (f *DeploymentFilter) Filter(rows []*models.VendorRecord) *FilterResult {
	result := &FilterResult{Kept: make([]*models.VendorRecord, 0, len(rows))}

	for _, row := range rows {
		if row == nil {
			continue
		}
		switch f.deployment.MatchCode(row.CostControl) {
		case deployment.CodeMatched:
			result.Matched++
		case deployment.CodeExcluded:
			result.Excluded++
		default:
			result.Dropped++
			continue
		}
		result.Kept = append(result.Kept, row)
	}

	f.logger.WithFields(logger.Fields{
		"rows":     len(rows),
		"matched":  result.Matched,
		"excluded": result.Excluded,
		"dropped":  result.Dropped,
	}).Debug("Filtered vendor rows by cost-control code")

	return result
}

// Keeps reports whether Filter would keep row.
func (f *DeploymentFilter) Keeps(row *models.VendorRecord) bool {
	return f.deployment.MatchCode(row.CostControl) != deployment.CodeOther
}

// Excluded reports whether a row is cross-deployment noise. Synthesized
// rows carry no cost-control code but are never noise.
func (f *DeploymentFilter) Excluded(row *models.VendorRecord) bool {
	if row.Provenance == models.ProvenanceMissing {
		return false
	}
	return f.deployment.MatchCode(row.CostControl) == deployment.CodeExcluded
}
