// Package classifier wraps the external text-classification model behind a
// pluggable adapter. Implementations must tolerate upstream timeouts: they
// fail closed by returning a needs-manual-routing result with confidence 0
// and never propagate a failure to the caller.
package classifier

import (
	"context"

	"jansunwai/models"
)

// Input is the complaint text handed to the model at intake.
type Input struct {
	Title         string
	Description   string
	Location      string
	ImageAnalysis string
}

// Result is the classification the lifecycle engine consumes. Confidence is
// in [0,1]; below the configured threshold the complaint enters the manual
// routing queue and DepartmentID/CategoryID may be zero.
type Result struct {
	CategoryID   int64
	DepartmentID int64
	Priority     models.Priority
	Confidence   float64
	Reasoning    string
}

// Catalog is the reference data a classifier chooses from.
type Catalog struct {
	Categories  []models.Category
	Departments []models.Department
}

// Classifier assigns a category, department, and priority to complaint text.
type Classifier interface {
	Classify(ctx context.Context, in Input, catalog Catalog) Result
}

// FailClosed is the degraded result used when the upstream model is
// unreachable or over deadline: confidence 0 routes to the manual queue.
func FailClosed(reason string) Result {
	return Result{
		Priority:   models.PriorityMedium,
		Confidence: 0,
		Reasoning:  reason,
	}
}
