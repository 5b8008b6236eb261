package domain

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// FieldSource fetches the decoded model state for a forecast job. The GRIB
// download and decode live upstream; implementations only read the decoder's
// output.
type FieldSource interface {
	Fetch(ctx context.Context, job ForecastJob) (*Field, error)
}

// Classifier maps a standardized feature matrix (rows = grid points,
// columns = variable-major height-level features) to per-class
// probabilities in PTypeClasses order, preserving row order.
type Classifier interface {
	Predict(ctx context.Context, features *mat.Dense) (*mat.Dense, error)
}

// GridStore persists completed runs and their gridded output.
type GridStore interface {
	// HasRun reports whether a run ID is already in the ledger.
	HasRun(ctx context.Context, runID string) (bool, error)

	// SaveRun records the run and its prediction grid. Callers check
	// HasRun first; saving a recorded run ID fails.
	SaveRun(ctx context.Context, result RunResult, grid *PredictionGrid) error
}
