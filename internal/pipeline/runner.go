package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/ptype-inference-service/internal/domain"
	"github.com/couchcryptid/ptype-inference-service/internal/observability"
)

// InferenceRunner implements Runner by chaining the core pipeline stages:
// fetch decoded field, flatten, interpolate to height levels, standardize,
// classify, re-grid, persist. Each stage is pure; the runner holds only
// collaborators and configuration, never per-job state.
type InferenceRunner struct {
	fields     domain.FieldSource
	classifier domain.Classifier
	store      domain.GridStore
	scaler     *domain.StandardScaler
	levels     []float64
	heights    domain.HeightLevels
	workers    int
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewRunner creates an InferenceRunner. Pass a nil scaler when the serving
// backend standardizes features itself. The classifier was fitted against a
// fixed pressure-level set, so fetched fields are rejected when their levels
// differ from the configured list; pass nil levels to accept any field.
func NewRunner(fields domain.FieldSource, classifier domain.Classifier, store domain.GridStore,
	scaler *domain.StandardScaler, levels []float64, heights domain.HeightLevels, workers int,
	logger *slog.Logger, metrics *observability.Metrics) *InferenceRunner {
	return &InferenceRunner{
		fields:     fields,
		classifier: classifier,
		store:      store,
		scaler:     scaler,
		levels:     levels,
		heights:    heights,
		workers:    workers,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run executes one inference run. Jobs whose run ID is already in the
// ledger return ErrRunExists without touching the field source.
func (r *InferenceRunner) Run(ctx context.Context, job domain.ForecastJob) (domain.RunResult, error) {
	runID := job.RunID()
	exists, err := r.store.HasRun(ctx, runID)
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("ledger lookup for %s: %w", runID, err)
	}
	if exists {
		return domain.RunResult{}, ErrRunExists
	}

	start := time.Now()

	field, err := r.timedFetch(ctx, job)
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("fetch field: %w", err)
	}
	if err := r.checkLevels(field); err != nil {
		return domain.RunResult{}, err
	}

	stage := time.Now()
	profileVars := append(append([]string{}, domain.ProfileVariables...), domain.HeightVariable)
	profile, err := domain.Flatten(field, profileVars)
	if err != nil {
		return domain.RunResult{}, err
	}
	surface, err := field.SurfaceTable()
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("surface table: %w", err)
	}
	r.observeStage("flatten", stage)

	stage = time.Now()
	features, err := domain.InterpolateToHeights(profile, surface, field.Levels, r.heights, r.workers)
	if err != nil {
		return domain.RunResult{}, err
	}
	r.observeStage("interpolate", stage)

	if r.scaler != nil {
		features, err = r.scaler.Transform(features)
		if err != nil {
			return domain.RunResult{}, err
		}
	}

	stage = time.Now()
	preds, err := r.classifier.Predict(ctx, features)
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("predict: %w", err)
	}
	r.observeStage("predict", stage)

	stage = time.Now()
	grid, err := domain.GridPredictions(preds, domain.PTypeClasses, field.Ny, field.Nx)
	if err != nil {
		return domain.RunResult{}, err
	}
	r.observeStage("regrid", stage)

	result := domain.NewRunResult(job, grid, time.Since(start))

	stage = time.Now()
	if err := r.store.SaveRun(ctx, result, grid); err != nil {
		return domain.RunResult{}, fmt.Errorf("save run %s: %w", runID, err)
	}
	r.observeStage("store", stage)

	r.metrics.PointsProcessed.Add(float64(field.Ny * field.Nx))
	return result, nil
}

// checkLevels verifies the fetched field carries exactly the configured
// pressure levels, in order.
func (r *InferenceRunner) checkLevels(field *domain.Field) error {
	if r.levels == nil {
		return nil
	}
	if len(field.Levels) != len(r.levels) {
		return fmt.Errorf("%w: field has %d pressure levels, expected %d",
			domain.ErrDimensionMismatch, len(field.Levels), len(r.levels))
	}
	for i, want := range r.levels {
		if field.Levels[i] != want {
			return fmt.Errorf("%w: pressure level %d is %g hPa, expected %g",
				domain.ErrDimensionMismatch, i, field.Levels[i], want)
		}
	}
	return nil
}

func (r *InferenceRunner) timedFetch(ctx context.Context, job domain.ForecastJob) (*domain.Field, error) {
	stage := time.Now()
	field, err := r.fields.Fetch(ctx, job)
	if err != nil {
		return nil, err
	}
	r.observeStage("fetch", stage)
	return field, nil
}

func (r *InferenceRunner) observeStage(stage string, start time.Time) {
	r.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
