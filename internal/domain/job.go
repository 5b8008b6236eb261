package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// ForecastJob identifies one model cycle and forecast hour to run inference
// for. Jobs arrive as JSON on the job topic, published by the scheduler that
// fans a date range out over forecast hours.
type ForecastJob struct {
	Model        string    `json:"model"`         // "rap", "hrrr", "gfs" or "nam"
	InitTime     time.Time `json:"init_time"`     // model initialization time, UTC
	ForecastHour int       `json:"forecast_hour"` // hours past init
}

// Validate rejects jobs the pipeline cannot act on.
func (j ForecastJob) Validate() error {
	switch j.Model {
	case "rap", "hrrr", "gfs", "nam":
	default:
		return fmt.Errorf("unsupported model %q", j.Model)
	}
	if j.InitTime.IsZero() {
		return fmt.Errorf("missing init_time")
	}
	if j.ForecastHour < 0 {
		return fmt.Errorf("negative forecast hour %d", j.ForecastHour)
	}
	return nil
}

// RunID produces a deterministic ID from the job's key fields. Deterministic
// IDs make reruns idempotent: replaying a job message maps to the same
// ledger row, so already-completed work is skipped.
func (j ForecastJob) RunID() string {
	input := fmt.Sprintf("%s|%s|%02d", j.Model, j.InitTime.UTC().Format(time.RFC3339), j.ForecastHour)
	hash := sha256.Sum256([]byte(input))
	return j.Model + "-" + hex.EncodeToString(hash[:8])
}

// JobEvent represents an unprocessed message from the job topic.
type JobEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ParseJobEvent deserializes a JobEvent's value into a ForecastJob.
func ParseJobEvent(event JobEvent) (ForecastJob, error) {
	var job ForecastJob
	if err := json.Unmarshal(event.Value, &job); err != nil {
		return ForecastJob{}, fmt.Errorf("parse job event: %w", err)
	}
	if err := job.Validate(); err != nil {
		return ForecastJob{}, fmt.Errorf("parse job event: %w", err)
	}
	return job, nil
}

// RunResult summarizes one completed inference run. It is persisted to the
// run ledger and published on the result topic.
type RunResult struct {
	RunID        string    `json:"run_id"`
	Model        string    `json:"model"`
	InitTime     time.Time `json:"init_time"`
	ForecastHour int       `json:"forecast_hour"`

	GridNy      int            `json:"grid_ny"`
	GridNx      int            `json:"grid_nx"`
	ClassCounts map[string]int `json:"class_counts"` // arg-max winners per class

	Duration    time.Duration `json:"duration_ns"`
	ProcessedAt time.Time     `json:"processed_at"`
}

// NewRunResult assembles the result record for a finished run, stamping it
// with the package clock.
func NewRunResult(job ForecastJob, grid *PredictionGrid, duration time.Duration) RunResult {
	return RunResult{
		RunID:        job.RunID(),
		Model:        job.Model,
		InitTime:     job.InitTime.UTC(),
		ForecastHour: job.ForecastHour,
		GridNy:       grid.Ny,
		GridNx:       grid.Nx,
		ClassCounts:  grid.ClassCounts(),
		Duration:     duration,
		ProcessedAt:  clock.Now().UTC(),
	}
}
