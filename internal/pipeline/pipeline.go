package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/ptype-inference-service/internal/domain"
	"github.com/couchcryptid/ptype-inference-service/internal/observability"
)

// ErrRunExists reports that a job's run ID is already in the ledger; the
// message is committed without re-running inference.
var ErrRunExists = errors.New("run already recorded")

// Extractor reads the next job message from the job topic.
type Extractor interface {
	Extract(ctx context.Context) (domain.JobEvent, error)
}

// Runner executes one inference run for a forecast job.
type Runner interface {
	Run(ctx context.Context, job domain.ForecastJob) (domain.RunResult, error)
}

// ResultSink publishes a completed run's summary.
type ResultSink interface {
	Load(ctx context.Context, result domain.RunResult) error
}

// Pipeline orchestrates the consume-run-publish loop.
type Pipeline struct {
	extractor Extractor
	runner    Runner
	sink      ResultSink
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
}

// New creates a Pipeline with the given stages and observability.
func New(e Extractor, r Runner, s ResultSink, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		extractor: e,
		runner:    r,
		sink:      s,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once the pipeline has handled at least one job,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any jobs yet")
	}
	return nil
}

// Ready reports whether at least one job has been handled.
func (p *Pipeline) Ready() bool {
	return p.ready.Load()
}

// Run executes the job loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started")
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	// Keeps retry storms short while avoiding tight loops during broker
	// or sink outages.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processJob(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processJob handles one consume-run-publish cycle. Returns false if the
// pipeline should stop.
func (p *Pipeline) processJob(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	event, err := p.extractor.Extract(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract job failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	p.metrics.JobsConsumed.Inc()
	*backoff = 200 * time.Millisecond

	job, err := domain.ParseJobEvent(event)
	if err != nil {
		p.logger.Warn("bad job message, skipping",
			"error", err,
			"topic", event.Topic,
			"partition", event.Partition,
			"offset", event.Offset,
		)
		p.metrics.RunFailures.Inc()
		p.commitEvent(ctx, event)
		return true
	}

	start := time.Now()
	result, err := p.runner.Run(ctx, job)
	switch {
	case errors.Is(err, ErrRunExists):
		p.logger.Info("run already recorded, skipping",
			"run_id", job.RunID(), "model", job.Model, "forecast_hour", job.ForecastHour)
		p.metrics.RunsSkipped.Inc()
		p.commitEvent(ctx, event)
		return true
	case err != nil:
		if ctx.Err() != nil {
			return false
		}
		// Core pipeline errors are fatal per job: skip and move on,
		// retries belong to the scheduler.
		p.logger.Warn("inference run failed, skipping job",
			"error", err,
			"run_id", job.RunID(),
			"model", job.Model,
			"init_time", job.InitTime,
			"forecast_hour", job.ForecastHour,
		)
		p.metrics.RunFailures.Inc()
		p.commitEvent(ctx, event)
		return true
	}

	if err := p.sink.Load(ctx, result); err != nil {
		if ctx.Err() != nil {
			return false
		}
		// Leave the offset uncommitted; the run ledger makes the
		// redelivered job a cheap skip.
		p.logger.Error("publish result failed", "error", err, "run_id", result.RunID)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}
	p.metrics.ResultsPublished.Inc()
	p.metrics.RunsCompleted.Inc()
	p.metrics.RunDuration.Observe(time.Since(start).Seconds())

	p.commitEvent(ctx, event)
	p.ready.Store(true)

	p.logger.Info("run complete",
		"run_id", result.RunID,
		"model", result.Model,
		"forecast_hour", result.ForecastHour,
		"grid_points", result.GridNy*result.GridNx,
		"duration", result.Duration,
	)
	return true
}

// backoffOrStop checks for context cancellation, sleeps with the current
// backoff, and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitEvent commits the message offset if a commit function is available.
func (p *Pipeline) commitEvent(ctx context.Context, event domain.JobEvent) {
	if event.Commit == nil {
		return
	}
	if err := event.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", event.Topic, "partition", event.Partition, "offset", event.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
