package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/couchcryptid/ptype-inference-service/internal/domain"
	"github.com/couchcryptid/ptype-inference-service/internal/pipeline"
)

// --- mocks ---

type mockFieldSource struct {
	field   *domain.Field
	err     error
	fetches int
}

func (m *mockFieldSource) Fetch(_ context.Context, _ domain.ForecastJob) (*domain.Field, error) {
	m.fetches++
	if m.err != nil {
		return nil, m.err
	}
	return m.field, nil
}

type mockClassifier struct {
	err      error
	features *mat.Dense
}

func (m *mockClassifier) Predict(_ context.Context, features *mat.Dense) (*mat.Dense, error) {
	m.features = features
	if m.err != nil {
		return nil, m.err
	}
	rows, _ := features.Dims()
	preds := mat.NewDense(rows, len(domain.PTypeClasses), nil)
	for i := 0; i < rows; i++ {
		preds.SetRow(i, []float64{0.7, 0.1, 0.1, 0.1})
	}
	return preds, nil
}

type mockGridStore struct {
	exists    bool
	lookupErr error
	saveErr   error
	saved     []domain.RunResult
}

func (m *mockGridStore) HasRun(_ context.Context, _ string) (bool, error) {
	return m.exists, m.lookupErr
}

func (m *mockGridStore) SaveRun(_ context.Context, result domain.RunResult, _ *domain.PredictionGrid) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, result)
	return nil
}

// --- helpers ---

// runnerField builds a 2-level, 1x2 field with monotone height profiles that
// cover the test height range.
func runnerField(t *testing.T) *domain.Field {
	t.Helper()

	field := &domain.Field{
		Levels:  []float64{1000, 925},
		Ny:      1,
		Nx:      2,
		Profile: make(map[string]*sparse.DenseArray),
		Surface: make(map[string]*sparse.DenseArray),
	}

	for vi, name := range domain.ProfileVariables {
		arr := sparse.ZerosDense(2, 1, 2)
		for i := range arr.Elements {
			arr.Elements[i] = float64(10*vi + i)
		}
		field.Profile[name] = arr
	}

	hgt := sparse.ZerosDense(2, 1, 2)
	copy(hgt.Elements, []float64{500, 500, 1500, 1500})
	field.Profile[domain.HeightVariable] = hgt

	for vi, name := range domain.SurfaceCounterparts {
		arr := sparse.ZerosDense(1, 2)
		for i := range arr.Elements {
			arr.Elements[i] = float64(100*vi + i)
		}
		field.Surface[name] = arr
	}

	require.NoError(t, field.Validate())
	return field
}

func runnerJob() domain.ForecastJob {
	return domain.ForecastJob{
		Model:        "rap",
		InitTime:     time.Date(2023, 1, 15, 12, 0, 0, 0, time.UTC),
		ForecastHour: 3,
	}
}

func newRunner(fields *mockFieldSource, cls *mockClassifier, store *mockGridStore, scaler *domain.StandardScaler) *pipeline.InferenceRunner {
	heights := domain.HeightLevels{Low: 0, High: 1000, Interval: 500}
	levels := []float64{1000, 925}
	return pipeline.NewRunner(fields, cls, store, scaler, levels, heights, 1, slog.Default(), newTestMetrics())
}

// --- tests ---

func TestInferenceRunner_Run(t *testing.T) {
	fields := &mockFieldSource{field: runnerField(t)}
	cls := &mockClassifier{}
	store := &mockGridStore{}

	r := newRunner(fields, cls, store, nil)

	result, err := r.Run(context.Background(), runnerJob())
	require.NoError(t, err)

	assert.Equal(t, runnerJob().RunID(), result.RunID)
	assert.Equal(t, "rap", result.Model)
	assert.Equal(t, 1, result.GridNy)
	assert.Equal(t, 2, result.GridNx)
	assert.Equal(t, 2, result.ClassCounts["rain"])
	assert.Equal(t, 0, result.ClassCounts["snow"])

	require.Len(t, store.saved, 1)
	assert.Equal(t, result.RunID, store.saved[0].RunID)

	// 4 profile variables on 3 height levels.
	rows, cols := cls.features.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 12, cols)
}

func TestInferenceRunner_Run_AlreadyRecorded(t *testing.T) {
	fields := &mockFieldSource{field: runnerField(t)}
	cls := &mockClassifier{}
	store := &mockGridStore{exists: true}

	r := newRunner(fields, cls, store, nil)

	_, err := r.Run(context.Background(), runnerJob())
	require.ErrorIs(t, err, pipeline.ErrRunExists)
	assert.Zero(t, fields.fetches)
}

func TestInferenceRunner_Run_LedgerLookupError(t *testing.T) {
	fields := &mockFieldSource{field: runnerField(t)}
	cls := &mockClassifier{}
	store := &mockGridStore{lookupErr: errors.New("db locked")}

	r := newRunner(fields, cls, store, nil)

	_, err := r.Run(context.Background(), runnerJob())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger lookup")
}

func TestInferenceRunner_Run_FetchError(t *testing.T) {
	fields := &mockFieldSource{err: errors.New("file missing")}
	cls := &mockClassifier{}
	store := &mockGridStore{}

	r := newRunner(fields, cls, store, nil)

	_, err := r.Run(context.Background(), runnerJob())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch field")
}

func TestInferenceRunner_Run_RejectsUnexpectedLevels(t *testing.T) {
	heights := domain.HeightLevels{Low: 0, High: 1000, Interval: 500}

	tests := []struct {
		name   string
		levels []float64
	}{
		{"wrong count", []float64{1000, 925, 850}},
		{"wrong value", []float64{1000, 900}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := &mockFieldSource{field: runnerField(t)}
			cls := &mockClassifier{}
			store := &mockGridStore{}

			r := pipeline.NewRunner(fields, cls, store, nil, tt.levels, heights, 1, slog.Default(), newTestMetrics())

			_, err := r.Run(context.Background(), runnerJob())
			require.ErrorIs(t, err, domain.ErrDimensionMismatch)
			assert.Nil(t, cls.features)
			assert.Empty(t, store.saved)
		})
	}
}

func TestInferenceRunner_Run_NilLevelsAcceptsAnyField(t *testing.T) {
	heights := domain.HeightLevels{Low: 0, High: 1000, Interval: 500}
	fields := &mockFieldSource{field: runnerField(t)}
	cls := &mockClassifier{}
	store := &mockGridStore{}

	r := pipeline.NewRunner(fields, cls, store, nil, nil, heights, 1, slog.Default(), newTestMetrics())

	_, err := r.Run(context.Background(), runnerJob())
	require.NoError(t, err)
	require.Len(t, store.saved, 1)
}

func TestInferenceRunner_Run_PredictError(t *testing.T) {
	fields := &mockFieldSource{field: runnerField(t)}
	cls := &mockClassifier{err: errors.New("model down")}
	store := &mockGridStore{}

	r := newRunner(fields, cls, store, nil)

	_, err := r.Run(context.Background(), runnerJob())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "predict")
	assert.Empty(t, store.saved)
}

func TestInferenceRunner_Run_SaveError(t *testing.T) {
	fields := &mockFieldSource{field: runnerField(t)}
	cls := &mockClassifier{}
	store := &mockGridStore{saveErr: errors.New("disk full")}

	r := newRunner(fields, cls, store, nil)

	_, err := r.Run(context.Background(), runnerJob())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save run")
}

func TestInferenceRunner_Run_AppliesScaler(t *testing.T) {
	fields := &mockFieldSource{field: runnerField(t)}
	cls := &mockClassifier{}
	store := &mockGridStore{}

	mean := make([]float64, 12)
	scale := make([]float64, 12)
	for i := range scale {
		mean[i] = 0
		scale[i] = 2
	}
	scaler := &domain.StandardScaler{Mean: mean, Scale: scale}

	unscaled := &mockClassifier{}
	r := newRunner(fields, unscaled, store, nil)
	_, err := r.Run(context.Background(), runnerJob())
	require.NoError(t, err)

	store2 := &mockGridStore{}
	r2 := newRunner(&mockFieldSource{field: runnerField(t)}, cls, store2, scaler)
	_, err = r2.Run(context.Background(), runnerJob())
	require.NoError(t, err)

	// Every scaled feature is the unscaled one divided by two.
	rows, cols := cls.features.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			assert.InDelta(t, unscaled.features.At(i, j)/2, cls.features.At(i, j), 1e-12)
		}
	}
}
