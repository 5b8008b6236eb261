package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/couchcryptid/ptype-inference-service/internal/domain"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ptype.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testGrid(t *testing.T) *domain.PredictionGrid {
	t.Helper()
	preds := mat.NewDense(4, 2, []float64{
		0.9, 0.1,
		0.2, 0.8,
		0.6, 0.4,
		0.3, 0.7,
	})
	grid, err := domain.GridPredictions(preds, []string{"rain", "snow"}, 2, 2)
	require.NoError(t, err)
	return grid
}

func testResult(grid *domain.PredictionGrid) domain.RunResult {
	return domain.RunResult{
		RunID:        "rap-a1b2c3d4e5f60718",
		Model:        "rap",
		InitTime:     time.Date(2023, 1, 15, 12, 0, 0, 0, time.UTC),
		ForecastHour: 3,
		GridNy:       grid.Ny,
		GridNx:       grid.Nx,
		ClassCounts:  grid.ClassCounts(),
		Duration:     42 * time.Second,
		ProcessedAt:  time.Date(2023, 1, 15, 14, 0, 0, 0, time.UTC),
	}
}

func TestSQLite_SaveAndHasRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	grid := testGrid(t)
	result := testResult(grid)

	exists, err := s.HasRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.SaveRun(ctx, result, grid))

	exists, err = s.HasRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSQLite_SaveRun_DuplicateFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	grid := testGrid(t)
	result := testResult(grid)

	require.NoError(t, s.SaveRun(ctx, result, grid))
	assert.Error(t, s.SaveRun(ctx, result, grid))
}

func TestSQLite_LoadGrid_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	grid := testGrid(t)
	result := testResult(grid)

	require.NoError(t, s.SaveRun(ctx, result, grid))

	probs, err := s.LoadGrid(ctx, result.RunID, "rain", "probability")
	require.NoError(t, err)
	require.Len(t, probs, 4)
	// Stored as float32, so compare at single precision.
	assert.InDelta(t, 0.9, probs[0], 1e-6)
	assert.InDelta(t, 0.2, probs[1], 1e-6)

	cats, err := s.LoadGrid(ctx, result.RunID, "rain", "categorical")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 1, 0}, cats)
}

func TestSQLite_LoadGrid_Missing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LoadGrid(context.Background(), "rap-0000000000000000", "rain", "probability")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no probability grid")
}

func TestEncodeDecodeFloat32(t *testing.T) {
	in := []float64{0, 0.25, -1.5, 1}
	out, err := decodeFloat32(encodeFloat32(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeFloat32_BadLength(t *testing.T) {
	_, err := decodeFloat32([]byte{1, 2, 3})
	require.Error(t, err)
}
