package domain_test

import (
	"testing"

	"github.com/couchcryptid/ptype-inference-service/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestHeightLevels_Sequence(t *testing.T) {
	seq, err := domain.HeightLevels{Low: 0, High: 3000, Interval: 250}.Sequence()
	require.NoError(t, err)

	require.Len(t, seq, 13)
	assert.Equal(t, 0.0, seq[0])
	assert.Equal(t, 3000.0, seq[12])
	for i := 1; i < len(seq); i++ {
		assert.Greater(t, seq[i], seq[i-1])
	}
}

func TestHeightLevels_Sequence_Invalid(t *testing.T) {
	cases := []struct {
		name string
		cfg  domain.HeightLevels
	}{
		{"zero interval", domain.HeightLevels{Low: 0, High: 1000, Interval: 0}},
		{"negative interval", domain.HeightLevels{Low: 0, High: 1000, Interval: -50}},
		{"inverted range", domain.HeightLevels{Low: 2000, High: 1000, Interval: 250}},
		{"ragged span", domain.HeightLevels{Low: 0, High: 1000, Interval: 300}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.cfg.Sequence()
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestInterp1D_ClampAndLinear(t *testing.T) {
	xs := []float64{500, 1500, 2500}
	ys := []float64{10, 5, 0}

	got := domain.Interp1D([]float64{0, 1000, 3000}, xs, ys)

	assert.Equal(t, 10.0, got[0], "below range clamps to first value")
	assert.InDelta(t, 7.5, got[1], 1e-12, "interior point interpolates linearly")
	assert.Equal(t, 0.0, got[2], "above range clamps to last value")
}

func TestInterp1D_NonMonotonicAbscissa(t *testing.T) {
	// The decoder does not guarantee height increases with level index;
	// the profile must be ordered per point before interpolating.
	xs := []float64{2500, 500, 1500}
	ys := []float64{0, 10, 5}

	got := domain.Interp1D([]float64{1000}, xs, ys)
	assert.InDelta(t, 7.5, got[0], 1e-12)
}

func TestInterp1D_ExactKnot(t *testing.T) {
	xs := []float64{500, 1500, 2500}
	ys := []float64{10, 5, 0}

	got := domain.Interp1D([]float64{1500}, xs, ys)
	assert.Equal(t, 5.0, got[0])
}

// interpolationFixture builds a field, flattens it, and returns everything
// InterpolateToHeights needs.
func interpolationFixture(t *testing.T, ny, nx int) (profile, surface *domain.Table, levels []float64) {
	t.Helper()
	levels = []float64{1000, 850, 700}
	field := newTestField(ny, nx, levels)

	vars := append(append([]string{}, domain.ProfileVariables...), domain.HeightVariable)
	profile, err := domain.Flatten(field, vars)
	require.NoError(t, err)

	surface, err = field.SurfaceTable()
	require.NoError(t, err)
	return profile, surface, levels
}

func TestInterpolateToHeights_SurfaceOverride(t *testing.T) {
	profile, surface, levels := interpolationFixture(t, 2, 3)
	heights := domain.HeightLevels{Low: 0, High: 500, Interval: 250}

	features, err := domain.InterpolateToHeights(profile, surface, levels, heights, 1)
	require.NoError(t, err)

	rows, cols := features.Dims()
	require.Equal(t, 6, rows)
	require.Equal(t, len(domain.ProfileVariables)*3, cols)

	// Regardless of what interpolation yields, column 0 of each variable
	// block equals the paired surface observation for that point.
	for i := 0; i < rows; i++ {
		for vi, sv := range domain.SurfaceCounterparts {
			want, ok := surface.Column(sv)
			require.True(t, ok)
			assert.Equal(t, want[i], features.At(i, vi*3), "row %d var %d", i, vi)
		}
	}
}

func TestInterpolateToHeights_DimensionMismatch(t *testing.T) {
	profile, surface, levels := interpolationFixture(t, 2, 2)

	// One more configured level than the table was flattened with.
	badLevels := append(append([]float64{}, levels...), 500)
	_, err := domain.InterpolateToHeights(profile, surface, badLevels,
		domain.HeightLevels{Low: 0, High: 1000, Interval: 500}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestInterpolateToHeights_SurfaceRowMismatch(t *testing.T) {
	profile, _, levels := interpolationFixture(t, 2, 2)
	shortSurface := domain.NewTable(3)

	_, err := domain.InterpolateToHeights(profile, shortSurface, levels,
		domain.HeightLevels{Low: 0, High: 1000, Interval: 500}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrShape)
}

func TestInterpolateToHeights_BadHeightConfig(t *testing.T) {
	profile, surface, levels := interpolationFixture(t, 2, 2)

	_, err := domain.InterpolateToHeights(profile, surface, levels,
		domain.HeightLevels{Low: 0, High: 1000, Interval: -1}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestInterpolateToHeights_WorkerCountInvariance(t *testing.T) {
	profile, surface, levels := interpolationFixture(t, 8, 9)
	heights := domain.HeightLevels{Low: 0, High: 3000, Interval: 250}

	serial, err := domain.InterpolateToHeights(profile, surface, levels, heights, 1)
	require.NoError(t, err)

	for _, workers := range []int{2, 3, 7, 16, 100} {
		parallel, err := domain.InterpolateToHeights(profile, surface, levels, heights, workers)
		require.NoError(t, err)
		if diff := cmp.Diff(denseRows(serial), denseRows(parallel)); diff != "" {
			t.Fatalf("workers=%d changed output (-serial +parallel):\n%s", workers, diff)
		}
	}
}

func TestInterpolateToHeights_KnownValues(t *testing.T) {
	// One point, hand-checkable: heights 100/1100/2100 with t 10/5/0.
	levels := []float64{1000, 850, 700}
	profile := domain.NewTable(1)
	require.NoError(t, profile.AddColumn("t_1000", []float64{10}))
	require.NoError(t, profile.AddColumn("t_850", []float64{5}))
	require.NoError(t, profile.AddColumn("t_700", []float64{0}))
	for v, vals := range map[string][]float64{"dpt": {1, 2, 3}, "u": {4, 5, 6}, "v": {7, 8, 9}} {
		for k, p := range levels {
			require.NoError(t, profile.AddColumn(domain.LevelColumnName(v, p), []float64{vals[k]}))
		}
	}
	require.NoError(t, profile.AddColumn("hgt_above_sfc_1000", []float64{100}))
	require.NoError(t, profile.AddColumn("hgt_above_sfc_850", []float64{1100}))
	require.NoError(t, profile.AddColumn("hgt_above_sfc_700", []float64{2100}))

	surface := domain.NewTable(1)
	for _, sv := range domain.SurfaceCounterparts {
		require.NoError(t, surface.AddColumn(sv, []float64{-40}))
	}

	features, err := domain.InterpolateToHeights(profile, surface, levels,
		domain.HeightLevels{Low: 0, High: 3000, Interval: 1000}, 1)
	require.NoError(t, err)

	// t block: [surface(-40), t@1000m, t@2000m, t@3000m(clamped)].
	assert.Equal(t, -40.0, features.At(0, 0))
	assert.InDelta(t, 5.5, features.At(0, 1), 1e-12) // between 100m/10 and 1100m/5
	assert.InDelta(t, 0.5, features.At(0, 2), 1e-12) // between 1100m/5 and 2100m/0
	assert.Equal(t, 0.0, features.At(0, 3))          // above 2100m clamps
}

// denseRows converts a matrix into a comparable [][]float64.
func denseRows(m *mat.Dense) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		out[i] = make([]float64, c)
		for j := 0; j < c; j++ {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}
