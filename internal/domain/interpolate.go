package domain

import (
	"fmt"
	"runtime"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// InterpolateToHeights resamples the flattened pressure-level profile onto
// the configured height-above-surface levels, one grid point at a time. The
// per-point height profile (column block hgt_above_sfc_<level>) supplies the
// interpolation abscissa; each variable's values at the same levels supply
// the ordinates. Targets outside a point's height range clamp to the nearest
// endpoint value. After interpolation the lowest height level is overwritten
// with the point's surface observation (t<-t2m, dpt<-d2m, u<-u10, v<-v10).
//
// The returned feature matrix has one row per grid point in the profile
// table's row order and one column block per profile variable, each block
// spanning the height levels in ascending order. This layout is what the
// trained classifier was fitted against.
//
// Rows are independent, so the work is split across the given number of
// workers (<= 0 means GOMAXPROCS) on disjoint row ranges; output row i
// always comes from input row i regardless of worker count.
func InterpolateToHeights(profile, surface *Table, pressureLevels []float64, heights HeightLevels, workers int) (*mat.Dense, error) {
	targets, err := heights.Sequence()
	if err != nil {
		return nil, fmt.Errorf("interpolate: %w", err)
	}

	if surface.Rows() != profile.Rows() {
		return nil, fmt.Errorf("interpolate: surface table has %d rows, profile has %d: %w",
			surface.Rows(), profile.Rows(), ErrShape)
	}

	heightCols, err := levelColumns(profile, HeightVariable, pressureLevels)
	if err != nil {
		return nil, err
	}
	varCols := make([][][]float64, len(ProfileVariables))
	for vi, v := range ProfileVariables {
		varCols[vi], err = levelColumns(profile, v, pressureLevels)
		if err != nil {
			return nil, err
		}
	}
	surfCols := make([][]float64, len(SurfaceCounterparts))
	for vi, sv := range SurfaceCounterparts {
		col, ok := surface.Column(sv)
		if !ok {
			return nil, fmt.Errorf("interpolate: surface table is missing %q", sv)
		}
		surfCols[vi] = col
	}

	nPoints := profile.Rows()
	nLevels := len(pressureLevels)
	nHeights := len(targets)
	out := mat.NewDense(nPoints, len(ProfileVariables)*nHeights, nil)

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > nPoints {
		workers = nPoints
	}
	if workers < 1 {
		workers = 1
	}

	// Disjoint contiguous row ranges; workers share nothing but the
	// read-only inputs and write non-overlapping output rows.
	var wg sync.WaitGroup
	chunk := (nPoints + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > nPoints {
			hi = nPoints
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			interpolateRows(out, lo, hi, targets, heightCols, varCols, surfCols, nLevels, nHeights)
		}(lo, hi)
	}
	wg.Wait()

	return out, nil
}

// levelColumns gathers the per-level columns of one variable in pressure-
// level order. A missing column means the table was flattened against a
// different level set than the one configured.
func levelColumns(profile *Table, variable string, pressureLevels []float64) ([][]float64, error) {
	cols := make([][]float64, len(pressureLevels))
	for k, p := range pressureLevels {
		name := LevelColumnName(variable, p)
		col, ok := profile.Column(name)
		if !ok {
			return nil, fmt.Errorf("interpolate: profile table has no column %q for %d configured pressure levels: %w",
				name, len(pressureLevels), ErrDimensionMismatch)
		}
		cols[k] = col
	}
	return cols, nil
}

// interpolateRows fills output rows [lo, hi). Scratch buffers are local to
// the worker; nothing is shared or locked.
func interpolateRows(out *mat.Dense, lo, hi int, targets []float64, heightCols [][]float64, varCols [][][]float64, surfCols [][]float64, nLevels, nHeights int) {
	xs := make([]float64, nLevels)
	ys := make([]float64, nLevels)
	order := make([]int, nLevels)

	for i := lo; i < hi; i++ {
		// The height profile is the shared abscissa for every variable at
		// this point. Decoder output is not guaranteed monotonic in level
		// index, so establish ascending order once per point.
		for k := range order {
			order[k] = k
		}
		sort.SliceStable(order, func(a, b int) bool {
			return heightCols[order[a]][i] < heightCols[order[b]][i]
		})
		for k, src := range order {
			xs[k] = heightCols[src][i]
		}

		for vi, cols := range varCols {
			for k, src := range order {
				ys[k] = cols[src][i]
			}
			base := vi * nHeights
			for j, h := range targets {
				out.Set(i, base+j, interpClamp(h, xs, ys))
			}
			// Surface observation wins at the lowest target level.
			out.Set(i, base, surfCols[vi][i])
		}
	}
}

// Interp1D resamples one (xs, ys) profile at the target abscissas using
// piecewise-linear interpolation with endpoint clamping. xs need not be
// sorted; a sorted copy is used internally. Inputs are not modified.
func Interp1D(targets, xs, ys []float64) []float64 {
	n := len(xs)
	order := make([]int, n)
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool { return xs[order[a]] < xs[order[b]] })

	sx := make([]float64, n)
	sy := make([]float64, n)
	for k, src := range order {
		sx[k] = xs[src]
		sy[k] = ys[src]
	}

	out := make([]float64, len(targets))
	for j, t := range targets {
		out[j] = interpClamp(t, sx, sy)
	}
	return out
}

// interpClamp evaluates the piecewise-linear interpolant of the ascending
// profile (xs, ys) at x. Beyond either endpoint the nearest endpoint value
// is returned unchanged; slopes are never extrapolated.
func interpClamp(x float64, xs, ys []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	if x <= xs[0] {
		return ys[0]
	}
	if x >= xs[n-1] {
		return ys[n-1]
	}

	// Smallest j with xs[j] >= x; j is in [1, n-1] here.
	j := sort.SearchFloat64s(xs, x)
	x0, x1 := xs[j-1], xs[j]
	if x1 == x0 {
		return ys[j]
	}
	frac := (x - x0) / (x1 - x0)
	return ys[j-1] + frac*(ys[j]-ys[j-1])
}
