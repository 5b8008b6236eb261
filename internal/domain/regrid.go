package domain

import (
	"fmt"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// PTypeClasses lists the precipitation-type classes in the classifier's
// output column order.
var PTypeClasses = []string{"rain", "snow", "icep", "frzr"}

// ClassDescriptions maps short class names to human-readable labels used in
// stored output metadata.
var ClassDescriptions = map[string]string{
	"rain": "rain",
	"snow": "snow",
	"icep": "ice pellets",
	"frzr": "freezing rain",
}

// PredictionGrid holds classifier output restored onto the model grid: one
// probability field per class plus one categorical field per class marking
// where that class won the row-wise arg-max.
type PredictionGrid struct {
	Classes []string
	Ny, Nx  int

	// Probability maps class name to a [y, x] probability field.
	Probability map[string]*sparse.DenseArray

	// Categorical maps class name to a [y, x] indicator field holding 1
	// where the class is the most likely type and 0 elsewhere.
	Categorical map[string]*sparse.DenseArray
}

// GridPredictions reshapes a flat prediction matrix (one row per grid point,
// one column per class) back onto the (ny, nx) model grid, un-flattening
// row-major as the exact inverse of Flatten's row ordering. Ties in the
// arg-max go to the lowest class index. A row count that is not ny*nx, or a
// column count that is not the class count, wraps ErrShape.
func GridPredictions(preds *mat.Dense, classes []string, ny, nx int) (*PredictionGrid, error) {
	rows, cols := preds.Dims()
	if rows != ny*nx {
		return nil, fmt.Errorf("regrid: %d prediction rows cannot fill a %dx%d grid: %w",
			rows, ny, nx, ErrShape)
	}
	if cols != len(classes) {
		return nil, fmt.Errorf("regrid: %d prediction columns for %d classes: %w",
			cols, len(classes), ErrShape)
	}

	g := &PredictionGrid{
		Classes:     append([]string(nil), classes...),
		Ny:          ny,
		Nx:          nx,
		Probability: make(map[string]*sparse.DenseArray, len(classes)),
		Categorical: make(map[string]*sparse.DenseArray, len(classes)),
	}
	for _, c := range classes {
		g.Probability[c] = sparse.ZerosDense(ny, nx)
		g.Categorical[c] = sparse.ZerosDense(ny, nx)
	}

	for i := 0; i < rows; i++ {
		row := preds.RawRowView(i)
		// floats.MaxIdx returns the first index attaining the maximum,
		// which is exactly the lowest-index-wins tie-break wanted here.
		winner := floats.MaxIdx(row)
		for ci, c := range classes {
			g.Probability[c].Elements[i] = row[ci]
			if ci == winner {
				g.Categorical[c].Elements[i] = 1
			}
		}
	}
	return g, nil
}

// ClassCounts tallies, per class, how many grid points the class won. The
// counts sum to Ny*Nx.
func (g *PredictionGrid) ClassCounts() map[string]int {
	counts := make(map[string]int, len(g.Classes))
	for _, c := range g.Classes {
		n := 0
		for _, v := range g.Categorical[c].Elements {
			if v != 0 {
				n++
			}
		}
		counts[c] = n
	}
	return counts
}
