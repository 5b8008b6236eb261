package domain

import (
	"fmt"

	"github.com/ctessum/sparse"
)

// Profile variables fed to the classifier, in feature order. Each pairs with
// the surface observation at the same position in SurfaceCounterparts.
var (
	ProfileVariables    = []string{"t", "dpt", "u", "v"}
	SurfaceCounterparts = []string{"t2m", "d2m", "u10", "v10"}
)

// HeightVariable is the per-point height-above-surface profile used as the
// interpolation abscissa.
const HeightVariable = "hgt_above_sfc"

// Field is a decoded NWP model state for a single init time and forecast
// hour: a set of named variables on a shared pressure-level x (y, x) grid,
// plus single-level surface variables on the same (y, x) grid.
type Field struct {
	// Levels holds the pressure levels (hPa) in the decoder's native order.
	Levels []float64

	// Ny, Nx are the spatial grid extents.
	Ny, Nx int

	// Profile maps variable name to a [level, y, x] array.
	Profile map[string]*sparse.DenseArray

	// Surface maps variable name to a [y, x] array.
	Surface map[string]*sparse.DenseArray
}

// Validate checks that every variable agrees with the declared level and
// spatial extents. Extent disagreements wrap ErrShape.
func (f *Field) Validate() error {
	if len(f.Levels) == 0 {
		return fmt.Errorf("field has no pressure levels: %w", ErrShape)
	}
	if f.Ny <= 0 || f.Nx <= 0 {
		return fmt.Errorf("field grid is %dx%d: %w", f.Ny, f.Nx, ErrShape)
	}
	for name, arr := range f.Profile {
		if len(arr.Shape) != 3 || arr.Shape[0] != len(f.Levels) || arr.Shape[1] != f.Ny || arr.Shape[2] != f.Nx {
			return fmt.Errorf("profile variable %q has shape %v, want [%d %d %d]: %w",
				name, arr.Shape, len(f.Levels), f.Ny, f.Nx, ErrShape)
		}
	}
	for name, arr := range f.Surface {
		if len(arr.Shape) != 2 || arr.Shape[0] != f.Ny || arr.Shape[1] != f.Nx {
			return fmt.Errorf("surface variable %q has shape %v, want [%d %d]: %w",
				name, arr.Shape, f.Ny, f.Nx, ErrShape)
		}
	}
	return nil
}

// LevelSlice returns the 2-D spatial slice of a profile variable at level
// index k, flattened row-major into one value per grid point. The returned
// slice is a copy.
func (f *Field) LevelSlice(name string, k int) ([]float64, error) {
	arr, ok := f.Profile[name]
	if !ok {
		return nil, fmt.Errorf("no profile variable %q", name)
	}
	if k < 0 || k >= len(f.Levels) {
		return nil, fmt.Errorf("level index %d out of range [0,%d)", k, len(f.Levels))
	}
	n := f.Ny * f.Nx
	out := make([]float64, n)
	copy(out, arr.Elements[k*n:(k+1)*n])
	return out, nil
}

// SurfaceValues returns a surface variable flattened row-major into one
// value per grid point, in the same row order the flattener produces. The
// returned slice is a copy.
func (f *Field) SurfaceValues(name string) ([]float64, error) {
	arr, ok := f.Surface[name]
	if !ok {
		return nil, fmt.Errorf("no surface variable %q", name)
	}
	out := make([]float64, len(arr.Elements))
	copy(out, arr.Elements)
	return out, nil
}

// SurfaceTable collects the surface counterparts of all profile variables
// into a flat table with the flattener's row ordering.
func (f *Field) SurfaceTable() (*Table, error) {
	t := NewTable(f.Ny * f.Nx)
	for _, name := range SurfaceCounterparts {
		vals, err := f.SurfaceValues(name)
		if err != nil {
			return nil, err
		}
		if err := t.AddColumn(name, vals); err != nil {
			return nil, err
		}
	}
	return t, nil
}
