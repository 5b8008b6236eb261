package netcdf

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/ctessum/sparse"

	"github.com/couchcryptid/ptype-inference-service/internal/domain"
)

// Variable names expected in the model files. Profile variables sit on the
// isobaric axis; geopotential height and orography combine into the
// height-above-surface profile.
const (
	levelVar       = "isobaricInhPa"
	geoHeightVar   = "gh"
	orographyVar   = "orog"
	kelvinToOffset = 273.15
)

var (
	profileVars    = []string{"t", "dpt", "u", "v"}
	surfaceVars    = []string{"t2m", "d2m", "u10", "v10"}
	temperatureVar = map[string]bool{"t": true, "dpt": true, "t2m": true, "d2m": true}
)

// Source reads decoded model fields from NetCDF files on local disk.
// It implements domain.FieldSource.
type Source struct {
	dir    string
	logger *slog.Logger
}

// NewSource creates a field source rooted at dir. Files are expected at
// <dir>/<model>/<model>_<YYYYMMDDHH>_fNNN.nc, the layout the downloader
// spools into.
func NewSource(dir string, logger *slog.Logger) *Source {
	return &Source{dir: dir, logger: logger}
}

// Path returns the file location for a job's field.
func (s *Source) Path(job domain.ForecastJob) string {
	name := fmt.Sprintf("%s_%s_f%03d.nc", job.Model, job.InitTime.UTC().Format("2006010215"), job.ForecastHour)
	return filepath.Join(s.dir, job.Model, name)
}

// Fetch opens the job's file and assembles the full model state: isobaric
// profiles in Celsius for temperatures, surface counterparts, and the
// derived height-above-surface profile.
func (s *Source) Fetch(ctx context.Context, job domain.ForecastJob) (*domain.Field, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.Path(job)
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open field file %s: %w", path, err)
	}
	defer nc.Close()

	levels, err := levelValues(nc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", levelVar, err)
	}

	field := &domain.Field{
		Levels:  levels,
		Profile: make(map[string]*sparse.DenseArray, len(profileVars)+1),
		Surface: make(map[string]*sparse.DenseArray, len(surfaceVars)),
	}

	for _, name := range profileVars {
		arr, err := readCube(nc, name)
		if err != nil {
			return nil, err
		}
		if temperatureVar[name] {
			shiftKelvin(arr)
		}
		field.Profile[name] = arr
	}

	for _, name := range surfaceVars {
		arr, err := readPlane(nc, name)
		if err != nil {
			return nil, err
		}
		if temperatureVar[name] {
			shiftKelvin(arr)
		}
		field.Surface[name] = arr
	}

	gh, err := readCube(nc, geoHeightVar)
	if err != nil {
		return nil, err
	}
	orog, err := readPlane(nc, orographyVar)
	if err != nil {
		return nil, err
	}
	hgt, err := heightAboveSurface(gh, orog)
	if err != nil {
		return nil, err
	}
	field.Profile[domain.HeightVariable] = hgt

	field.Ny = orog.Shape[0]
	field.Nx = orog.Shape[1]

	if err := field.Validate(); err != nil {
		return nil, fmt.Errorf("field file %s: %w", path, err)
	}

	s.logger.Debug("field loaded",
		"path", path,
		"levels", len(field.Levels),
		"ny", field.Ny,
		"nx", field.Nx)

	return field, nil
}

func levelValues(nc api.Group) ([]float64, error) {
	vr, err := nc.GetVariable(levelVar)
	if err != nil {
		return nil, err
	}
	switch v := vr.Values.(type) {
	case []float64:
		out := make([]float64, len(v))
		copy(out, v)
		return out, nil
	case []float32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected level axis type %T", vr.Values)
	}
}

// readCube reads a [level, y, x] variable into a dense array.
func readCube(nc api.Group, name string) (*sparse.DenseArray, error) {
	vr, err := nc.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	arr, err := cubeToDense(vr.Values)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return arr, nil
}

// readPlane reads a [y, x] variable into a dense array.
func readPlane(nc api.Group, name string) (*sparse.DenseArray, error) {
	vr, err := nc.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	arr, err := planeToDense(vr.Values)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return arr, nil
}

// cubeToDense converts a decoded 3-D variable to a dense array. Model files
// store either float32 or float64 depending on the encoder.
func cubeToDense(values any) (*sparse.DenseArray, error) {
	switch v := values.(type) {
	case [][][]float64:
		nz, ny, nx, err := cubeDims(len(v), func(k int) int { return len(v[k]) }, func(k, j int) int { return len(v[k][j]) })
		if err != nil {
			return nil, err
		}
		arr := sparse.ZerosDense(nz, ny, nx)
		i := 0
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				copy(arr.Elements[i:i+nx], v[k][j])
				i += nx
			}
		}
		return arr, nil
	case [][][]float32:
		nz, ny, nx, err := cubeDims(len(v), func(k int) int { return len(v[k]) }, func(k, j int) int { return len(v[k][j]) })
		if err != nil {
			return nil, err
		}
		arr := sparse.ZerosDense(nz, ny, nx)
		i := 0
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				for x := 0; x < nx; x++ {
					arr.Elements[i] = float64(v[k][j][x])
					i++
				}
			}
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected cube type %T", values)
	}
}

// planeToDense converts a decoded 2-D variable to a dense array.
func planeToDense(values any) (*sparse.DenseArray, error) {
	switch v := values.(type) {
	case [][]float64:
		ny, nx, err := planeDims(len(v), func(j int) int { return len(v[j]) })
		if err != nil {
			return nil, err
		}
		arr := sparse.ZerosDense(ny, nx)
		i := 0
		for j := 0; j < ny; j++ {
			copy(arr.Elements[i:i+nx], v[j])
			i += nx
		}
		return arr, nil
	case [][]float32:
		ny, nx, err := planeDims(len(v), func(j int) int { return len(v[j]) })
		if err != nil {
			return nil, err
		}
		arr := sparse.ZerosDense(ny, nx)
		i := 0
		for j := 0; j < ny; j++ {
			for x := 0; x < nx; x++ {
				arr.Elements[i] = float64(v[j][x])
				i++
			}
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected plane type %T", values)
	}
}

func cubeDims(nz int, nyAt func(int) int, nxAt func(int, int) int) (int, int, int, error) {
	if nz == 0 || nyAt(0) == 0 || nxAt(0, 0) == 0 {
		return 0, 0, 0, fmt.Errorf("empty cube: %w", domain.ErrShape)
	}
	ny, nx := nyAt(0), nxAt(0, 0)
	for k := 0; k < nz; k++ {
		if nyAt(k) != ny {
			return 0, 0, 0, fmt.Errorf("ragged cube at level %d: %w", k, domain.ErrShape)
		}
		for j := 0; j < ny; j++ {
			if nxAt(k, j) != nx {
				return 0, 0, 0, fmt.Errorf("ragged cube at level %d row %d: %w", k, j, domain.ErrShape)
			}
		}
	}
	return nz, ny, nx, nil
}

func planeDims(ny int, nxAt func(int) int) (int, int, error) {
	if ny == 0 || nxAt(0) == 0 {
		return 0, 0, fmt.Errorf("empty plane: %w", domain.ErrShape)
	}
	nx := nxAt(0)
	for j := 0; j < ny; j++ {
		if nxAt(j) != nx {
			return 0, 0, fmt.Errorf("ragged plane at row %d: %w", j, domain.ErrShape)
		}
	}
	return ny, nx, nil
}

// shiftKelvin converts a temperature array from Kelvin to Celsius in place.
func shiftKelvin(arr *sparse.DenseArray) {
	for i := range arr.Elements {
		arr.Elements[i] -= kelvinToOffset
	}
}

// heightAboveSurface subtracts the orography from each geopotential height
// level, producing the per-point interpolation abscissa.
func heightAboveSurface(gh, orog *sparse.DenseArray) (*sparse.DenseArray, error) {
	if len(gh.Shape) != 3 || len(orog.Shape) != 2 {
		return nil, fmt.Errorf("height inputs have shapes %v and %v: %w", gh.Shape, orog.Shape, domain.ErrShape)
	}
	nz, ny, nx := gh.Shape[0], gh.Shape[1], gh.Shape[2]
	if orog.Shape[0] != ny || orog.Shape[1] != nx {
		return nil, fmt.Errorf("orography grid %v does not match height grid [%d %d]: %w",
			orog.Shape, ny, nx, domain.ErrShape)
	}

	out := sparse.ZerosDense(nz, ny, nx)
	n := ny * nx
	for k := 0; k < nz; k++ {
		base := k * n
		for i := 0; i < n; i++ {
			out.Elements[base+i] = gh.Elements[base+i] - orog.Elements[i]
		}
	}
	return out, nil
}
