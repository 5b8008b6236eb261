// Command runcheck exercises the full inference chain offline: it builds a
// synthetic model field with a known temperature structure, runs it through
// flattening, height interpolation, a deterministic stand-in classifier, and
// re-gridding, then round-trips the result through a scratch run store. It
// verifies invariants at each stage and reports pass/fail per phase.
//
// Usage:
//
//	go run ./cmd/runcheck -ny 40 -nx 60 -db /tmp/runcheck.db
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/ctessum/sparse"
	"github.com/jonboulle/clockwork"
	"gonum.org/v1/gonum/mat"

	"github.com/couchcryptid/ptype-inference-service/internal/adapter/store"
	"github.com/couchcryptid/ptype-inference-service/internal/domain"
)

var pressureLevels = []float64{1000, 975, 950, 925, 900, 875, 850}

// phase tracks pass/fail for one check phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	ny := flag.Int("ny", 40, "synthetic grid rows")
	nx := flag.Int("nx", 60, "synthetic grid columns")
	dbPath := flag.String("db", "", "scratch database path (default: temp file)")
	flag.Parse()

	if code := run(*ny, *nx, *dbPath); code != 0 {
		os.Exit(code)
	}
}

func run(ny, nx int, dbPath string) int {
	// Fixed clock for a reproducible run ID and ProcessedAt.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2023, time.January, 15, 14, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	if dbPath == "" {
		dir, err := os.MkdirTemp("", "runcheck-*")
		if err != nil {
			fmt.Fprintf(os.Stderr, "create temp dir: %v\n", err)
			return 1
		}
		defer os.RemoveAll(dir)
		dbPath = filepath.Join(dir, "runcheck.db")
	}

	heights := domain.HeightLevels{Low: 0, High: 3000, Interval: 250}
	field := syntheticField(ny, nx)

	phases := []*phase{
		checkFlatten(field),
		checkInterpolation(field, heights),
		checkEndToEnd(field, heights, dbPath),
	}

	failed := 0
	for _, p := range phases {
		if p.passed() {
			fmt.Printf("PASS  %s\n", p.name)
			continue
		}
		failed++
		fmt.Printf("FAIL  %s\n", p.name)
		for _, e := range p.errors {
			fmt.Printf("      %s\n", e)
		}
	}
	if failed > 0 {
		fmt.Printf("\n%d of %d phases failed\n", failed, len(phases))
		return 1
	}
	fmt.Printf("\nall %d phases passed\n", len(phases))
	return 0
}

// syntheticField builds a field with a linear lapse rate so interpolated
// values are predictable: temperature falls 6.5 degrees per km of height,
// and the surface temperature varies across the grid from -10 to +10.
func syntheticField(ny, nx int) *domain.Field {
	field := &domain.Field{
		Levels:  pressureLevels,
		Ny:      ny,
		Nx:      nx,
		Profile: make(map[string]*sparse.DenseArray),
		Surface: make(map[string]*sparse.DenseArray),
	}

	n := ny * nx
	nz := len(pressureLevels)

	// Heights above surface rise 500 m per pressure level.
	hgt := sparse.ZerosDense(nz, ny, nx)
	for k := 0; k < nz; k++ {
		for i := 0; i < n; i++ {
			hgt.Elements[k*n+i] = float64(k) * 500
		}
	}
	field.Profile[domain.HeightVariable] = hgt

	surfaceTemp := func(i int) float64 {
		return -10 + 20*float64(i)/float64(n-1)
	}

	t := sparse.ZerosDense(nz, ny, nx)
	for k := 0; k < nz; k++ {
		for i := 0; i < n; i++ {
			t.Elements[k*n+i] = surfaceTemp(i) - 6.5*float64(k)*500/1000
		}
	}
	field.Profile["t"] = t

	for _, name := range []string{"dpt", "u", "v"} {
		arr := sparse.ZerosDense(nz, ny, nx)
		for i := range arr.Elements {
			arr.Elements[i] = float64(i % 17)
		}
		field.Profile[name] = arr
	}

	t2m := sparse.ZerosDense(ny, nx)
	for i := 0; i < n; i++ {
		t2m.Elements[i] = surfaceTemp(i)
	}
	field.Surface["t2m"] = t2m

	for _, name := range []string{"d2m", "u10", "v10"} {
		arr := sparse.ZerosDense(ny, nx)
		for i := range arr.Elements {
			arr.Elements[i] = float64(i % 13)
		}
		field.Surface[name] = arr
	}

	return field
}

func checkFlatten(field *domain.Field) *phase {
	p := &phase{name: "flatten"}

	vars := append(append([]string{}, domain.ProfileVariables...), domain.HeightVariable)
	table, err := domain.Flatten(field, vars)
	if err != nil {
		p.errorf("flatten: %v", err)
		return p
	}

	wantRows := field.Ny * field.Nx
	if table.Rows() != wantRows {
		p.errorf("flattened table has %d rows, want %d", table.Rows(), wantRows)
	}
	wantCols := len(vars) * len(field.Levels)
	if got := len(table.ColumnNames()); got != wantCols {
		p.errorf("flattened table has %d columns, want %d", got, wantCols)
	}

	// A spot value survives the flatten with its position intact.
	col, ok := table.Column(domain.LevelColumnName("t", field.Levels[2]))
	if !ok {
		p.errorf("missing level column %s", domain.LevelColumnName("t", field.Levels[2]))
		return p
	}
	want := field.Profile["t"].Get(2, 0, 1)
	if col[1] != want {
		p.errorf("t level-2 point 1: got %v, want %v", col[1], want)
	}
	return p
}

func checkInterpolation(field *domain.Field, heights domain.HeightLevels) *phase {
	p := &phase{name: "interpolation"}

	vars := append(append([]string{}, domain.ProfileVariables...), domain.HeightVariable)
	profile, err := domain.Flatten(field, vars)
	if err != nil {
		p.errorf("flatten: %v", err)
		return p
	}
	surface, err := field.SurfaceTable()
	if err != nil {
		p.errorf("surface table: %v", err)
		return p
	}

	features, err := domain.InterpolateToHeights(profile, surface, field.Levels, heights, 0)
	if err != nil {
		p.errorf("interpolate: %v", err)
		return p
	}

	seq, err := heights.Sequence()
	if err != nil {
		p.errorf("height sequence: %v", err)
		return p
	}

	rows, cols := features.Dims()
	if rows != field.Ny*field.Nx {
		p.errorf("feature matrix has %d rows, want %d", rows, field.Ny*field.Nx)
	}
	if want := len(domain.ProfileVariables) * len(seq); cols != want {
		p.errorf("feature matrix has %d columns, want %d", cols, want)
	}

	// The lowest level carries the surface observation, not an interpolant.
	t2m, err := field.SurfaceValues("t2m")
	if err != nil {
		p.errorf("surface values: %v", err)
		return p
	}
	for _, i := range []int{0, rows / 2, rows - 1} {
		if got := features.At(i, 0); got != t2m[i] {
			p.errorf("row %d lowest t is %v, want surface %v", i, got, t2m[i])
		}
	}

	// With a 6.5 K/km lapse rate on a 500 m level spacing, the value at
	// 1000 m is the surface value minus 6.5.
	idx1000 := -1
	for hi, h := range seq {
		if h == 1000 {
			idx1000 = hi
		}
	}
	if idx1000 < 0 {
		p.errorf("height sequence %v does not contain 1000", seq)
		return p
	}
	want := t2m[0] - 6.5
	if got := features.At(0, idx1000); math.Abs(got-want) > 1e-9 {
		p.errorf("t at 1000 m: got %v, want %v", got, want)
	}
	return p
}

func checkEndToEnd(field *domain.Field, heights domain.HeightLevels, dbPath string) *phase {
	p := &phase{name: "end-to-end"}
	ctx := context.Background()

	vars := append(append([]string{}, domain.ProfileVariables...), domain.HeightVariable)
	profile, err := domain.Flatten(field, vars)
	if err != nil {
		p.errorf("flatten: %v", err)
		return p
	}
	surface, err := field.SurfaceTable()
	if err != nil {
		p.errorf("surface table: %v", err)
		return p
	}
	features, err := domain.InterpolateToHeights(profile, surface, field.Levels, heights, 0)
	if err != nil {
		p.errorf("interpolate: %v", err)
		return p
	}

	preds := classifyByTemperature(features)
	grid, err := domain.GridPredictions(preds, domain.PTypeClasses, field.Ny, field.Nx)
	if err != nil {
		p.errorf("regrid: %v", err)
		return p
	}

	counts := grid.ClassCounts()
	total := 0
	for _, c := range counts {
		total += c
	}
	if total != field.Ny*field.Nx {
		p.errorf("class counts sum to %d, want %d", total, field.Ny*field.Nx)
	}
	// The synthetic surface spans -10 to +10, so both phases must appear.
	if counts["rain"] == 0 {
		p.errorf("no rain points despite above-freezing surface temperatures")
	}
	if counts["snow"] == 0 {
		p.errorf("no snow points despite below-freezing surface temperatures")
	}

	job := domain.ForecastJob{
		Model:        "rap",
		InitTime:     time.Date(2023, time.January, 15, 12, 0, 0, 0, time.UTC),
		ForecastHour: 3,
	}
	result := domain.NewRunResult(job, grid, time.Second)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := store.Open(dbPath, logger)
	if err != nil {
		p.errorf("open store: %v", err)
		return p
	}
	defer s.Close()

	if err := s.SaveRun(ctx, result, grid); err != nil {
		p.errorf("save run: %v", err)
		return p
	}
	exists, err := s.HasRun(ctx, result.RunID)
	if err != nil {
		p.errorf("has run: %v", err)
		return p
	}
	if !exists {
		p.errorf("saved run %s not found in ledger", result.RunID)
	}

	stored, err := s.LoadGrid(ctx, result.RunID, "rain", "probability")
	if err != nil {
		p.errorf("load grid: %v", err)
		return p
	}
	orig := grid.Probability["rain"].Elements
	for i := range orig {
		if math.Abs(stored[i]-orig[i]) > 1e-6 {
			p.errorf("stored rain probability at %d: got %v, want %v", i, stored[i], orig[i])
			break
		}
	}
	return p
}

// classifyByTemperature is a stand-in for the served model: rain when the
// lowest-level temperature is above freezing, snow below -1, freezing rain
// in between. Deterministic so the phase checks have known outcomes.
func classifyByTemperature(features *mat.Dense) *mat.Dense {
	rows, _ := features.Dims()
	preds := mat.NewDense(rows, len(domain.PTypeClasses), nil)
	for i := 0; i < rows; i++ {
		t := features.At(i, 0)
		switch {
		case t > 0:
			preds.SetRow(i, []float64{0.8, 0.05, 0.05, 0.1})
		case t < -1:
			preds.SetRow(i, []float64{0.05, 0.85, 0.05, 0.05})
		default:
			preds.SetRow(i, []float64{0.1, 0.2, 0.1, 0.6})
		}
	}
	return preds
}
