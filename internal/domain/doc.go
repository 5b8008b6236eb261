// Package domain implements the vertical-profile feature pipeline that turns
// decoded numerical-weather-prediction (NWP) output into classifier features
// and turns classifier output back into gridded precipitation-type fields.
//
// # Data Flow
//
// The upstream decoder service downloads a model cycle (RAP, HRRR, GFS or
// NAM), decodes the GRIB2 messages, converts units, and writes a labeled
// field file per forecast hour. This package consumes that decoded field and
// runs three pure stages:
//
//	Flatten       pressure-level cubes -> one row per grid point,
//	              one column per <variable>_<level> pair
//	Interpolate   per-point resampling from pressure levels onto fixed
//	              height-above-surface levels, surface observations pinned
//	              at the lowest level
//	Regrid        per-point class probabilities -> 2-D probability and
//	              categorical fields on the original model grid
//
// The trained classifier itself sits between Interpolate and Regrid, behind
// the [Classifier] interface; any serving backend can be substituted.
//
// # Variables and Levels
//
// Profile variables follow GRIB short names: t (temperature, degC), dpt
// (dewpoint, degC), u and v (wind components, m/s), plus hgt_above_sfc
// (geopotential height minus surface elevation, m). Surface counterparts are
// t2m, d2m, u10 and v10. The per-point height-above-surface profile is the
// interpolation abscissa; it comes straight from the decoder and is sorted
// per point before interpolating because terrain-following model output does
// not guarantee monotonic height with level index.
//
// # Classes
//
// The classifier emits one probability per precipitation type, in a fixed
// order: rain, snow, icep (ice pellets), frzr (freezing rain). The
// categorical field marks, per class, whether that class won the row-wise
// arg-max. Ties go to the lowest class index so degenerate model output
// still produces deterministic grids.
//
// # Row Ordering
//
// Every flat table in this package uses the same row-major flattening of the
// (y, x) grid: row i corresponds to grid cell (i/nx, i%nx). The interpolator
// may process rows on any number of workers but always writes output row i
// from input row i, so re-gridding is an exact inverse of flattening.
package domain
