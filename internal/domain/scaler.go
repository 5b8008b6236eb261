package domain

import (
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
)

// StandardScaler applies the per-column standardization fitted on the
// training side: (x - mean) / scale. The training pipeline exports the
// fitted parameters as a JSON artifact alongside the model weights.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// LoadScaler reads a fitted scaler artifact from disk.
func LoadScaler(path string) (*StandardScaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load scaler: %w", err)
	}
	var s StandardScaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scaler %s: %w", path, err)
	}
	if len(s.Mean) != len(s.Scale) {
		return nil, fmt.Errorf("scaler %s has %d means but %d scales: %w",
			path, len(s.Mean), len(s.Scale), ErrDimensionMismatch)
	}
	return &s, nil
}

// Transform standardizes a feature matrix into a newly allocated matrix. A
// feature width different from the fitted width wraps ErrDimensionMismatch.
// Zero-variance columns (scale 0) pass through centered but unscaled, the
// same convention the fitting library uses.
func (s *StandardScaler) Transform(features *mat.Dense) (*mat.Dense, error) {
	rows, cols := features.Dims()
	if cols != len(s.Mean) {
		return nil, fmt.Errorf("feature matrix has %d columns, scaler was fitted on %d: %w",
			cols, len(s.Mean), ErrDimensionMismatch)
	}

	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := features.At(i, j) - s.Mean[j]
			if s.Scale[j] != 0 {
				v /= s.Scale[j]
			}
			out.Set(i, j, v)
		}
	}
	return out, nil
}
