package domain

import "errors"

// Pipeline error kinds. Each stage wraps one of these with context via
// fmt.Errorf("...: %w", ...); callers test with errors.Is. All three are
// fatal for the forecast job that triggered them: the pipeline skips the
// job and moves on, retries belong to the orchestration layer.
var (
	// ErrShape reports mismatched spatial extents between variables, or a
	// prediction row count that does not match the target grid shape.
	ErrShape = errors.New("grid shape mismatch")

	// ErrDimensionMismatch reports a pressure-level count that disagrees
	// with the column layout of the flattened profile table, or a feature
	// width that disagrees with a fitted scaler.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrConfiguration reports an unusable height-level range.
	ErrConfiguration = errors.New("invalid configuration")
)
