package domain

import (
	"fmt"
	"math"
)

// HeightLevels configures the target height-above-surface levels for
// vertical resampling, in meters.
type HeightLevels struct {
	Low      float64
	High     float64
	Interval float64
}

// heightEps absorbs float accumulation error when deciding whether High
// lands exactly on the step grid.
const heightEps = 1e-9

// Sequence expands the configuration into the closed range [Low, High]
// stepped by Interval, inclusive of both bounds. The result is strictly
// increasing. Configurations with a non-positive interval, an inverted
// range, or a span that is not a whole number of intervals wrap
// ErrConfiguration.
func (h HeightLevels) Sequence() ([]float64, error) {
	if h.Interval <= 0 {
		return nil, fmt.Errorf("height interval %g must be positive: %w", h.Interval, ErrConfiguration)
	}
	if h.High < h.Low {
		return nil, fmt.Errorf("height range [%g, %g] is inverted: %w", h.Low, h.High, ErrConfiguration)
	}

	span := (h.High - h.Low) / h.Interval
	steps := math.Round(span)
	if math.Abs(span-steps) > heightEps {
		return nil, fmt.Errorf("height range [%g, %g] is not a whole number of %g m intervals: %w",
			h.Low, h.High, h.Interval, ErrConfiguration)
	}

	levels := make([]float64, int(steps)+1)
	for i := range levels {
		levels[i] = h.Low + float64(i)*h.Interval
	}
	return levels, nil
}
