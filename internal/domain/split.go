package domain

import (
	"fmt"
	"time"
)

// SplitConfig partitions model cycle dates into train, validation, and test
// ranges. All bounds are inclusive; the training side consumes the same
// partition so evaluation days never leak into fitting.
type SplitConfig struct {
	TrainStart, TrainEnd time.Time
	ValStart, ValEnd     time.Time
	TestStart, TestEnd   time.Time
}

// DateSplit holds the partitioned dates.
type DateSplit struct {
	Train []time.Time
	Val   []time.Time
	Test  []time.Time
}

// PartitionDates assigns each date to the first range that contains it.
// Inverted ranges wrap ErrConfiguration.
func PartitionDates(dates []time.Time, cfg SplitConfig) (DateSplit, error) {
	ranges := []struct {
		name       string
		start, end time.Time
	}{
		{"train", cfg.TrainStart, cfg.TrainEnd},
		{"val", cfg.ValStart, cfg.ValEnd},
		{"test", cfg.TestStart, cfg.TestEnd},
	}
	for _, r := range ranges {
		if r.end.Before(r.start) {
			return DateSplit{}, fmt.Errorf("%s range ends %s before it starts %s: %w",
				r.name, r.end.Format("2006-01-02"), r.start.Format("2006-01-02"), ErrConfiguration)
		}
	}

	var split DateSplit
	for _, d := range dates {
		switch {
		case inRange(d, cfg.TrainStart, cfg.TrainEnd):
			split.Train = append(split.Train, d)
		case inRange(d, cfg.ValStart, cfg.ValEnd):
			split.Val = append(split.Val, d)
		case inRange(d, cfg.TestStart, cfg.TestEnd):
			split.Test = append(split.Test, d)
		}
	}
	return split, nil
}

func inRange(d, start, end time.Time) bool {
	return !d.Before(start) && !d.After(end)
}
