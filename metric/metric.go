// Package metric computes summary statistics for replayed price
// trajectories and trailing-stop outcomes.
package metric

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Point is one observation of a trajectory.
type Point struct {
	Time  time.Time
	Value float64
}

// Mean calculates the arithmetic mean of the values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// StdDev calculates the sample standard deviation of the values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

// Returns converts a value series into per-step relative changes. Steps
// starting from a zero value are skipped.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}

	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		out = append(out, (values[i]-values[i-1])/values[i-1])
	}
	return out
}

// MaxDrawdown returns the deepest peak-to-trough loss of the trajectory as
// a negative fraction of the value where the slide began, with the start
// and end instants of that slide.
func MaxDrawdown(points []Point) (float64, time.Time, time.Time) {
	if len(points) < 1 {
		return 0, time.Time{}, time.Time{}
	}

	localMin := math.MaxFloat64
	localMinBase := points[0].Value
	localMinStart := points[0].Time
	localMinEnd := points[0].Time

	globalMin := localMin
	globalMinBase := localMinBase
	globalMinStart := localMinStart
	globalMinEnd := localMinEnd

	for i := 1; i < len(points); i++ {
		diff := points[i].Value - points[i-1].Value

		if localMin > 0 {
			localMin = diff
			localMinBase = points[i-1].Value
			localMinStart = points[i-1].Time
			localMinEnd = points[i].Time
		} else {
			localMin += diff
			localMinEnd = points[i].Time
		}

		if localMin < globalMin {
			globalMin = localMin
			globalMinBase = localMinBase
			globalMinStart = localMinStart
			globalMinEnd = localMinEnd
		}
	}

	// a trajectory that never falls has no drawdown
	if globalMin >= 0 || globalMin == math.MaxFloat64 || globalMinBase == 0 {
		return 0, time.Time{}, time.Time{}
	}
	return globalMin / globalMinBase, globalMinStart, globalMinEnd
}

// TriggerEfficiency measures how much of the trajectory's peak the exit
// captured: 1.0 means the stop sold exactly at the top.
func TriggerEfficiency(exit, peak float64) float64 {
	if peak <= 0 {
		return 0
	}
	return exit / peak
}
