package metric

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func points(start time.Time, values ...float64) []Point {
	out := make([]Point, len(values))
	for i, v := range values {
		out[i] = Point{Time: start.Add(time.Duration(i) * time.Minute), Value: v}
	}
	return out
}

func TestMeanAndStdDev(t *testing.T) {
	require.Zero(t, Mean(nil))
	require.Zero(t, StdDev([]float64{5}))

	require.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-9)
	require.InDelta(t, 1.0, StdDev([]float64{1, 2, 3}), 1e-9)
}

func TestReturns(t *testing.T) {
	require.Nil(t, Returns([]float64{100}))

	returns := Returns([]float64{100, 110, 99})
	require.Len(t, returns, 2)
	require.InDelta(t, 0.10, returns[0], 1e-9)
	require.InDelta(t, -0.10, returns[1], 1e-9)

	// zero base steps are skipped
	returns = Returns([]float64{0, 100, 150})
	require.Len(t, returns, 1)
	require.InDelta(t, 0.50, returns[0], 1e-9)
}

func TestMaxDrawdown(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	dd, _, _ := MaxDrawdown(nil)
	require.Zero(t, dd)

	dd, from, to := MaxDrawdown(points(start, 100, 120, 90, 110))
	require.InDelta(t, -0.25, dd, 1e-9)
	require.Equal(t, start.Add(time.Minute), from)
	require.Equal(t, start.Add(2*time.Minute), to)

	// strictly rising trajectory has no drawdown
	dd, _, _ = MaxDrawdown(points(start, 100, 110, 120))
	require.InDelta(t, 0.0, dd, 1e-9)
}

func TestMaxDrawdownSpansMultipleSteps(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// slide continues through consecutive losses: 120 -> 100 -> 84
	dd, from, to := MaxDrawdown(points(start, 120, 100, 84, 95))
	require.InDelta(t, -0.30, dd, 1e-9)
	require.Equal(t, start, from)
	require.Equal(t, start.Add(2*time.Minute), to)
}

func TestTriggerEfficiency(t *testing.T) {
	require.Zero(t, TriggerEfficiency(100, 0))
	require.InDelta(t, 0.98, TriggerEfficiency(1176, 1200), 1e-9)
	require.InDelta(t, 1.0, TriggerEfficiency(1200, 1200), 1e-9)
}
