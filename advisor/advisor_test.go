package advisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raykavin/stopkeep/core"
	"github.com/raykavin/stopkeep/replay"
)

var adviseStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// flatCandles builds n candles sharing the same high, low and close so
// the true range is constant.
func flatCandles(n int, high, low, closePrice float64) []replay.Candle {
	out := make([]replay.Candle, n)
	for i := range out {
		out[i] = replay.Candle{
			Time:   adviseStart.Add(time.Duration(i) * time.Minute),
			Open:   closePrice,
			Close:  closePrice,
			Low:    low,
			High:   high,
			Volume: 10,
		}
	}
	return out
}

func TestSuggestFromConstantRange(t *testing.T) {
	// true range 2 on close 100, doubled, is a 4% distance
	suggestion, err := Suggest(flatCandles(30, 101, 99, 100), 14, 2.0)
	require.NoError(t, err)

	require.Equal(t, int64(400), suggestion.DistanceBps)
	require.InDelta(t, 2.0, suggestion.ATR, 1e-9)
	require.InDelta(t, 0.02, suggestion.Volatility, 1e-9)
	require.Equal(t, 100.0, suggestion.LastClose)
	require.Equal(t, 14, suggestion.Period)
	require.Equal(t, 2.0, suggestion.Multiplier)
}

func TestSuggestDefaults(t *testing.T) {
	suggestion, err := Suggest(flatCandles(30, 101, 99, 100), 0, 0)
	require.NoError(t, err)

	require.Equal(t, DefaultPeriod, suggestion.Period)
	require.Equal(t, DefaultMultiplier, suggestion.Multiplier)
	require.Equal(t, int64(400), suggestion.DistanceBps)
}

func TestSuggestClampsToBounds(t *testing.T) {
	quiet, err := Suggest(flatCandles(30, 100.02, 99.98, 100), 14, 2.0)
	require.NoError(t, err)
	require.Equal(t, int64(core.MinTrailingDistanceBps), quiet.DistanceBps)

	wild, err := Suggest(flatCandles(30, 150, 50, 100), 14, 2.0)
	require.NoError(t, err)
	require.Equal(t, int64(core.MaxTrailingDistanceBps), wild.DistanceBps)
}

func TestSuggestInsufficientData(t *testing.T) {
	_, err := Suggest(flatCandles(14, 101, 99, 100), 14, 2.0)
	require.ErrorIs(t, err, replay.ErrInsufficientData)
}
