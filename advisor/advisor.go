// Package advisor derives trailing distance suggestions from recorded
// market data. The suggestion is advisory only; configuring a stop with
// it goes through the normal engine validation.
package advisor

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"github.com/raykavin/stopkeep/core"
	"github.com/raykavin/stopkeep/replay"
)

const (
	// DefaultPeriod is the ATR lookback in candles.
	DefaultPeriod = 14

	// DefaultMultiplier widens the distance beyond one average true range.
	DefaultMultiplier = 2.0
)

// Suggestion is an ATR-derived trailing distance recommendation.
type Suggestion struct {
	DistanceBps int64   `json:"distance_bps"`
	ATR         float64 `json:"atr"`
	LastClose   float64 `json:"last_close"`
	Volatility  float64 `json:"volatility"`
	Period      int     `json:"period"`
	Multiplier  float64 `json:"multiplier"`
}

// Suggest derives a trailing distance in basis points from the average
// true range of the candles, clamped to the distance bounds the engine
// accepts. Non-positive period or multiplier fall back to the defaults.
func Suggest(candles []replay.Candle, period int, multiplier float64) (*Suggestion, error) {
	if period <= 0 {
		period = DefaultPeriod
	}
	if multiplier <= 0 {
		multiplier = DefaultMultiplier
	}
	if len(candles) <= period {
		return nil, fmt.Errorf("%w: ATR over %d candles needs at least %d",
			replay.ErrInsufficientData, period, period+1)
	}

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, candle := range candles {
		highs[i] = candle.High
		lows[i] = candle.Low
		closes[i] = candle.Close
	}

	atr := talib.Atr(highs, lows, closes, period)
	last := atr[len(atr)-1]
	lastClose := closes[len(closes)-1]
	if lastClose <= 0 {
		return nil, fmt.Errorf("last close %.4f is not a usable price", lastClose)
	}

	bps := int64(math.Ceil(last * multiplier / lastClose * 10000))
	if bps < core.MinTrailingDistanceBps {
		bps = core.MinTrailingDistanceBps
	}
	if bps > core.MaxTrailingDistanceBps {
		bps = core.MaxTrailingDistanceBps
	}

	return &Suggestion{
		DistanceBps: bps,
		ATR:         last,
		LastClose:   lastClose,
		Volatility:  last / lastClose,
		Period:      period,
		Multiplier:  multiplier,
	}, nil
}
