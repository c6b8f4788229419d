// Package replay feeds recorded candles through the real trailing-stop
// engine on a manual clock, so distances and intervals can be judged
// against history before an order goes live.
package replay

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/raykavin/stopkeep/core"
)

// Candle is one OHLCV bar of the replayed feed.
type Candle struct {
	Time   time.Time
	Open   float64
	Close  float64
	Low    float64
	High   float64
	Volume float64
}

// priceToWad converts a candle price to the canonical fixed-point scale.
func priceToWad(v float64) *big.Int {
	return decimal.NewFromFloat(v).Shift(core.PriceDecimals).Truncate(0).BigInt()
}
