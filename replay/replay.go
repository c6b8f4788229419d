package replay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/schollz/progressbar/v3"

	"github.com/raykavin/stopkeep/core"
	"github.com/raykavin/stopkeep/engine"
	"github.com/raykavin/stopkeep/metric"
	"github.com/raykavin/stopkeep/pricefeed"
	"github.com/raykavin/stopkeep/storage"
)

// replayOrderID is the fixed order id used inside the throwaway registry.
var replayOrderID = common.BytesToHash([]byte("stopkeep:replay"))

const replayOracle = core.OracleRef("static:replay")

// Config drives one replay run.
type Config struct {
	// InitialStop is the starting stop price. When nil it is derived
	// from the first close minus the trailing distance.
	InitialStop *big.Int

	// DistanceBps is the trailing distance in basis points.
	DistanceBps int64

	// UpdateEvery is the minimum interval between stop updates; candles
	// arriving inside the window are rate-gated exactly as they would
	// be live.
	UpdateEvery time.Duration

	// ShowProgress renders a progress bar while iterating.
	ShowProgress bool
}

// Result is the outcome of one replay run.
type Result struct {
	Candles int // candles consumed, including the trigger candle
	Updates int // stop raises
	Holds   int // updates discarded by the monotonic ratchet
	Skipped int // candles refused by the rate gate

	Triggered   bool
	TriggerTime time.Time
	ExitPrice   float64 // stop price at the trigger
	PeakPrice   float64
	FinalStop   float64

	Prices Series[float64]
	Stops  Series[float64]

	trajectory []metric.Point
}

// Run feeds the candles through a freshly wired engine and reports how
// the trailing stop behaved. The first candle seeds the configuration;
// the run ends at the first close at or under the stop.
func Run(ctx context.Context, candles []Candle, config Config, log core.Logger) (*Result, error) {
	if len(candles) < 2 {
		return nil, fmt.Errorf("%w: need at least two candles, got %d", ErrInsufficientData, len(candles))
	}

	db, err := storage.FromMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to open replay registry: %w", err)
	}
	defer db.Close()

	feed := pricefeed.NewStatic()
	clock := core.NewManualClock(candles[0].Time)
	eng := engine.New(db, feed, log, engine.WithClock(clock))

	initialStop := config.InitialStop
	if initialStop == nil {
		first := priceToWad(candles[0].Close)
		initialStop = new(big.Int).Sub(first, engine.TrailingAmount(first, config.DistanceBps))
	}

	if _, err := eng.Configure(ctx, engine.ConfigureParams{
		OrderID:     replayOrderID,
		Oracle:      replayOracle,
		InitialStop: initialStop,
		DistanceBps: config.DistanceBps,
		UpdateEvery: config.UpdateEvery,
	}); err != nil {
		return nil, err
	}

	result := &Result{Candles: 1}
	result.observe(candles[0].Time, candles[0].Close, core.PriceFloat(initialStop))

	var bar *progressbar.ProgressBar
	if config.ShowProgress {
		bar = progressbar.Default(int64(len(candles) - 1))
	}

	for _, candle := range candles[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		clock.Set(candle.Time)
		feed.SetPrice(replayOracle, priceToWad(candle.Close))

		stop := result.Stops.Last(0)
		update, err := eng.Update(ctx, replayOrderID)
		switch {
		case err == nil:
			stop = core.PriceFloat(update.NewStop)
			if update.Held {
				result.Holds++
			} else {
				result.Updates++
			}
		case errors.Is(err, core.ErrUpdateTooFrequent):
			result.Skipped++
		default:
			return nil, err
		}

		result.Candles++
		result.observe(candle.Time, candle.Close, stop)

		if bar != nil {
			if err := bar.Add(1); err != nil {
				log.Warnf("update progressbar fail: %v", err)
			}
		}

		if result.Prices.Crossunder(result.Stops) {
			// close fell to the stop: confirm through the real trigger
			// validation before reporting the exit
			snapshot, err := eng.ValidateTrigger(ctx, replayOrderID, priceToWad(candle.Close))
			if err != nil {
				return nil, fmt.Errorf("trigger validation refused during replay: %w", err)
			}

			result.Triggered = true
			result.TriggerTime = candle.Time
			result.ExitPrice = core.PriceFloat(snapshot.StopPrice)
			break
		}
	}

	result.FinalStop = result.Stops.Last(0)
	return result, nil
}

// observe appends one trajectory sample.
func (r *Result) observe(at time.Time, price, stop float64) {
	r.Prices = append(r.Prices, price)
	r.Stops = append(r.Stops, stop)
	r.trajectory = append(r.trajectory, metric.Point{Time: at, Value: price})
	r.PeakPrice = math.Max(r.PeakPrice, price)
}

// Efficiency reports how much of the peak price the exit captured.
func (r *Result) Efficiency() float64 {
	if !r.Triggered {
		return 0
	}
	return metric.TriggerEfficiency(r.ExitPrice, r.PeakPrice)
}

// TickReturns are the per-candle relative price changes.
func (r *Result) TickReturns() []float64 {
	return metric.Returns(r.Prices.Values())
}

// MaxDrawdown is the deepest peak-to-trough slide of the price trajectory.
func (r *Result) MaxDrawdown() (float64, time.Time, time.Time) {
	return metric.MaxDrawdown(r.trajectory)
}
