package engine

import (
	"context"
	"errors"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/raykavin/stopkeep/core"
	logadapter "github.com/raykavin/stopkeep/logger/zerolog"
	"github.com/raykavin/stopkeep/pricefeed"
	"github.com/raykavin/stopkeep/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var (
	orderA = common.Hash{0xaa}
	orderB = common.Hash{0xbb}

	ethOracle = core.OracleRef("static:eth-usd")
)

func testLogger() core.Logger {
	zl := zerolog.New(io.Discard)
	return logadapter.NewAdapter(&zl)
}

// testEngine wires the engine against an in-memory registry, a static feed
// and a manual clock starting at a fixed instant.
func testEngine(t *testing.T, options ...Option) (*Engine, *pricefeed.Static, *core.ManualClock) {
	t.Helper()

	db, err := storage.FromMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	feed := pricefeed.NewStatic()
	clock := core.NewManualClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	eng := New(db, feed, testLogger(), append([]Option{WithClock(clock)}, options...)...)
	return eng, feed, clock
}

func configureParams(id common.Hash, initial int64) ConfigureParams {
	return ConfigureParams{
		OrderID:     id,
		Oracle:      ethOracle,
		InitialStop: wad(initial),
		DistanceBps: 200,
		UpdateEvery: time.Hour,
	}
}

func TestConfigure(t *testing.T) {
	eng, _, clock := testEngine(t)
	ctx := context.Background()

	stop, err := eng.Configure(ctx, configureParams(orderA, 950))
	require.NoError(t, err)
	require.Equal(t, orderA, stop.OrderID)
	require.Zero(t, stop.CurrentStop.Cmp(wad(950)))
	require.Zero(t, stop.InitialStop.Cmp(wad(950)))
	require.True(t, stop.ConfiguredAt.Equal(clock.Now()))
	require.True(t, stop.LastUpdateAt.Equal(clock.Now()))
	require.True(t, stop.Configured())
}

func TestConfigureValidation(t *testing.T) {
	eng, _, _ := testEngine(t)
	ctx := context.Background()

	params := configureParams(orderA, 950)
	params.Oracle = ""
	_, err := eng.Configure(ctx, params)
	require.ErrorIs(t, err, core.ErrInvalidOracle)

	params = configureParams(orderA, 950)
	params.InitialStop = nil
	_, err = eng.Configure(ctx, params)
	require.ErrorIs(t, err, core.ErrInvalidStopPrice)

	params.InitialStop = big.NewInt(0)
	_, err = eng.Configure(ctx, params)
	require.ErrorIs(t, err, core.ErrInvalidStopPrice)

	params.InitialStop = big.NewInt(-1)
	_, err = eng.Configure(ctx, params)
	require.ErrorIs(t, err, core.ErrInvalidStopPrice)

	// failed configurations leave the id unconfigured
	_, err = eng.Update(ctx, orderA)
	require.ErrorIs(t, err, core.ErrNotConfigured)
}

func TestConfigureDistanceBounds(t *testing.T) {
	eng, _, _ := testEngine(t)
	ctx := context.Background()

	params := configureParams(orderA, 950)
	params.DistanceBps = 49
	_, err := eng.Configure(ctx, params)
	require.ErrorIs(t, err, core.ErrInvalidTrailingDistance)
	require.Equal(t, core.ClassConfiguration, core.Classify(err))

	params.DistanceBps = 50
	_, err = eng.Configure(ctx, params)
	require.NoError(t, err)

	params.DistanceBps = 10_000
	_, err = eng.Configure(ctx, params)
	require.NoError(t, err)

	params.DistanceBps = 10_001
	_, err = eng.Configure(ctx, params)
	require.ErrorIs(t, err, core.ErrInvalidTrailingDistance)
}

func TestConfigureReplacesRecord(t *testing.T) {
	eng, feed, clock := testEngine(t)
	ctx := context.Background()

	_, err := eng.Configure(ctx, configureParams(orderA, 950))
	require.NoError(t, err)

	feed.SetPrice(ethOracle, wad(1200))
	clock.Advance(time.Hour)
	update, err := eng.Update(ctx, orderA)
	require.NoError(t, err)
	require.Zero(t, update.NewStop.Cmp(wad(1176)))

	// reconfiguring resets the ratchet to the fresh initial stop
	params := configureParams(orderA, 900)
	params.DistanceBps = 300
	stop, err := eng.Configure(ctx, params)
	require.NoError(t, err)
	require.Zero(t, stop.CurrentStop.Cmp(wad(900)))
	require.Equal(t, int64(300), stop.DistanceBps)
}

func TestUpdateRatchets(t *testing.T) {
	eng, feed, clock := testEngine(t)
	ctx := context.Background()

	_, err := eng.Configure(ctx, configureParams(orderA, 950))
	require.NoError(t, err)

	feed.SetPrice(ethOracle, wad(1000))
	now := clock.Advance(time.Hour)

	update, err := eng.Update(ctx, orderA)
	require.NoError(t, err)
	require.False(t, update.Held)
	require.Zero(t, update.MarketPrice.Cmp(wad(1000)))
	require.Zero(t, update.PreviousStop.Cmp(wad(950)))
	require.Zero(t, update.NewStop.Cmp(wad(980)), "trailing 200 bps behind 1000 must land exactly on 980")
	require.True(t, update.UpdatedAt.Equal(now))
}

func TestUpdateRateGate(t *testing.T) {
	eng, feed, clock := testEngine(t)
	ctx := context.Background()

	_, err := eng.Configure(ctx, configureParams(orderA, 950))
	require.NoError(t, err)
	feed.SetPrice(ethOracle, wad(1000))

	// one second short of the interval
	clock.Advance(time.Hour - time.Second)
	_, err = eng.Update(ctx, orderA)
	require.ErrorIs(t, err, core.ErrUpdateTooFrequent)
	require.Equal(t, core.ClassState, core.Classify(err))

	// exactly the interval is due
	clock.Advance(time.Second)
	_, err = eng.Update(ctx, orderA)
	require.NoError(t, err)
}

func TestUpdateRefusalKeepsRecord(t *testing.T) {
	eng, feed, clock := testEngine(t)
	ctx := context.Background()

	configured, err := eng.Configure(ctx, configureParams(orderA, 950))
	require.NoError(t, err)
	feed.SetPrice(ethOracle, wad(1000))

	clock.Advance(time.Minute)
	_, err = eng.Update(ctx, orderA)
	require.ErrorIs(t, err, core.ErrUpdateTooFrequent)

	// a refused update must not advance the rate gate or move the stop
	reloaded, err := eng.Stop(ctx, orderA)
	require.NoError(t, err)
	require.Zero(t, reloaded.CurrentStop.Cmp(wad(950)))
	require.True(t, reloaded.LastUpdateAt.Equal(configured.LastUpdateAt))
}

func TestUpdateHoldsOnFallingPrice(t *testing.T) {
	eng, feed, clock := testEngine(t)
	ctx := context.Background()

	_, err := eng.Configure(ctx, configureParams(orderA, 950))
	require.NoError(t, err)

	feed.SetPrice(ethOracle, wad(1200))
	clock.Advance(time.Hour)
	update, err := eng.Update(ctx, orderA)
	require.NoError(t, err)
	require.Zero(t, update.NewStop.Cmp(wad(1176)))

	// market falls, candidate 1127 would loosen the stop
	feed.SetPrice(ethOracle, wad(1150))
	heldAt := clock.Advance(time.Hour)
	update, err = eng.Update(ctx, orderA)
	require.NoError(t, err)
	require.True(t, update.Held)
	require.Zero(t, update.NewStop.Cmp(wad(1176)))

	// a held update still advances the rate gate
	reloaded, err := eng.Stop(ctx, orderA)
	require.NoError(t, err)
	require.True(t, reloaded.LastUpdateAt.Equal(heldAt))
}

func TestUpdateOracleUnavailable(t *testing.T) {
	eng, feed, clock := testEngine(t)
	ctx := context.Background()

	configured, err := eng.Configure(ctx, configureParams(orderA, 950))
	require.NoError(t, err)

	feed.SetError(ethOracle, errors.New("connection refused"))
	clock.Advance(time.Hour)

	_, err = eng.Update(ctx, orderA)
	require.ErrorIs(t, err, core.ErrOracleUnavailable)
	require.Equal(t, core.ClassAvailability, core.Classify(err))

	// the failed update leaves the record byte for byte as it was
	reloaded, err := eng.Stop(ctx, orderA)
	require.NoError(t, err)
	require.Zero(t, reloaded.CurrentStop.Cmp(wad(950)))
	require.True(t, reloaded.LastUpdateAt.Equal(configured.LastUpdateAt))
}

func TestUpdateNotConfigured(t *testing.T) {
	eng, _, _ := testEngine(t)

	_, err := eng.Update(context.Background(), orderA)
	require.ErrorIs(t, err, core.ErrNotConfigured)
}

func TestUpdatePaused(t *testing.T) {
	eng, feed, clock := testEngine(t)
	ctx := context.Background()

	_, err := eng.Configure(ctx, configureParams(orderA, 950))
	require.NoError(t, err)
	feed.SetPrice(ethOracle, wad(1000))
	clock.Advance(time.Hour)

	eng.Pause()
	require.True(t, eng.Paused())

	_, err = eng.Update(ctx, orderA)
	require.ErrorIs(t, err, core.ErrPaused)

	// configuration and trigger validation stay available while paused
	_, err = eng.Configure(ctx, configureParams(orderB, 900))
	require.NoError(t, err)
	_, err = eng.ValidateTrigger(ctx, orderA, wad(940))
	require.NoError(t, err)

	eng.Unpause()
	require.False(t, eng.Paused())
	_, err = eng.Update(ctx, orderA)
	require.NoError(t, err)
}

func TestUpdateNormalizesFeedDecimals(t *testing.T) {
	eng, feed, clock := testEngine(t)
	ctx := context.Background()

	_, err := eng.Configure(ctx, configureParams(orderA, 950))
	require.NoError(t, err)

	// 1000 quoted with 8 fractional digits
	feed.SetQuote(ethOracle, core.PriceQuote{
		Price:      new(big.Int).Mul(big.NewInt(1000), big.NewInt(100_000_000)),
		Decimals:   8,
		ObservedAt: clock.Now(),
	})
	clock.Advance(time.Hour)

	update, err := eng.Update(ctx, orderA)
	require.NoError(t, err)
	require.Zero(t, update.MarketPrice.Cmp(wad(1000)))
	require.Zero(t, update.NewStop.Cmp(wad(980)))
}

func TestUpdateRejectsStaleQuote(t *testing.T) {
	eng, feed, clock := testEngine(t, WithMaxPriceAge(time.Minute))
	ctx := context.Background()

	_, err := eng.Configure(ctx, configureParams(orderA, 950))
	require.NoError(t, err)

	feed.SetQuote(ethOracle, core.PriceQuote{
		Price:      wad(1000),
		Decimals:   core.PriceDecimals,
		ObservedAt: clock.Now(),
	})
	clock.Advance(time.Hour)

	_, err = eng.Update(ctx, orderA)
	require.ErrorIs(t, err, core.ErrOracleUnavailable)
	require.ErrorContains(t, err, "stale")
}

func TestValidateTrigger(t *testing.T) {
	eng, feed, clock := testEngine(t)
	ctx := context.Background()

	_, err := eng.Configure(ctx, configureParams(orderA, 950))
	require.NoError(t, err)
	feed.SetPrice(ethOracle, wad(1000))
	clock.Advance(time.Hour)
	_, err = eng.Update(ctx, orderA)
	require.NoError(t, err)

	// stop sits at 980: above it refuses, at or below it passes
	_, err = eng.ValidateTrigger(ctx, orderA, wad(985))
	require.ErrorIs(t, err, core.ErrStopNotReached)
	require.Equal(t, core.ClassState, core.Classify(err))

	snapshot, err := eng.ValidateTrigger(ctx, orderA, wad(975))
	require.NoError(t, err)
	require.Zero(t, snapshot.StopPrice.Cmp(wad(980)))
	require.Zero(t, snapshot.ObservedPrice.Cmp(wad(975)))

	snapshot, err = eng.ValidateTrigger(ctx, orderA, wad(980))
	require.NoError(t, err, "observed price equal to the stop must trigger")
	require.Zero(t, snapshot.ObservedPrice.Cmp(wad(980)))
}

func TestValidateTriggerValidation(t *testing.T) {
	eng, _, _ := testEngine(t)
	ctx := context.Background()

	_, err := eng.ValidateTrigger(ctx, orderA, nil)
	require.ErrorIs(t, err, core.ErrInvalidStopPrice)

	_, err = eng.ValidateTrigger(ctx, orderA, big.NewInt(0))
	require.ErrorIs(t, err, core.ErrInvalidStopPrice)

	_, err = eng.ValidateTrigger(ctx, orderA, wad(100))
	require.ErrorIs(t, err, core.ErrNotConfigured)
}

func TestTrailAndTriggerLifecycle(t *testing.T) {
	eng, feed, clock := testEngine(t)
	ctx := context.Background()

	_, err := eng.Configure(ctx, configureParams(orderA, 950))
	require.NoError(t, err)

	// rally to 1200 drags the stop up to 1176
	feed.SetPrice(ethOracle, wad(1200))
	clock.Advance(time.Hour)
	update, err := eng.Update(ctx, orderA)
	require.NoError(t, err)
	require.Zero(t, update.NewStop.Cmp(wad(1176)))

	// pullback to 1150 holds the stop, then reaches it
	feed.SetPrice(ethOracle, wad(1150))
	clock.Advance(time.Hour)
	update, err = eng.Update(ctx, orderA)
	require.NoError(t, err)
	require.True(t, update.Held)
	require.Zero(t, update.NewStop.Cmp(wad(1176)))

	snapshot, err := eng.ValidateTrigger(ctx, orderA, wad(1150))
	require.NoError(t, err)
	require.Zero(t, snapshot.StopPrice.Cmp(wad(1176)))
}

func TestUpdateConcurrentSameID(t *testing.T) {
	eng, feed, clock := testEngine(t)
	ctx := context.Background()

	_, err := eng.Configure(ctx, configureParams(orderA, 950))
	require.NoError(t, err)
	feed.SetPrice(ethOracle, wad(1000))
	clock.Advance(time.Hour)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.Update(ctx, orderA)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, core.ErrUpdateTooFrequent)
	}
	require.Equal(t, 1, succeeded, "exactly one concurrent update may pass the rate gate")
}

func TestEngineEvents(t *testing.T) {
	eng, feed, clock := testEngine(t)
	ctx := context.Background()

	received := make(chan core.Event, 8)
	eng.Events().SubscribeAll(func(ev core.Event) {
		received <- ev
	})
	eng.Events().Start()
	defer eng.Events().Stop()

	_, err := eng.Configure(ctx, configureParams(orderA, 950))
	require.NoError(t, err)

	feed.SetPrice(ethOracle, wad(1000))
	clock.Advance(time.Hour)
	_, err = eng.Update(ctx, orderA)
	require.NoError(t, err)

	wantKinds := []core.EventKind{core.EventStopConfigured, core.EventStopUpdated}
	for _, want := range wantKinds {
		select {
		case ev := <-received:
			require.Equal(t, want, ev.Kind)
			require.Equal(t, orderA, ev.OrderID)
		case <-time.After(time.Second):
			t.Fatalf("event %s not published", want)
		}
	}
}
