package keeper

import (
	"context"
	"errors"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/raykavin/stopkeep/core"
	"github.com/raykavin/stopkeep/engine"
	"github.com/raykavin/stopkeep/gateway"
	logadapter "github.com/raykavin/stopkeep/logger/zerolog"
	"github.com/raykavin/stopkeep/pricefeed"
	"github.com/raykavin/stopkeep/storage"
	"github.com/raykavin/stopkeep/venue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var (
	orderA = common.Hash{0xaa}
	orderB = common.Hash{0xbb}

	maker    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	venueAcc = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	weth     = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	usdc     = common.HexToAddress("0x0000000000000000000000000000000000000e02")

	ethOracle  = core.OracleRef("static:eth-usd")
	downOracle = core.OracleRef("static:down-usd")
)

func testLogger() core.Logger {
	zl := zerolog.New(io.Discard)
	return logadapter.NewAdapter(&zl)
}

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), core.PriceUnit())
}

// bench is a fully wired stack: registry, static feed, engine, funded vault,
// paper venue, gateway and keeper, all on one manual clock.
type bench struct {
	storage *storage.BuntStorage
	feed    *pricefeed.Static
	clock   *core.ManualClock
	engine  *engine.Engine
	vault   *venue.Vault
	paper   *venue.Paper
	gateway *gateway.Gateway
	keeper  *Keeper
}

func newBench(t *testing.T, options ...Option) *bench {
	t.Helper()

	db, err := storage.FromMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	feed := pricefeed.NewStatic()
	clock := core.NewManualClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	log := testLogger()

	eng := engine.New(db, feed, log, engine.WithClock(clock))

	vault := venue.NewVault(log,
		venue.WithFunds(maker, weth, wad(10)),
		venue.WithFunds(venueAcc, usdc, wad(100_000)),
	)
	paper := venue.NewPaper(venueAcc, log, venue.WithRate(weth, usdc, wad(1200)))

	gw := gateway.New(vault, log, gateway.WithClock(clock))
	gw.RegisterVenue("paper", paper)

	keeper := NewKeeper(eng, gw, db, log, append([]Option{WithClock(clock)}, options...)...)

	return &bench{
		storage: db,
		feed:    feed,
		clock:   clock,
		engine:  eng,
		vault:   vault,
		paper:   paper,
		gateway: gw,
		keeper:  keeper,
	}
}

func (b *bench) configure(t *testing.T, id common.Hash, oracle core.OracleRef, every time.Duration) {
	t.Helper()
	_, err := b.engine.Configure(context.Background(), engine.ConfigureParams{
		OrderID:     id,
		Oracle:      oracle,
		InitialStop: wad(950),
		DistanceBps: 200,
		UpdateEvery: every,
	})
	require.NoError(t, err)
}

func sellIntent(minOutput *big.Int) *core.ExecRequest {
	return &core.ExecRequest{
		Maker:        maker,
		MakerAsset:   weth,
		TakerAsset:   usdc,
		MakingAmount: wad(2),
		MinOutput:    minOutput,
		Venue:        "paper",
	}
}

func TestCheckDue(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()

	b.configure(t, orderA, ethOracle, time.Hour)
	b.configure(t, orderB, ethOracle, 2*time.Hour)

	due, err := b.keeper.CheckDue(ctx, []common.Hash{orderA, orderB})
	require.NoError(t, err)
	require.Empty(t, due)

	b.clock.Advance(time.Hour)
	due, err = b.keeper.CheckDue(ctx, []common.Hash{orderA, orderB})
	require.NoError(t, err)
	require.Equal(t, []common.Hash{orderA}, due)

	b.clock.Advance(time.Hour)
	due, err = b.keeper.CheckDue(ctx, []common.Hash{orderA, orderB})
	require.NoError(t, err)
	require.Equal(t, []common.Hash{orderA, orderB}, due)

	// input order is preserved
	due, err = b.keeper.CheckDue(ctx, []common.Hash{orderB, orderA})
	require.NoError(t, err)
	require.Equal(t, []common.Hash{orderB, orderA}, due)
}

func TestCheckDueSkipsUnknownAndDuplicates(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()

	b.configure(t, orderA, ethOracle, time.Hour)
	b.clock.Advance(time.Hour)

	unknown := common.Hash{0xff}
	due, err := b.keeper.CheckDue(ctx, []common.Hash{orderA, unknown, orderA})
	require.NoError(t, err)
	require.Equal(t, []common.Hash{orderA}, due)
}

func TestCheckDueIsReadOnly(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()

	b.configure(t, orderA, ethOracle, time.Hour)
	b.clock.Advance(time.Hour)

	_, err := b.keeper.CheckDue(ctx, []common.Hash{orderA})
	require.NoError(t, err)

	// the check consumed nothing: the id is still due
	due, err := b.keeper.CheckDue(ctx, []common.Hash{orderA})
	require.NoError(t, err)
	require.Equal(t, []common.Hash{orderA}, due)
}

func TestRunCycleUpdates(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()

	b.configure(t, orderA, ethOracle, time.Hour)
	b.feed.SetPrice(ethOracle, wad(1000))
	b.clock.Advance(time.Hour)

	results, err := b.keeper.RunCycle(ctx, []common.Hash{orderA})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, ResultUpdated, results[0].Status)
	require.Zero(t, results[0].Update.NewStop.Cmp(wad(980)))
}

func TestRunCycleIsolatesFailures(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()

	b.configure(t, orderA, downOracle, time.Hour)
	b.configure(t, orderB, ethOracle, time.Hour)

	b.feed.SetError(downOracle, errors.New("connection refused"))
	b.feed.SetPrice(ethOracle, wad(1000))
	b.clock.Advance(time.Hour)

	results, err := b.keeper.RunCycle(ctx, []common.Hash{orderA, orderB})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// A fails on its oracle, B proceeds untouched by A's failure
	require.Equal(t, orderA, results[0].OrderID)
	require.Equal(t, ResultFailed, results[0].Status)
	require.ErrorIs(t, results[0].Err, core.ErrOracleUnavailable)

	require.Equal(t, orderB, results[1].OrderID)
	require.Equal(t, ResultUpdated, results[1].Status)
	require.Zero(t, results[1].Update.NewStop.Cmp(wad(980)))
}

func TestRunCycleDeduplicates(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()

	b.configure(t, orderA, ethOracle, time.Hour)
	b.feed.SetPrice(ethOracle, wad(1000))
	b.clock.Advance(time.Hour)

	results, err := b.keeper.RunCycle(ctx, []common.Hash{orderA, orderA, orderA})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestRunCycleRateGateOnRepeat(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()

	b.configure(t, orderA, ethOracle, time.Hour)
	b.feed.SetPrice(ethOracle, wad(1000))
	b.clock.Advance(time.Hour)

	results, err := b.keeper.RunCycle(ctx, []common.Hash{orderA})
	require.NoError(t, err)
	require.Equal(t, ResultUpdated, results[0].Status)

	// immediate second cycle hits the rate gate and changes nothing
	results, err = b.keeper.RunCycle(ctx, []common.Hash{orderA})
	require.NoError(t, err)
	require.Equal(t, ResultFailed, results[0].Status)
	require.ErrorIs(t, results[0].Err, core.ErrUpdateTooFrequent)

	stop, err := b.engine.Stop(ctx, orderA)
	require.NoError(t, err)
	require.Zero(t, stop.CurrentStop.Cmp(wad(980)))
}

func TestRunCycleExecutesOnTrigger(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()

	b.configure(t, orderA, ethOracle, time.Hour)
	b.keeper.Watch(orderA, sellIntent(wad(2300)))

	// rally: stop climbs to 1176, market stays above it
	b.feed.SetPrice(ethOracle, wad(1200))
	b.clock.Advance(time.Hour)
	results, err := b.keeper.RunCycle(ctx, []common.Hash{orderA})
	require.NoError(t, err)
	require.Equal(t, ResultUpdated, results[0].Status)
	require.Equal(t, []common.Hash{orderA}, b.keeper.Watched())

	// pullback through the stop: held ratchet, then settlement
	b.feed.SetPrice(ethOracle, wad(1150))
	b.clock.Advance(time.Hour)
	results, err = b.keeper.RunCycle(ctx, []common.Hash{orderA})
	require.NoError(t, err)
	require.Equal(t, ResultExecuted, results[0].Status)
	require.NotNil(t, results[0].Settlement)
	require.Zero(t, results[0].Settlement.AmountOut.Cmp(wad(2400)))

	// executed orders leave the watchlist
	require.Empty(t, b.keeper.Watched())

	makerUSDC, err := b.vault.Balance(maker, usdc)
	require.NoError(t, err)
	require.Zero(t, makerUSDC.Cmp(wad(2400)))

	makerWETH, err := b.vault.Balance(maker, weth)
	require.NoError(t, err)
	require.Zero(t, makerWETH.Cmp(wad(8)))
}

func TestRunCycleFailedExecutionKeepsWatch(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()

	b.configure(t, orderA, ethOracle, time.Hour)
	// demand more than the venue will deliver
	b.keeper.Watch(orderA, sellIntent(wad(5000)))

	b.feed.SetPrice(ethOracle, wad(900))
	b.clock.Advance(time.Hour)

	results, err := b.keeper.RunCycle(ctx, []common.Hash{orderA})
	require.NoError(t, err)
	require.Equal(t, ResultFailed, results[0].Status)
	require.ErrorIs(t, results[0].Err, core.ErrSlippageExceeded)

	// the failed settlement rolled back and the order stays watched
	require.Equal(t, []common.Hash{orderA}, b.keeper.Watched())

	makerWETH, err := b.vault.Balance(maker, weth)
	require.NoError(t, err)
	require.Zero(t, makerWETH.Cmp(wad(10)))
}

func TestRunCycleNoIntentNoExecution(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()

	b.configure(t, orderA, ethOracle, time.Hour)
	b.keeper.Watch(orderA, nil)

	// market below the stop, but nothing to execute
	b.feed.SetPrice(ethOracle, wad(900))
	b.clock.Advance(time.Hour)

	results, err := b.keeper.RunCycle(ctx, []common.Hash{orderA})
	require.NoError(t, err)
	require.Equal(t, ResultHeld, results[0].Status)
	require.Equal(t, []common.Hash{orderA}, b.keeper.Watched())
}

func TestRunCycleCancelledContext(t *testing.T) {
	b := newBench(t)

	b.configure(t, orderA, ethOracle, time.Hour)
	b.clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := b.keeper.RunCycle(ctx, []common.Hash{orderA})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, results)
}

func TestWatchUnwatch(t *testing.T) {
	b := newBench(t)

	b.keeper.Watch(orderA, nil)
	b.keeper.Watch(orderB, sellIntent(wad(1)))
	b.keeper.Watch(orderA, nil) // duplicate

	require.Equal(t, []common.Hash{orderA, orderB}, b.keeper.Watched())

	b.keeper.Unwatch(orderA)
	require.Equal(t, []common.Hash{orderB}, b.keeper.Watched())
}

func TestKeeperDaemon(t *testing.T) {
	b := newBench(t, WithInterval(10*time.Millisecond))
	ctx := context.Background()

	// a zero update interval keeps the stop permanently due, so every
	// tick ratchets
	b.configure(t, orderA, ethOracle, 0)
	b.keeper.Watch(orderA, nil)
	b.feed.SetPrice(ethOracle, wad(1000))

	b.keeper.Start(ctx)
	require.Equal(t, StatusRunning, b.keeper.Status())

	require.Eventually(t, func() bool {
		stop, err := b.engine.Stop(ctx, orderA)
		if err != nil {
			return false
		}
		return stop.CurrentStop.Cmp(wad(980)) == 0
	}, time.Second, 5*time.Millisecond)

	b.keeper.Stop(ctx)
	require.Equal(t, StatusStopped, b.keeper.Status())
}
