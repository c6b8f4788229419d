package gateway

import (
	"context"
	"errors"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/raykavin/stopkeep/core"
	"github.com/raykavin/stopkeep/event"
	logadapter "github.com/raykavin/stopkeep/logger/zerolog"
	"github.com/raykavin/stopkeep/venue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var (
	orderA   = common.Hash{0xaa}
	maker    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	receiver = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	venueAcc = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	weth     = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	usdc     = common.HexToAddress("0x0000000000000000000000000000000000000e02")
)

func testLogger() core.Logger {
	zl := zerolog.New(io.Discard)
	return logadapter.NewAdapter(&zl)
}

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), core.PriceUnit())
}

// testBench wires a funded vault, a paper venue at 1 WETH = 1200 USDC and a
// gateway with the venue registered as "paper".
func testBench(t *testing.T, options ...Option) (*venue.Vault, *venue.Paper, *Gateway) {
	t.Helper()

	vault := venue.NewVault(testLogger(),
		venue.WithFunds(maker, weth, wad(5)),
		venue.WithFunds(venueAcc, usdc, wad(100_000)),
	)
	paper := venue.NewPaper(venueAcc, testLogger(), venue.WithRate(weth, usdc, wad(1200)))

	gw := New(vault, testLogger(), options...)
	gw.RegisterVenue("paper", paper)
	return vault, paper, gw
}

func execRequest(amount, minOutput *big.Int) core.ExecRequest {
	return core.ExecRequest{
		OrderID:      orderA,
		Maker:        maker,
		Receiver:     receiver,
		MakerAsset:   weth,
		TakerAsset:   usdc,
		MakingAmount: amount,
		MinOutput:    minOutput,
		Venue:        "paper",
	}
}

func requireBalance(t *testing.T, vault *venue.Vault, owner, asset common.Address, want *big.Int) {
	t.Helper()
	balance, err := vault.Balance(owner, asset)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(want), "balance of %s: got %s, want %s", owner.Hex(), balance, want)
}

func TestExecuteSettles(t *testing.T) {
	vault, _, gw := testBench(t)

	settlement, err := gw.Execute(context.Background(), execRequest(wad(2), wad(2300)))
	require.NoError(t, err)
	require.Equal(t, orderA, settlement.OrderID)
	require.Equal(t, receiver, settlement.Receiver)
	require.Zero(t, settlement.AmountIn.Cmp(wad(2)))
	require.Zero(t, settlement.AmountOut.Cmp(wad(2400)))

	requireBalance(t, vault, maker, weth, wad(3))
	requireBalance(t, vault, receiver, usdc, wad(2400))
	requireBalance(t, vault, venueAcc, weth, wad(2))
	requireBalance(t, vault, gw.Escrow(), weth, big.NewInt(0))
	requireBalance(t, vault, gw.Escrow(), usdc, big.NewInt(0))

	allowance, err := vault.Allowance(gw.Escrow(), venueAcc, weth)
	require.NoError(t, err)
	require.Zero(t, allowance.Sign())
}

func TestExecuteReceiverDefaultsToMaker(t *testing.T) {
	vault, _, gw := testBench(t)

	req := execRequest(wad(1), wad(1100))
	req.Receiver = common.Address{}

	settlement, err := gw.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, maker, settlement.Receiver)
	requireBalance(t, vault, maker, usdc, wad(1200))
}

func TestExecuteSlippageRollsBack(t *testing.T) {
	vault, _, gw := testBench(t)

	// venue delivers 2400, demand more
	_, err := gw.Execute(context.Background(), execRequest(wad(2), wad(2500)))
	require.ErrorIs(t, err, core.ErrSlippageExceeded)
	require.Equal(t, core.ClassExecution, core.Classify(err))

	requireBalance(t, vault, maker, weth, wad(5))
	requireBalance(t, vault, receiver, usdc, big.NewInt(0))
	requireBalance(t, vault, venueAcc, weth, big.NewInt(0))
	requireBalance(t, vault, venueAcc, usdc, wad(100_000))
	requireBalance(t, vault, gw.Escrow(), weth, big.NewInt(0))

	allowance, err := vault.Allowance(gw.Escrow(), venueAcc, weth)
	require.NoError(t, err)
	require.Zero(t, allowance.Sign())
}

func TestExecuteVenueFailureRollsBack(t *testing.T) {
	vault, paper, gw := testBench(t)

	paper.SetNextError(errors.New("pool drained"))

	_, err := gw.Execute(context.Background(), execRequest(wad(1), wad(1100)))
	require.ErrorIs(t, err, core.ErrSwapFailed)
	require.ErrorContains(t, err, "pool drained")

	requireBalance(t, vault, maker, weth, wad(5))
	requireBalance(t, vault, gw.Escrow(), weth, big.NewInt(0))
}

func TestExecuteTimeout(t *testing.T) {
	vault, paper, gw := testBench(t, WithSwapTimeout(30*time.Millisecond))

	paper.SetDelay(500 * time.Millisecond)

	_, err := gw.Execute(context.Background(), execRequest(wad(1), wad(1100)))
	require.ErrorIs(t, err, core.ErrExecutionTimeout)
	require.Equal(t, core.ClassExecution, core.Classify(err))

	requireBalance(t, vault, maker, weth, wad(5))
	requireBalance(t, vault, gw.Escrow(), weth, big.NewInt(0))
}

func TestExecutePaused(t *testing.T) {
	pause := new(core.PauseSwitch)
	vault, _, gw := testBench(t, WithPauseSwitch(pause))

	pause.Pause()
	_, err := gw.Execute(context.Background(), execRequest(wad(1), wad(1100)))
	require.ErrorIs(t, err, core.ErrPaused)
	requireBalance(t, vault, maker, weth, wad(5))

	pause.Unpause()
	_, err = gw.Execute(context.Background(), execRequest(wad(1), wad(1100)))
	require.NoError(t, err)
}

func TestExecuteUnknownVenue(t *testing.T) {
	_, _, gw := testBench(t)

	req := execRequest(wad(1), wad(1100))
	req.Venue = "cex"

	_, err := gw.Execute(context.Background(), req)
	require.ErrorIs(t, err, core.ErrSwapFailed)
	require.ErrorContains(t, err, "unknown venue")
}

func TestExecuteInvalidAmounts(t *testing.T) {
	_, _, gw := testBench(t)

	_, err := gw.Execute(context.Background(), execRequest(nil, wad(1)))
	require.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = gw.Execute(context.Background(), execRequest(big.NewInt(0), wad(1)))
	require.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = gw.Execute(context.Background(), execRequest(wad(1), big.NewInt(-1)))
	require.ErrorIs(t, err, core.ErrInvalidAmount)
}

func TestExecuteInsufficientMakerFunds(t *testing.T) {
	vault, _, gw := testBench(t)

	_, err := gw.Execute(context.Background(), execRequest(wad(50), wad(1)))
	require.ErrorIs(t, err, core.ErrInsufficientFunds)
	requireBalance(t, vault, maker, weth, wad(5))
}

func TestExecutePublishesEvents(t *testing.T) {
	events := event.NewFeed()
	_, paper, gw := testBench(t, WithEventFeed(events))

	received := make(chan core.Event, 2)
	events.SubscribeAll(func(ev core.Event) {
		received <- ev
	})
	events.Start()
	defer events.Stop()

	_, err := gw.Execute(context.Background(), execRequest(wad(1), wad(1100)))
	require.NoError(t, err)

	select {
	case ev := <-received:
		require.Equal(t, core.EventExecutionSettled, ev.Kind)
		require.Equal(t, orderA, ev.OrderID)
		require.NotNil(t, ev.Settlement)
	case <-time.After(time.Second):
		t.Fatal("settlement event not published")
	}

	paper.SetNextError(errors.New("pool drained"))
	_, err = gw.Execute(context.Background(), execRequest(wad(1), wad(1100)))
	require.Error(t, err)

	select {
	case ev := <-received:
		require.Equal(t, core.EventExecutionFailed, ev.Kind)
		require.Contains(t, ev.Reason, "pool drained")
	case <-time.After(time.Second):
		t.Fatal("failure event not published")
	}
}
