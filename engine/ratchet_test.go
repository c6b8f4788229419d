package engine

import (
	"math/big"
	"testing"

	"github.com/raykavin/stopkeep/core"
	"github.com/stretchr/testify/require"
)

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), core.PriceUnit())
}

func TestTrailingAmount(t *testing.T) {
	// 200 bps of 1000 is exactly 20
	require.Zero(t, TrailingAmount(wad(1000), 200).Cmp(wad(20)))

	// 50 bps of 1000 is exactly 5
	require.Zero(t, TrailingAmount(wad(1000), 50).Cmp(wad(5)))

	// 10000 bps trails the full price
	require.Zero(t, TrailingAmount(wad(1000), 10_000).Cmp(wad(1000)))
}

func TestTrailingAmountFloors(t *testing.T) {
	// one wei above 1001 picks up a fractional trailing amount that must
	// round toward zero
	price := new(big.Int).Add(wad(1001), big.NewInt(1))

	exact := new(big.Int).Mul(wad(1001), big.NewInt(33))
	exact.Quo(exact, big.NewInt(10_000))

	got := TrailingAmount(price, 33)
	require.Zero(t, got.Cmp(exact), "fractional wei must floor, got %s want %s", got, exact)
}

func TestNextStopMoves(t *testing.T) {
	next, held := NextStop(wad(950), wad(1000), 200)
	require.False(t, held)
	require.Zero(t, next.Cmp(wad(980)))
}

func TestNextStopHolds(t *testing.T) {
	// candidate 1150 - 2% = 1127 would loosen the 1176 stop
	next, held := NextStop(wad(1176), wad(1150), 200)
	require.True(t, held)
	require.Zero(t, next.Cmp(wad(1176)))
}

func TestNextStopEqualCandidate(t *testing.T) {
	// price 1000 at 200 bps lands exactly on the current stop; rewriting
	// the same value is not a hold
	next, held := NextStop(wad(980), wad(1000), 200)
	require.False(t, held)
	require.Zero(t, next.Cmp(wad(980)))
}

func TestNextStopNilCurrent(t *testing.T) {
	next, held := NextStop(nil, wad(1000), 200)
	require.False(t, held)
	require.Zero(t, next.Cmp(wad(980)))
}

func TestNextStopReturnsCopyWhenHeld(t *testing.T) {
	current := wad(1176)
	next, held := NextStop(current, wad(1150), 200)
	require.True(t, held)

	next.Add(next, big.NewInt(1))
	require.Zero(t, current.Cmp(wad(1176)), "held stop must not alias the current stop")
}
