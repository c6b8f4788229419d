package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePrice(t *testing.T) {
	t.Run("scales a low precision feed up", func(t *testing.T) {
		// 1000.50 quoted with 8 decimals
		raw := big.NewInt(100_050_000_000)
		got := NormalizePrice(raw, 8)

		want, err := ParsePrice("1000.5")
		require.NoError(t, err)
		require.Zero(t, want.Cmp(got))
	})

	t.Run("scales a high precision feed down", func(t *testing.T) {
		raw, ok := new(big.Int).SetString("1000500000000000000000000", 10) // 21 decimals
		require.True(t, ok)
		got := NormalizePrice(raw, 21)

		want, err := ParsePrice("1000.5")
		require.NoError(t, err)
		require.Zero(t, want.Cmp(got))
	})

	t.Run("canonical input passes through", func(t *testing.T) {
		raw := big.NewInt(42)
		got := NormalizePrice(raw, PriceDecimals)
		require.Zero(t, got.Cmp(raw))
		require.NotSame(t, raw, got)
	})

	t.Run("negative exponent mantissa scales up", func(t *testing.T) {
		// 1.5e3 style quote: mantissa 15, exponent +2 means decimals -2
		got := NormalizePrice(big.NewInt(15), -2)
		want, err := ParsePrice("1500")
		require.NoError(t, err)
		require.Zero(t, want.Cmp(got))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		require.Nil(t, NormalizePrice(nil, 8))
	})
}

func TestParseFormatPrice(t *testing.T) {
	p, err := ParsePrice("1250.75")
	require.NoError(t, err)

	unit := PriceUnit()
	want := new(big.Int).Mul(big.NewInt(125075), unit)
	want.Quo(want, big.NewInt(100))
	require.Zero(t, want.Cmp(p))

	require.Equal(t, "1250.75", FormatPrice(p))
	require.InDelta(t, 1250.75, PriceFloat(p), 1e-9)

	_, err = ParsePrice("not a price")
	require.Error(t, err)
}
