package core

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// PriceDecimals is the canonical fixed-point precision. All stop prices and
// normalized market prices carry this many fractional decimal digits.
const PriceDecimals = 18

// PriceUnit returns 10^PriceDecimals as a fresh big.Int.
func PriceUnit() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(PriceDecimals), nil)
}

// NormalizePrice rescales a feed-native mantissa with the given number of
// fractional digits to the canonical precision. Scaling down truncates, which
// keeps every derived stop price a floor of the exact value.
func NormalizePrice(raw *big.Int, feedDecimals int32) *big.Int {
	if raw == nil {
		return nil
	}
	diff := int64(PriceDecimals) - int64(feedDecimals)
	out := new(big.Int).Set(raw)
	if diff == 0 {
		return out
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(abs64(diff)), nil)
	if diff > 0 {
		return out.Mul(out, scale)
	}
	return out.Quo(out, scale)
}

// ParsePrice converts a human decimal string such as "1250.75" to the
// canonical fixed-point representation.
func ParsePrice(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price %q: %w", s, err)
	}
	scaled := d.Shift(PriceDecimals)
	if !scaled.IsInteger() {
		// more than 18 fractional digits, truncate the excess
		scaled = scaled.Truncate(0)
	}
	return scaled.BigInt(), nil
}

// FormatPrice renders a canonical fixed-point value as a decimal string with
// trailing zeros trimmed.
func FormatPrice(p *big.Int) string {
	if p == nil {
		return "0"
	}
	return decimal.NewFromBigInt(p, -PriceDecimals).String()
}

// PriceFloat converts a canonical fixed-point value to float64 for display
// and statistics. Not for engine arithmetic.
func PriceFloat(p *big.Int) float64 {
	if p == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(p, -PriceDecimals).Float64()
	return f
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
