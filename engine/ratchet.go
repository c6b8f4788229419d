package engine

import (
	"math/big"

	"github.com/raykavin/stopkeep/core"
)

// TrailingAmount returns floor(price * bps / 10000), the distance the stop
// trails behind the market. Exact integer math, floor division.
func TrailingAmount(price *big.Int, bps int64) *big.Int {
	amount := new(big.Int).Mul(price, big.NewInt(bps))
	return amount.Quo(amount, big.NewInt(core.BpsDenominator))
}

// NextStop ratchets the stop against a fresh market price. The candidate is
// price minus the trailing amount; the ratchet is monotonic, so a candidate
// below the current stop is discarded and the stop held where it is. Returns
// the resulting stop and whether it was held.
func NextStop(current, price *big.Int, bps int64) (*big.Int, bool) {
	candidate := new(big.Int).Sub(price, TrailingAmount(price, bps))
	if current != nil && candidate.Cmp(current) < 0 {
		return new(big.Int).Set(current), true
	}
	return candidate, false
}
