package core

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Trailing distance bounds in basis points. Distances under the floor ratchet
// too tightly to survive ordinary price noise; distances over the ceiling
// would push the stop below zero.
const (
	MinTrailingDistanceBps = 50
	MaxTrailingDistanceBps = 10_000
	BpsDenominator         = 10_000
)

// ParseOrderID decodes a full 32-byte 0x-hex order id. Short values are
// rejected rather than padded; a truncated id is almost always a caller bug.
func ParseOrderID(raw string) (common.Hash, error) {
	raw = strings.TrimSpace(raw)
	decoded, err := hexutil.Decode(raw)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid order id %q: %v", raw, err)
	}
	if len(decoded) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid order id %q: want %d bytes, got %d",
			raw, common.HashLength, len(decoded))
	}
	return common.BytesToHash(decoded), nil
}

// ParseAddress decodes a 0x-hex account address. The field name is only
// used in the error message.
func ParseAddress(field, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", field, raw)
	}
	return common.HexToAddress(raw), nil
}

// TrailingStop is the registry record for one order. The record is stored
// and replaced whole; a zero ConfiguredAt marks the id as not configured.
type TrailingStop struct {
	OrderID      common.Hash `json:"order_id"`
	Oracle       OracleRef   `json:"oracle"`
	InitialStop  *big.Int    `json:"initial_stop"`
	CurrentStop  *big.Int    `json:"current_stop"`
	DistanceBps  int64       `json:"distance_bps"`
	UpdateEvery  Duration    `json:"update_every"`
	ConfiguredAt time.Time   `json:"configured_at"`
	LastUpdateAt time.Time   `json:"last_update_at"`
}

// Configured reports whether the record exists, i.e. was ever configured.
func (t *TrailingStop) Configured() bool {
	return t != nil && !t.ConfiguredAt.IsZero()
}

// Due reports whether the minimum update interval has elapsed at the given
// instant. An elapsed time exactly equal to the interval is due.
func (t *TrailingStop) Due(now time.Time) bool {
	if !t.Configured() {
		return false
	}
	return now.Sub(t.LastUpdateAt) >= t.UpdateEvery.Std()
}

// NextDue returns the earliest instant at which an update is allowed again.
func (t *TrailingStop) NextDue() time.Time {
	return t.LastUpdateAt.Add(t.UpdateEvery.Std())
}

// Clone returns a deep copy of the record. Storage implementations hand out
// clones so callers can never mutate persisted state through shared pointers.
func (t *TrailingStop) Clone() *TrailingStop {
	if t == nil {
		return nil
	}
	c := *t
	if t.InitialStop != nil {
		c.InitialStop = new(big.Int).Set(t.InitialStop)
	}
	if t.CurrentStop != nil {
		c.CurrentStop = new(big.Int).Set(t.CurrentStop)
	}
	return &c
}

// StopUpdate describes one completed update: the market price that was
// observed and how the stop moved in response. Held is true when the
// candidate stop would have loosened the current one and was discarded.
type StopUpdate struct {
	OrderID      common.Hash `json:"order_id"`
	Oracle       OracleRef   `json:"oracle"`
	MarketPrice  *big.Int    `json:"market_price"`
	PreviousStop *big.Int    `json:"previous_stop"`
	NewStop      *big.Int    `json:"new_stop"`
	Held         bool        `json:"held"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// StopSnapshot is the read-only view returned by a successful trigger
// validation.
type StopSnapshot struct {
	OrderID       common.Hash `json:"order_id"`
	Oracle        OracleRef   `json:"oracle"`
	StopPrice     *big.Int    `json:"stop_price"`
	ObservedPrice *big.Int    `json:"observed_price"`
	DistanceBps   int64       `json:"distance_bps"`
	LastUpdateAt  time.Time   `json:"last_update_at"`
}
