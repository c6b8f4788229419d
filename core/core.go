package core

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OracleRef identifies the price feed tracked by a trailing stop. The part
// before the first colon selects the feed adapter, the remainder is adapter
// specific, e.g. "binance:ETHUSDT" or "http:eth-usd".
type OracleRef string

// IsZero reports whether the reference is empty.
func (r OracleRef) IsZero() bool { return r == "" }

// Split separates the adapter scheme from the adapter-specific target.
// A reference without a colon is returned as a bare scheme.
func (r OracleRef) Split() (scheme, target string) {
	scheme, target, _ = strings.Cut(string(r), ":")
	return scheme, target
}

func (r OracleRef) String() string { return string(r) }

// PriceQuote is a single observation from a price feed. Price is the
// feed-native mantissa scaled by Decimals fractional digits; consumers
// rescale it to the canonical precision with NormalizePrice.
type PriceQuote struct {
	Price      *big.Int
	Decimals   int32
	ObservedAt time.Time
}

// PriceOracle exposes the latest observation of a price feed
type PriceOracle interface {
	LatestPrice(ctx context.Context, ref OracleRef) (PriceQuote, error)
}

// SwapRequest describes a single asset exchange submitted to a venue.
// Payload is venue-specific routing data and is never interpreted here.
type SwapRequest struct {
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  *big.Int
	Payer     common.Address
	Recipient common.Address
	Payload   []byte
}

// SwapVenue executes asset exchanges against a liquidity source. The venue
// settles through the VaultOps session it is handed, pulling TokenIn from the
// payer via its allowance and delivering TokenOut to the recipient. Swap
// returns the amount of TokenOut actually delivered.
type SwapVenue interface {
	// Account is the ledger account the venue trades from; allowances are
	// granted to this address.
	Account() common.Address
	Swap(ctx context.Context, ops VaultOps, req SwapRequest) (*big.Int, error)
}

// VaultOps is the set of ledger operations available inside a vault session.
// Amounts are always positive; implementations reject anything else.
type VaultOps interface {
	// Transfer moves amount of asset between two accounts.
	Transfer(from, to common.Address, asset common.Address, amount *big.Int) error

	// Approve sets the exact allowance spender may pull from owner.
	Approve(owner, spender common.Address, asset common.Address, amount *big.Int) error

	// TransferFrom moves amount of asset out of owner using spender's
	// allowance, decrementing it.
	TransferFrom(spender, owner, to common.Address, asset common.Address, amount *big.Int) error

	// Balance returns the current balance of asset held by owner.
	Balance(owner common.Address, asset common.Address) (*big.Int, error)

	// Allowance returns what spender may still pull from owner.
	Allowance(owner, spender common.Address, asset common.Address) (*big.Int, error)
}

// AssetVault is a custody ledger with transactional sessions. InTx runs fn
// against a session and commits its effects only when fn returns nil; any
// error restores the ledger exactly as it was. fn must use the session it is
// given, not the vault itself.
type AssetVault interface {
	VaultOps
	InTx(ctx context.Context, fn func(ops VaultOps) error) error
}

// ExecRequest carries everything needed to settle a triggered order through
// a swap venue. Venue names a gateway-registered venue, Payload is passed
// through untouched. Receiver defaults to Maker when zero.
type ExecRequest struct {
	OrderID      common.Hash    `json:"order_id"`
	Maker        common.Address `json:"maker"`
	Receiver     common.Address `json:"receiver,omitempty"`
	MakerAsset   common.Address `json:"maker_asset"`
	TakerAsset   common.Address `json:"taker_asset"`
	MakingAmount *big.Int       `json:"making_amount"`
	MinOutput    *big.Int       `json:"min_output"`
	Venue        string         `json:"venue"`
	Payload      []byte         `json:"payload,omitempty"`
}

// Settlement is the outcome of a successful execution.
type Settlement struct {
	OrderID   common.Hash    `json:"order_id"`
	Maker     common.Address `json:"maker"`
	Receiver  common.Address `json:"receiver"`
	AssetIn   common.Address `json:"asset_in"`
	AssetOut  common.Address `json:"asset_out"`
	AmountIn  *big.Int       `json:"amount_in"`
	AmountOut *big.Int       `json:"amount_out"`
	Venue     string         `json:"venue"`
	SettledAt time.Time      `json:"settled_at"`
}

// Notifier receives human-facing notifications about engine activity
type Notifier interface {
	Notify(text string)
	OnEvent(ev Event)
	OnError(err error)
}

// NotifierWithStart is a notifier that runs its own receive loop
type NotifierWithStart interface {
	Notifier
	Start()
}
