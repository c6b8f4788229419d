package venue

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/raykavin/stopkeep/core"
)

// rateBase scales exchange rates: a rate of 1e18 swaps one unit of input
// for one unit of output before fees.
var rateBase = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type rateKey struct {
	In  common.Address
	Out common.Address
}

// Paper simulates a swap venue settling against fixed exchange rates. It
// pulls the input asset from the payer through its allowance and pays the
// output from its own liquidity, so a dry venue account fails a swap the
// same way an illiquid real one would.
type Paper struct {
	mu      sync.Mutex
	account common.Address
	feeBps  int64
	rates   map[rateKey]*big.Int
	delay   time.Duration
	nextErr error
	nextOut *big.Int
	log     core.Logger
}

// PaperOption defines an option function to configure the paper venue
type PaperOption func(*Paper)

// WithFee sets the venue fee in basis points, charged on the output
func WithFee(bps int64) PaperOption {
	return func(p *Paper) {
		if bps > 0 {
			p.feeBps = bps
		}
	}
}

// WithRate fixes the exchange rate for one directed asset pair
func WithRate(in, out common.Address, rate *big.Int) PaperOption {
	return func(p *Paper) {
		p.setRate(in, out, rate)
	}
}

// NewPaper creates a simulated venue trading from the given ledger account
func NewPaper(account common.Address, log core.Logger, options ...PaperOption) *Paper {
	paper := &Paper{
		account: account,
		rates:   make(map[rateKey]*big.Int),
		log:     log.WithField("component", "paper_venue"),
	}
	for _, option := range options {
		option(paper)
	}
	return paper
}

// Account returns the ledger account the venue trades from
func (p *Paper) Account() common.Address {
	return p.account
}

// SetRate fixes the exchange rate for one directed asset pair. The rate is
// scaled by 1e18 units of output per unit of input.
func (p *Paper) SetRate(in, out common.Address, rate *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setRate(in, out, rate)
}

func (p *Paper) setRate(in, out common.Address, rate *big.Int) {
	if validAmount(rate) {
		p.rates[rateKey{in, out}] = new(big.Int).Set(rate)
	}
}

// SetDelay makes every swap wait before settling, to exercise deadlines
func (p *Paper) SetDelay(delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = delay
}

// SetNextError makes the next swap fail with err
func (p *Paper) SetNextError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextErr = err
}

// SetNextOutput overrides the computed output of the next swap
func (p *Paper) SetNextOutput(out *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextOut = new(big.Int).Set(out)
}

// quote computes the output amount for a swap, consuming any pending
// one-shot overrides.
func (p *Paper) quote(req core.SwapRequest) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.nextErr != nil {
		err := p.nextErr
		p.nextErr = nil
		return nil, err
	}

	if p.nextOut != nil {
		out := p.nextOut
		p.nextOut = nil
		return out, nil
	}

	rate, ok := p.rates[rateKey{req.TokenIn, req.TokenOut}]
	if !ok {
		return nil, fmt.Errorf("no rate for pair %s -> %s", req.TokenIn.Hex(), req.TokenOut.Hex())
	}

	out := new(big.Int).Mul(req.AmountIn, rate)
	out.Quo(out, rateBase)

	if p.feeBps > 0 {
		fee := new(big.Int).Mul(out, big.NewInt(p.feeBps))
		fee.Quo(fee, big.NewInt(core.BpsDenominator))
		out.Sub(out, fee)
	}

	return out, nil
}

func (p *Paper) settleDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delay
}

// Swap pulls the input from the payer via allowance, computes the output at
// the fixed rate minus fees, and pays the recipient from venue liquidity.
func (p *Paper) Swap(ctx context.Context, ops core.VaultOps, req core.SwapRequest) (*big.Int, error) {
	if delay := p.settleDelay(); delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !validAmount(req.AmountIn) {
		return nil, fmt.Errorf("%w: swap input must be positive", core.ErrInvalidAmount)
	}

	out, err := p.quote(req)
	if err != nil {
		return nil, err
	}

	if err := ops.TransferFrom(p.account, req.Payer, p.account, req.TokenIn, req.AmountIn); err != nil {
		return nil, fmt.Errorf("failed to pull input asset: %w", err)
	}

	if err := ops.Transfer(p.account, req.Recipient, req.TokenOut, out); err != nil {
		return nil, fmt.Errorf("failed to pay output asset: %w", err)
	}

	p.log.Debugf("swapped %s %s for %s %s",
		req.AmountIn.String(), req.TokenIn.Hex(), out.String(), req.TokenOut.Hex())

	return out, nil
}
