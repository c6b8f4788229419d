// Package gateway implements the execution handshake that settles a
// triggered order through a swap venue, with custody transfers grouped in a
// single vault transaction so every failure rolls back completely.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/raykavin/stopkeep/core"
	"github.com/raykavin/stopkeep/event"
)

const defaultSwapTimeout = 30 * time.Second

// defaultEscrow is the custody account used when none is configured
var defaultEscrow = common.BytesToAddress([]byte("stopkeep:escrow"))

// Gateway moves maker funds through a registered swap venue. The whole
// handshake runs inside one vault transaction: debit maker to escrow, grant
// the venue an exact allowance, swap, enforce the minimum output, forward
// the proceeds. Any failure restores every balance and allowance.
type Gateway struct {
	vault       core.AssetVault
	escrow      common.Address
	log         core.Logger
	clock       core.Clock
	pause       *core.PauseSwitch
	events      *event.Feed
	swapTimeout time.Duration

	mu     sync.RWMutex
	venues map[string]core.SwapVenue
}

// Option is a functional option for configuring a Gateway instance
type Option func(*Gateway)

// WithClock sets the time source used for settlement timestamps
func WithClock(clock core.Clock) Option {
	return func(g *Gateway) {
		g.clock = clock
	}
}

// WithPauseSwitch shares a pause switch with other components
func WithPauseSwitch(pause *core.PauseSwitch) Option {
	return func(g *Gateway) {
		g.pause = pause
	}
}

// WithEventFeed publishes gateway events on the given feed
func WithEventFeed(events *event.Feed) Option {
	return func(g *Gateway) {
		g.events = events
	}
}

// WithEscrow sets the custody account funds pass through
func WithEscrow(escrow common.Address) Option {
	return func(g *Gateway) {
		if escrow != (common.Address{}) {
			g.escrow = escrow
		}
	}
}

// WithSwapTimeout bounds the venue leg of every execution; 0 disables the
// bound
func WithSwapTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		g.swapTimeout = timeout
	}
}

// New creates an execution gateway on top of a custody vault.
func New(vault core.AssetVault, log core.Logger, options ...Option) *Gateway {
	gateway := &Gateway{
		vault:       vault,
		escrow:      defaultEscrow,
		log:         log.WithField("component", "gateway"),
		clock:       core.SystemClock{},
		pause:       new(core.PauseSwitch),
		events:      event.NewFeed(),
		swapTimeout: defaultSwapTimeout,
		venues:      make(map[string]core.SwapVenue),
	}

	for _, option := range options {
		option(gateway)
	}

	return gateway
}

// RegisterVenue binds a venue under a name, replacing any previous binding
func (g *Gateway) RegisterVenue(name string, venue core.SwapVenue) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.venues[name] = venue
}

// Venue returns the venue registered under a name
func (g *Gateway) Venue(name string) (core.SwapVenue, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	venue, ok := g.venues[name]
	return venue, ok
}

// Escrow returns the custody account funds pass through
func (g *Gateway) Escrow() common.Address { return g.escrow }

// Events returns the feed gateway activity is published on.
func (g *Gateway) Events() *event.Feed { return g.events }

// Paused reports the shared pause state.
func (g *Gateway) Paused() bool { return g.pause.Paused() }

// Execute settles a triggered order through its venue. Either every
// transfer lands and the settlement is returned, or the vault rolls back
// to its pre-call state and the error tells why.
func (g *Gateway) Execute(ctx context.Context, req core.ExecRequest) (*core.Settlement, error) {
	if g.pause.Paused() {
		return nil, core.ErrPaused
	}
	if req.MakingAmount == nil || req.MakingAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: making amount must be positive", core.ErrInvalidAmount)
	}
	minOutput := req.MinOutput
	if minOutput == nil {
		minOutput = big.NewInt(0)
	}
	if minOutput.Sign() < 0 {
		return nil, fmt.Errorf("%w: min output must not be negative", core.ErrInvalidAmount)
	}

	venue, ok := g.Venue(req.Venue)
	if !ok {
		return nil, g.fail(req, fmt.Errorf("%w: unknown venue %q", core.ErrSwapFailed, req.Venue))
	}

	receiver := req.Receiver
	if receiver == (common.Address{}) {
		receiver = req.Maker
	}

	execCtx := ctx
	if g.swapTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, g.swapTimeout)
		defer cancel()
	}

	var settlement *core.Settlement
	err := g.vault.InTx(execCtx, func(ops core.VaultOps) error {
		if err := ops.Transfer(req.Maker, g.escrow, req.MakerAsset, req.MakingAmount); err != nil {
			return fmt.Errorf("failed to debit maker: %w", err)
		}

		if err := ops.Approve(g.escrow, venue.Account(), req.MakerAsset, req.MakingAmount); err != nil {
			return fmt.Errorf("failed to grant venue allowance: %w", err)
		}

		out, err := venue.Swap(execCtx, ops, core.SwapRequest{
			TokenIn:   req.MakerAsset,
			TokenOut:  req.TakerAsset,
			AmountIn:  req.MakingAmount,
			Payer:     g.escrow,
			Recipient: g.escrow,
			Payload:   req.Payload,
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return fmt.Errorf("%w: %v", core.ErrExecutionTimeout, err)
			}
			return fmt.Errorf("%w: %v", core.ErrSwapFailed, err)
		}
		if out == nil {
			return fmt.Errorf("%w: venue reported no output", core.ErrSwapFailed)
		}
		if out.Cmp(minOutput) < 0 {
			return fmt.Errorf("%w: venue delivered %s, need at least %s",
				core.ErrSlippageExceeded, out.String(), minOutput.String())
		}

		// revoke whatever allowance the venue did not consume
		if err := ops.Approve(g.escrow, venue.Account(), req.MakerAsset, big.NewInt(0)); err != nil {
			return fmt.Errorf("failed to revoke venue allowance: %w", err)
		}

		if out.Sign() > 0 {
			if err := ops.Transfer(g.escrow, receiver, req.TakerAsset, out); err != nil {
				return fmt.Errorf("failed to forward output: %w", err)
			}
		}

		settlement = &core.Settlement{
			OrderID:   req.OrderID,
			Maker:     req.Maker,
			Receiver:  receiver,
			AssetIn:   req.MakerAsset,
			AssetOut:  req.TakerAsset,
			AmountIn:  new(big.Int).Set(req.MakingAmount),
			AmountOut: new(big.Int).Set(out),
			Venue:     req.Venue,
			SettledAt: g.clock.Now(),
		}
		return nil
	})
	if err != nil {
		// the transaction itself can surface a bare context error before
		// the venue leg runs
		if core.Classify(err) == core.ClassUnknown &&
			(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
			err = fmt.Errorf("%w: %v", core.ErrExecutionTimeout, err)
		}
		return nil, g.fail(req, err)
	}

	ev := core.NewEvent(core.EventExecutionSettled, req.OrderID, settlement.SettledAt)
	ev.Settlement = settlement
	g.events.Publish(ev)

	g.log.Infof("Execution settled for %s: %s in, %s out via %s",
		shortID(req.OrderID), settlement.AmountIn.String(), settlement.AmountOut.String(), req.Venue)
	return settlement, nil
}

// fail publishes the failure event and returns the error unchanged
func (g *Gateway) fail(req core.ExecRequest, err error) error {
	ev := core.NewEvent(core.EventExecutionFailed, req.OrderID, g.clock.Now())
	ev.Reason = err.Error()
	g.events.Publish(ev)

	g.log.WithError(err).Errorf("Execution failed for %s via %s", shortID(req.OrderID), req.Venue)
	return err
}

// shortID renders an order id for logs.
func shortID(id common.Hash) string {
	return id.Hex()[:10]
}
