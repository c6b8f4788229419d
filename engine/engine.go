// Package engine implements the trailing stop lifecycle: configuration,
// rate-gated ratchet updates against a price oracle, and trigger validation.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/raykavin/stopkeep/core"
	"github.com/raykavin/stopkeep/event"
)

const defaultOracleTimeout = 10 * time.Second

// ConfigureParams are the inputs for configuring one trailing stop
type ConfigureParams struct {
	OrderID     common.Hash
	Oracle      core.OracleRef
	InitialStop *big.Int
	DistanceBps int64
	UpdateEvery time.Duration
}

// Engine manages trailing stop records against the registry and the price
// oracle. All operations on the same order id are serialized; operations on
// different ids proceed concurrently.
type Engine struct {
	storage       core.StopStorage
	oracle        core.PriceOracle
	log           core.Logger
	clock         core.Clock
	pause         *core.PauseSwitch
	events        *event.Feed
	locks         keyLocks
	oracleTimeout time.Duration
	maxPriceAge   time.Duration
}

// Option is a functional option for configuring an Engine instance
type Option func(*Engine)

// WithClock sets the time source used for the rate gate
func WithClock(clock core.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithPauseSwitch shares a pause switch with other components
func WithPauseSwitch(pause *core.PauseSwitch) Option {
	return func(e *Engine) {
		e.pause = pause
	}
}

// WithEventFeed publishes engine events on the given feed
func WithEventFeed(events *event.Feed) Option {
	return func(e *Engine) {
		e.events = events
	}
}

// WithOracleTimeout bounds each oracle read; 0 disables the bound
func WithOracleTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		e.oracleTimeout = timeout
	}
}

// WithMaxPriceAge rejects oracle quotes older than the given age; 0 disables
// the staleness check
func WithMaxPriceAge(age time.Duration) Option {
	return func(e *Engine) {
		e.maxPriceAge = age
	}
}

// New creates a trailing stop engine on top of a registry and an oracle.
func New(storage core.StopStorage, oracle core.PriceOracle, log core.Logger, options ...Option) *Engine {
	engine := &Engine{
		storage:       storage,
		oracle:        oracle,
		log:           log.WithField("component", "engine"),
		clock:         core.SystemClock{},
		pause:         new(core.PauseSwitch),
		events:        event.NewFeed(),
		oracleTimeout: defaultOracleTimeout,
	}

	for _, option := range options {
		option(engine)
	}

	return engine
}

// Events returns the feed engine activity is published on.
func (e *Engine) Events() *event.Feed { return e.events }

// Configure creates or fully replaces the trailing stop for an order id.
// Replacing resets the ratchet to the new initial stop. Validation failures
// leave the registry untouched.
func (e *Engine) Configure(ctx context.Context, params ConfigureParams) (*core.TrailingStop, error) {
	if params.Oracle.IsZero() {
		return nil, core.ErrInvalidOracle
	}
	if params.InitialStop == nil || params.InitialStop.Sign() <= 0 {
		return nil, core.ErrInvalidStopPrice
	}
	if params.DistanceBps < core.MinTrailingDistanceBps || params.DistanceBps > core.MaxTrailingDistanceBps {
		return nil, fmt.Errorf("%w: %d bps", core.ErrInvalidTrailingDistance, params.DistanceBps)
	}
	if params.UpdateEvery < 0 {
		params.UpdateEvery = 0
	}

	unlock := e.locks.lock(params.OrderID)
	defer unlock()

	now := e.clock.Now()
	stop := &core.TrailingStop{
		OrderID:      params.OrderID,
		Oracle:       params.Oracle,
		InitialStop:  new(big.Int).Set(params.InitialStop),
		CurrentStop:  new(big.Int).Set(params.InitialStop),
		DistanceBps:  params.DistanceBps,
		UpdateEvery:  core.Duration(params.UpdateEvery),
		ConfiguredAt: now,
		LastUpdateAt: now,
	}

	if err := e.storage.SaveStop(ctx, stop); err != nil {
		return nil, fmt.Errorf("failed to save trailing stop: %w", err)
	}

	ev := core.NewEvent(core.EventStopConfigured, stop.OrderID, now)
	ev.Stop = stop.Clone()
	e.events.Publish(ev)

	e.log.Infof("Trailing stop configured for %s: stop %s, distance %d bps, every %s",
		shortID(stop.OrderID), core.FormatPrice(stop.CurrentStop), stop.DistanceBps, stop.UpdateEvery)
	return stop, nil
}

// Update ratchets the stop for an order id against a fresh oracle price.
// The update is all-or-nothing: any failure leaves the record exactly as it
// was, and LastUpdateAt only advances with a successful write.
func (e *Engine) Update(ctx context.Context, id common.Hash) (*core.StopUpdate, error) {
	if e.pause.Paused() {
		return nil, core.ErrPaused
	}

	unlock := e.locks.lock(id)
	defer unlock()

	stop, err := e.storage.Stop(ctx, id)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	if !stop.Due(now) {
		return nil, fmt.Errorf("%w: next update at %s", core.ErrUpdateTooFrequent, stop.NextDue().Format(time.RFC3339))
	}

	price, err := e.readPrice(ctx, stop.Oracle, now)
	if err != nil {
		return nil, err
	}

	next, held := NextStop(stop.CurrentStop, price, stop.DistanceBps)
	update := &core.StopUpdate{
		OrderID:      id,
		Oracle:       stop.Oracle,
		MarketPrice:  price,
		PreviousStop: stop.CurrentStop,
		NewStop:      new(big.Int).Set(next),
		Held:         held,
		UpdatedAt:    now,
	}

	stop.CurrentStop = next
	stop.LastUpdateAt = now
	if err := e.storage.SaveStop(ctx, stop); err != nil {
		return nil, fmt.Errorf("failed to save trailing stop: %w", err)
	}

	ev := core.NewEvent(core.EventStopUpdated, id, now)
	ev.Update = update
	e.events.Publish(ev)

	if held {
		e.log.Debugf("Stop held for %s at %s, market %s below peak",
			shortID(id), core.FormatPrice(update.NewStop), core.FormatPrice(price))
	} else {
		e.log.Infof("Stop moved for %s: %s -> %s, market %s",
			shortID(id), core.FormatPrice(update.PreviousStop), core.FormatPrice(update.NewStop), core.FormatPrice(price))
	}
	return update, nil
}

// ValidateTrigger checks that an observed fill price has reached the stop:
// the trigger fires only when observed <= current stop, equality included.
// The call is read-only and returns the validated snapshot.
func (e *Engine) ValidateTrigger(ctx context.Context, id common.Hash, observed *big.Int) (*core.StopSnapshot, error) {
	if observed == nil || observed.Sign() <= 0 {
		return nil, core.ErrInvalidStopPrice
	}

	stop, err := e.storage.Stop(ctx, id)
	if err != nil {
		return nil, err
	}

	if observed.Cmp(stop.CurrentStop) > 0 {
		return nil, fmt.Errorf("%w: observed %s above stop %s",
			core.ErrStopNotReached, core.FormatPrice(observed), core.FormatPrice(stop.CurrentStop))
	}

	snapshot := &core.StopSnapshot{
		OrderID:       id,
		Oracle:        stop.Oracle,
		StopPrice:     new(big.Int).Set(stop.CurrentStop),
		ObservedPrice: new(big.Int).Set(observed),
		DistanceBps:   stop.DistanceBps,
		LastUpdateAt:  stop.LastUpdateAt,
	}

	ev := core.NewEvent(core.EventTriggerValidated, id, e.clock.Now())
	ev.Snapshot = snapshot
	e.events.Publish(ev)

	return snapshot, nil
}

// Stop returns the stored record for an order id.
func (e *Engine) Stop(ctx context.Context, id common.Hash) (*core.TrailingStop, error) {
	return e.storage.Stop(ctx, id)
}

// Stops returns the stored records matching every filter.
func (e *Engine) Stops(ctx context.Context, filters ...core.StopFilter) ([]*core.TrailingStop, error) {
	return e.storage.Stops(ctx, filters...)
}

// Delete removes the record for an order id, ending its trailing lifecycle.
func (e *Engine) Delete(ctx context.Context, id common.Hash) error {
	unlock := e.locks.lock(id)
	defer unlock()

	if err := e.storage.DeleteStop(ctx, id); err != nil {
		return err
	}

	e.log.Infof("Trailing stop deleted for %s", shortID(id))
	return nil
}

// Pause gates every Update and Execute sharing this engine's switch.
// Configuration and reads stay available while paused.
func (e *Engine) Pause() {
	e.pause.Pause()
	e.events.Publish(core.NewEvent(core.EventEnginePaused, common.Hash{}, e.clock.Now()))
	e.log.Warn("Engine paused")
}

// Unpause resumes gated operations.
func (e *Engine) Unpause() {
	e.pause.Unpause()
	e.events.Publish(core.NewEvent(core.EventEngineUnpaused, common.Hash{}, e.clock.Now()))
	e.log.Info("Engine unpaused")
}

// Paused reports the shared pause state.
func (e *Engine) Paused() bool { return e.pause.Paused() }

// readPrice fetches and normalizes the latest oracle price. Every failure
// mode surfaces as ErrOracleUnavailable with the cause attached.
func (e *Engine) readPrice(ctx context.Context, ref core.OracleRef, now time.Time) (*big.Int, error) {
	octx := ctx
	if e.oracleTimeout > 0 {
		var cancel context.CancelFunc
		octx, cancel = context.WithTimeout(ctx, e.oracleTimeout)
		defer cancel()
	}

	quote, err := e.oracle.LatestPrice(octx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrOracleUnavailable, err)
	}
	if quote.Price == nil || quote.Price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: feed %s returned a non-positive price", core.ErrOracleUnavailable, ref)
	}
	if e.maxPriceAge > 0 && !quote.ObservedAt.IsZero() && now.Sub(quote.ObservedAt) > e.maxPriceAge {
		return nil, fmt.Errorf("%w: quote for %s is stale", core.ErrOracleUnavailable, ref)
	}

	return core.NormalizePrice(quote.Price, quote.Decimals), nil
}

// shortID renders an order id for logs.
func shortID(id common.Hash) string {
	return id.Hex()[:10]
}
