// Package keeper automates trailing stop upkeep: it tracks a watchlist of
// order ids, checks which are due for an update, runs update cycles with
// per-order failure isolation and settles orders whose stop has been hit.
package keeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/StudioSol/set"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/raykavin/stopkeep/core"
	"github.com/raykavin/stopkeep/engine"
	"github.com/raykavin/stopkeep/event"
	"github.com/raykavin/stopkeep/gateway"
)

// Status represents the current state of the keeper daemon
type Status string

// Available keeper statuses
const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// ResultStatus labels the outcome for one order in a cycle
type ResultStatus string

const (
	// ResultUpdated means the stop ratcheted to a tighter price
	ResultUpdated ResultStatus = "updated"
	// ResultHeld means the update succeeded but the stop did not move
	ResultHeld ResultStatus = "held"
	// ResultExecuted means the stop was hit and the order settled
	ResultExecuted ResultStatus = "executed"
	// ResultFailed means the order's upkeep failed; the rest of the cycle
	// is unaffected
	ResultFailed ResultStatus = "failed"
)

// Result is the outcome for one order id in a cycle
type Result struct {
	OrderID    common.Hash      `json:"order_id"`
	Status     ResultStatus     `json:"status"`
	Update     *core.StopUpdate `json:"update,omitempty"`
	Settlement *core.Settlement `json:"settlement,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Err        error            `json:"-"`
}

// dueEntry orders due stops so the most overdue is processed first
type dueEntry struct {
	id      common.Hash
	nextDue time.Time
}

func (d dueEntry) Less(other dueEntry) bool {
	return d.nextDue.Before(other.nextDue)
}

// Keeper drives the trailing stop engine on a schedule
type Keeper struct {
	engine   *engine.Engine
	gateway  *gateway.Gateway
	storage  core.StopStorage
	log      core.Logger
	clock    core.Clock
	events   *event.Feed
	notifier core.Notifier

	mu      sync.Mutex
	watch   *set.LinkedHashSetString
	intents map[common.Hash]core.ExecRequest

	tickerInterval time.Duration
	finish         chan bool
	status         Status
}

// Option is a functional option for configuring a Keeper instance
type Option func(*Keeper)

// WithInterval sets the poll cadence of the watch loop
func WithInterval(interval time.Duration) Option {
	return func(k *Keeper) {
		if interval > 0 {
			k.tickerInterval = interval
		}
	}
}

// WithClock sets the time source used for due checks
func WithClock(clock core.Clock) Option {
	return func(k *Keeper) {
		k.clock = clock
	}
}

// WithEventFeed publishes cycle events on the given feed
func WithEventFeed(events *event.Feed) Option {
	return func(k *Keeper) {
		k.events = events
	}
}

// NewKeeper creates a keeper on top of the engine and the execution gateway
func NewKeeper(
	eng *engine.Engine,
	gw *gateway.Gateway,
	storage core.StopStorage,
	log core.Logger,
	options ...Option,
) *Keeper {
	keeper := &Keeper{
		engine:         eng,
		gateway:        gw,
		storage:        storage,
		log:            log.WithField("component", "keeper"),
		clock:          core.SystemClock{},
		events:         event.NewFeed(),
		watch:          set.NewLinkedHashSetString(),
		intents:        make(map[common.Hash]core.ExecRequest),
		tickerInterval: time.Minute,
		finish:         make(chan bool),
		status:         StatusStopped,
	}

	for _, option := range options {
		option(keeper)
	}

	return keeper
}

// SetNotifier configures a notifier for keeper activity
func (k *Keeper) SetNotifier(notifier core.Notifier) {
	k.notifier = notifier
}

// Status returns the current keeper status
func (k *Keeper) Status() Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.status
}

// Watch adds an order id to the watchlist. A non-nil intent makes the
// keeper settle the order through the gateway once its stop is hit.
func (k *Keeper) Watch(id common.Hash, intent *core.ExecRequest) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.watch.Add(id.Hex())
	if intent != nil {
		req := *intent
		req.OrderID = id
		k.intents[id] = req
	}
}

// Unwatch removes an order id from the watchlist and drops its intent
func (k *Keeper) Unwatch(id common.Hash) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.watch.Remove(id.Hex())
	delete(k.intents, id)
}

// Watched returns the watchlist in insertion order
func (k *Keeper) Watched() []common.Hash {
	k.mu.Lock()
	defer k.mu.Unlock()

	ids := make([]common.Hash, 0, k.watch.Length())
	for hex := range k.watch.Iter() {
		ids = append(ids, common.HexToHash(hex))
	}
	return ids
}

// Intent returns the execution intent registered for an id, if any
func (k *Keeper) Intent(id common.Hash) (core.ExecRequest, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	req, ok := k.intents[id]
	return req, ok
}

// CheckDue returns the subset of ids whose minimum update interval has
// elapsed, preserving the input order. The check is read-only: unknown ids
// are skipped, nothing is written.
func (k *Keeper) CheckDue(ctx context.Context, ids []common.Hash) ([]common.Hash, error) {
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	stops, err := k.storage.Stops(ctx, core.WithIDIn(ids...))
	if err != nil {
		return nil, fmt.Errorf("failed to load watched stops: %w", err)
	}

	byID := make(map[common.Hash]*core.TrailingStop, len(stops))
	for _, stop := range stops {
		byID[stop.OrderID] = stop
	}

	now := k.clock.Now()
	due := make([]common.Hash, 0, len(ids))
	for _, id := range ids {
		if stop, ok := byID[id]; ok && stop.Due(now) {
			due = append(due, id)
		}
	}
	return due, nil
}

// RunCycle performs upkeep on the given ids. Every id is processed on its
// own: one failure is reported in its result and the cycle moves on. The
// cycle stops early only when ctx is cancelled.
func (k *Keeper) RunCycle(ctx context.Context, ids []common.Hash) ([]Result, error) {
	ids = lo.Uniq(ids)
	cycleID := uuid.NewString()
	log := k.log.WithField("cycle", cycleID)

	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, k.processOrder(ctx, log, id))
	}

	k.publishCycle(cycleID, results)
	return results, nil
}

// processOrder updates one stop and settles it when its stop price has
// been reached and an execution intent is registered.
func (k *Keeper) processOrder(ctx context.Context, log core.Logger, id common.Hash) Result {
	update, err := k.engine.Update(ctx, id)
	if err != nil {
		k.notifyError(err)
		return Result{OrderID: id, Status: ResultFailed, Reason: err.Error(), Err: err}
	}

	result := Result{OrderID: id, Status: ResultUpdated, Update: update}
	if update.Held {
		result.Status = ResultHeld
	}

	intent, ok := k.Intent(id)
	if !ok || update.MarketPrice.Cmp(update.NewStop) > 0 {
		return result
	}

	// stop hit: validate against the market price that tripped it, then
	// settle through the gateway
	if _, err := k.engine.ValidateTrigger(ctx, id, update.MarketPrice); err != nil {
		k.notifyError(err)
		return Result{OrderID: id, Status: ResultFailed, Update: update, Reason: err.Error(), Err: err}
	}

	settlement, err := k.gateway.Execute(ctx, intent)
	if err != nil {
		k.notifyError(err)
		return Result{OrderID: id, Status: ResultFailed, Update: update, Reason: err.Error(), Err: err}
	}

	k.Unwatch(id)
	log.Infof("Order %s executed: %s in, %s out",
		shortID(id), settlement.AmountIn.String(), settlement.AmountOut.String())
	k.notify(fmt.Sprintf("Order %s executed at stop %s: received %s",
		shortID(id), core.FormatPrice(update.NewStop), settlement.AmountOut.String()))

	return Result{OrderID: id, Status: ResultExecuted, Update: update, Settlement: settlement}
}

// Start begins the keeper watch loop
func (k *Keeper) Start(ctx context.Context) {
	k.mu.Lock()
	if k.status == StatusRunning {
		k.mu.Unlock()
		return
	}
	k.status = StatusRunning
	k.mu.Unlock()

	go func() {
		ticker := time.NewTicker(k.tickerInterval)
		for {
			select {
			case <-ticker.C:
				k.tick(ctx)
			case <-k.finish:
				ticker.Stop()
				return
			}
		}
	}()

	k.log.Infof("Keeper started, polling every %s", k.tickerInterval)
}

// Stop halts the keeper watch loop after a final tick
func (k *Keeper) Stop(ctx context.Context) {
	k.mu.Lock()
	if k.status != StatusRunning {
		k.mu.Unlock()
		return
	}
	k.status = StatusStopped
	k.mu.Unlock()

	k.tick(ctx)
	k.finish <- true
	k.log.Info("Keeper stopped")
}

// tick runs one upkeep pass over the watchlist, most overdue stops first
func (k *Keeper) tick(ctx context.Context) {
	watched := k.Watched()
	if len(watched) == 0 {
		return
	}

	stops, err := k.storage.Stops(ctx, core.WithIDIn(watched...))
	if err != nil {
		k.notifyError(fmt.Errorf("failed to load watched stops: %w", err))
		return
	}

	now := k.clock.Now()
	entries := make([]dueEntry, 0, len(stops))
	for _, stop := range stops {
		if stop.Due(now) {
			entries = append(entries, dueEntry{id: stop.OrderID, nextDue: stop.NextDue()})
		}
	}
	if len(entries) == 0 {
		return
	}

	queue := core.NewPriorityQueue(entries)
	due := make([]common.Hash, 0, len(entries))
	for {
		entry, ok := queue.Pop()
		if !ok {
			break
		}
		due = append(due, entry.id)
	}

	if _, err := k.RunCycle(ctx, due); err != nil {
		k.notifyError(err)
	}
}

// publishCycle emits the cycle summary event
func (k *Keeper) publishCycle(cycleID string, results []Result) {
	executed := 0
	failed := 0
	for _, result := range results {
		switch result.Status {
		case ResultExecuted:
			executed++
		case ResultFailed:
			failed++
		}
	}

	ev := core.NewEvent(core.EventCycleFinished, common.Hash{}, k.clock.Now())
	ev.Reason = fmt.Sprintf("cycle %s: %d processed, %d executed, %d failed",
		cycleID, len(results), executed, failed)
	k.events.Publish(ev)

	k.log.Debugf("Cycle %s finished: %d processed, %d executed, %d failed",
		cycleID, len(results), executed, failed)
}

func (k *Keeper) notify(text string) {
	if k.notifier != nil {
		k.notifier.Notify(text)
	}
}

func (k *Keeper) notifyError(err error) {
	k.log.Error(err)
	if k.notifier != nil {
		k.notifier.OnError(err)
	}
}

// shortID renders an order id for logs.
func shortID(id common.Hash) string {
	return id.Hex()[:10]
}
