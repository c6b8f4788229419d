package core

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// EventKind labels the state transitions published on the event feed
type EventKind string

const (
	EventStopConfigured   EventKind = "stop_configured"
	EventStopUpdated      EventKind = "stop_updated"
	EventTriggerValidated EventKind = "trigger_validated"
	EventExecutionSettled EventKind = "execution_settled"
	EventExecutionFailed  EventKind = "execution_failed"
	EventEnginePaused     EventKind = "engine_paused"
	EventEngineUnpaused   EventKind = "engine_unpaused"
	EventCycleFinished    EventKind = "cycle_finished"
)

// Event is one entry on the feed. Exactly one payload field is set,
// matching the kind; Reason carries failure detail for failed kinds.
type Event struct {
	ID         string        `json:"id"`
	Kind       EventKind     `json:"kind"`
	OrderID    common.Hash   `json:"order_id"`
	At         time.Time     `json:"at"`
	Stop       *TrailingStop `json:"stop,omitempty"`
	Update     *StopUpdate   `json:"update,omitempty"`
	Snapshot   *StopSnapshot `json:"snapshot,omitempty"`
	Settlement *Settlement   `json:"settlement,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

// NewEvent builds an event with a fresh id.
func NewEvent(kind EventKind, orderID common.Hash, at time.Time) Event {
	return Event{
		ID:      uuid.NewString(),
		Kind:    kind,
		OrderID: orderID,
		At:      at,
	}
}
