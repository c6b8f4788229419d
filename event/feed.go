// Package event fans engine activity out to subscribers: notifiers, the
// audit journal and the websocket hub.
package event

import (
	"sync"

	"github.com/raykavin/stopkeep/core"
)

// KindAll subscribes a consumer to every event kind
const KindAll core.EventKind = "*"

// Consumer is a function type that processes published events
type Consumer func(ev core.Event)

// stream buffers events per kind so slow consumers never block the engine
type stream struct {
	data chan core.Event
}

// Feed manages event streams and subscriptions. Subscriptions must be
// registered before Start; publishes before Start stay buffered.
type Feed struct {
	mu            sync.RWMutex
	streams       map[core.EventKind]*stream
	subscriptions map[core.EventKind][]Consumer
}

// NewFeed creates a new event feed
func NewFeed() *Feed {
	return &Feed{
		streams:       make(map[core.EventKind]*stream),
		subscriptions: make(map[core.EventKind][]Consumer),
	}
}

// Subscribe registers a consumer for one event kind, or every kind via
// KindAll.
func (f *Feed) Subscribe(kind core.EventKind, consumer Consumer) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.streams[kind]; !ok {
		f.streams[kind] = &stream{
			data: make(chan core.Event, 100), // Buffered channel to prevent blocking
		}
	}

	f.subscriptions[kind] = append(f.subscriptions[kind], consumer)
}

// SubscribeAll registers a consumer for every event kind.
func (f *Feed) SubscribeAll(consumer Consumer) {
	f.Subscribe(KindAll, consumer)
}

// Publish sends an event to the subscribers of its kind and to the
// wildcard subscribers. The send never blocks; events are dropped when a
// stream's buffer is full.
func (f *Feed) Publish(ev core.Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, kind := range []core.EventKind{ev.Kind, KindAll} {
		if s, ok := f.streams[kind]; ok {
			select {
			case s.data <- ev:
			default:
				// stream full, drop
			}
		}
	}
}

// Start begins delivering buffered and future events to subscribers.
func (f *Feed) Start() {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for kind, s := range f.streams {
		go f.processEvents(kind, s)
	}
}

// processEvents drains one stream and distributes to its subscribers.
func (f *Feed) processEvents(kind core.EventKind, s *stream) {
	for ev := range s.data {
		f.mu.RLock()
		subscriptions := f.subscriptions[kind]
		f.mu.RUnlock()

		for _, consumer := range subscriptions {
			consumer(ev)
		}
	}
}

// Stop closes all streams and clears the subscriptions.
func (f *Feed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for kind, s := range f.streams {
		close(s.data)
		delete(f.streams, kind)
	}

	f.subscriptions = make(map[core.EventKind][]Consumer)
}
