// Package audit persists every event the feed publishes into an
// append-only Badger journal, so operators can reconstruct what the
// keeper did and why after the fact.
package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/raykavin/stopkeep/core"
)

const keyPrefix = "evt:"

// Journal is an append-only event log backed by Badger. Entries are
// keyed by publish time plus a sequence number, so iteration order is
// chronological.
type Journal struct {
	mu    sync.Mutex
	db    *badger.DB
	clock core.Clock
	log   core.Logger
	seq   uint64
}

// Option configures optional journal parameters.
type Option func(*Journal)

// WithClock overrides the clock used to timestamp entries.
func WithClock(clock core.Clock) Option {
	return func(j *Journal) {
		j.clock = clock
	}
}

// New opens a journal stored on disk at the given path.
func New(path string, log core.Logger, options ...Option) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	return open(badger.DefaultOptions(path).WithLogger(nil), log, options...)
}

// NewInMemory opens a journal that lives only for the process lifetime.
// Used by tests and by deployments that opt out of persistence.
func NewInMemory(log core.Logger, options ...Option) (*Journal, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil), log, options...)
}

func open(opts badger.Options, log core.Logger, options ...Option) (*Journal, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit journal: %w", err)
	}

	journal := &Journal{
		db:    db,
		clock: core.NewClock(),
		log:   log.WithField("component", "audit"),
	}

	for _, option := range options {
		option(journal)
	}

	return journal, nil
}

// Record appends one event to the journal.
func (j *Journal) Record(ev core.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	j.mu.Lock()
	j.seq++
	key := fmt.Sprintf("%s%020d:%012d", keyPrefix, j.clock.Now().UnixNano(), j.seq)
	j.mu.Unlock()

	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), payload)
	})
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(limit int) ([]core.Event, error) {
	if limit <= 0 {
		return nil, nil
	}

	events := make([]core.Event, 0, limit)
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration must seek past the last possible key of the prefix.
		seek := append([]byte(keyPrefix), 0xFF)
		for it.Seek(seek); it.Valid() && len(events) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var ev core.Event
				if err := json.Unmarshal(val, &ev); err != nil {
					return fmt.Errorf("failed to decode event: %w", err)
				}
				events = append(events, ev)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return events, nil
}

// Count returns the number of events recorded.
func (j *Journal) Count() (int, error) {
	count := 0
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// OnEvent is the feed consumer hook. Failures are logged rather than
// propagated so a broken journal never stalls the engine.
func (j *Journal) OnEvent(ev core.Event) {
	if err := j.Record(ev); err != nil {
		j.log.WithError(err).Errorf("Failed to journal %s event", ev.Kind)
	}
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
