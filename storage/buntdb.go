package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/raykavin/stopkeep/core"
	"github.com/tidwall/buntdb"
)

const (
	// DefaultIndexName is the default index used for stop retrieval
	DefaultIndexName = "update_index"

	// updateIndexJSON is the JSON field backing the default index
	updateIndexJSON = "last_update_at"
)

// BuntStorage implements the core.StopStorage interface using BuntDB.
// Records are JSON documents keyed by the hex form of the order id.
type BuntStorage struct {
	db *buntdb.DB
}

// BuntConfig holds configuration options for BuntDB
type BuntConfig struct {
	// Additional indexes to create beyond the default update_index
	AdditionalIndexes map[string]string
	// SyncPolicy determines how often data is synchronized to disk
	SyncPolicy buntdb.SyncPolicy
}

// DefaultBuntConfig returns the default configuration for BuntDB
func DefaultBuntConfig() BuntConfig {
	return BuntConfig{
		AdditionalIndexes: make(map[string]string),
		SyncPolicy:        buntdb.EverySecond,
	}
}

// NewFromMemory creates an in-memory storage with default configuration
func NewFromMemory() (*BuntStorage, error) {
	return NewBuntStorage(":memory:", DefaultBuntConfig())
}

// NewFromFile creates a file-based storage with default configuration
func NewFromFile(file string) (*BuntStorage, error) {
	return NewBuntStorage(file, DefaultBuntConfig())
}

// NewBuntStorage creates a new BuntDB storage instance with the specified configuration
func NewBuntStorage(sourceFile string, config BuntConfig) (*BuntStorage, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	// Apply configuration
	if err := db.SetConfig(buntdb.Config{
		SyncPolicy: config.SyncPolicy,
	}); err != nil {
		return nil, fmt.Errorf("failed to configure buntdb: %w", err)
	}

	// Create default index for ordering by last update timestamp
	if err := db.CreateIndex(DefaultIndexName, "*", buntdb.IndexJSON(updateIndexJSON)); err != nil {
		return nil, fmt.Errorf("failed to create default index: %w", err)
	}

	// Create any additional indexes from the configuration
	for name, pattern := range config.AdditionalIndexes {
		if err := db.CreateIndex(name, "*", buntdb.IndexJSON(pattern)); err != nil {
			return nil, fmt.Errorf("failed to create index %s: %w", name, err)
		}
	}

	return &BuntStorage{
		db: db,
	}, nil
}

// SaveStop stores a trailing stop record, replacing any existing record
// for the same order id
func (b *BuntStorage) SaveStop(_ context.Context, stop *core.TrailingStop) error {
	// Use a context-aware version if BuntDB adds context support in future
	return b.db.Update(func(tx *buntdb.Tx) error {
		content, err := json.Marshal(stop)
		if err != nil {
			return fmt.Errorf("failed to marshal trailing stop: %w", err)
		}

		_, _, err = tx.Set(stop.OrderID.Hex(), string(content), nil)
		if err != nil {
			return fmt.Errorf("failed to store trailing stop: %w", err)
		}

		return nil
	})
}

// Stop retrieves the trailing stop record for an order id
func (b *BuntStorage) Stop(_ context.Context, id common.Hash) (*core.TrailingStop, error) {
	var stop core.TrailingStop

	err := b.db.View(func(tx *buntdb.Tx) error {
		content, err := tx.Get(id.Hex())
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(content), &stop)
	})

	if err != nil {
		if err == buntdb.ErrNotFound {
			return nil, core.ErrNotConfigured
		}
		return nil, fmt.Errorf("failed to get trailing stop: %w", err)
	}

	return &stop, nil
}

// Stops retrieves trailing stop records matching the provided filters,
// ordered by last update timestamp
func (b *BuntStorage) Stops(_ context.Context, filters ...core.StopFilter) ([]*core.TrailingStop, error) {
	stops := make([]*core.TrailingStop, 0)

	// Use a context-aware version if BuntDB adds context support in future
	err := b.db.View(func(tx *buntdb.Tx) error {
		var unmarshalErr error
		err := tx.Ascend(DefaultIndexName, func(key, value string) bool {
			var stop core.TrailingStop
			if err := json.Unmarshal([]byte(value), &stop); err != nil {
				unmarshalErr = fmt.Errorf("failed to unmarshal trailing stop %s: %w", key, err)
				return false
			}

			if core.MatchStopFilters(&stop, filters) {
				stops = append(stops, &stop)
			}
			return true
		})

		if err != nil {
			return fmt.Errorf("failed to iterate over trailing stops: %w", err)
		}

		return unmarshalErr
	})

	if err != nil {
		return nil, fmt.Errorf("failed to query trailing stops: %w", err)
	}

	return stops, nil
}

// DeleteStop removes the trailing stop record for an order id
func (b *BuntStorage) DeleteStop(_ context.Context, id common.Hash) error {
	err := b.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(id.Hex())
		return err
	})

	if err != nil {
		if err == buntdb.ErrNotFound {
			return core.ErrNotConfigured
		}
		return fmt.Errorf("failed to delete trailing stop: %w", err)
	}

	return nil
}

// Close closes the database connection
func (b *BuntStorage) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// Legacy function aliases for backward compatibility

// FromMemory creates an in-memory storage (legacy function)
func FromMemory() (*BuntStorage, error) {
	return NewFromMemory()
}

// FromFile creates a file-based storage (legacy function)
func FromFile(file string) (*BuntStorage, error) {
	return NewFromFile(file)
}
