package core

import (
	"context"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// StopStorage defines the interface for trailing stop registry operations
type StopStorage interface {
	// SaveStop stores a record, replacing any existing record for the id
	SaveStop(ctx context.Context, stop *TrailingStop) error

	// Stop retrieves the record for an id; ErrNotConfigured if absent
	Stop(ctx context.Context, id common.Hash) (*TrailingStop, error)

	// Stops retrieves records matching all provided filters
	Stops(ctx context.Context, filters ...StopFilter) ([]*TrailingStop, error)

	// DeleteStop removes the record for an id; ErrNotConfigured if absent
	DeleteStop(ctx context.Context, id common.Hash) error
}

// StopFilter selects records in Stops queries
type StopFilter func(stop *TrailingStop) bool

func WithOracle(ref OracleRef) StopFilter {
	return func(stop *TrailingStop) bool {
		return stop.Oracle == ref
	}
}

func WithIDIn(ids ...common.Hash) StopFilter {
	return func(stop *TrailingStop) bool {
		return slices.Contains(ids, stop.OrderID)
	}
}

func WithUpdateAtBeforeOrEqual(t time.Time) StopFilter {
	return func(stop *TrailingStop) bool {
		return !stop.LastUpdateAt.After(t)
	}
}

// MatchStopFilters reports whether a record passes every filter.
func MatchStopFilters(stop *TrailingStop, filters []StopFilter) bool {
	for _, filter := range filters {
		if !filter(stop) {
			return false
		}
	}
	return true
}
