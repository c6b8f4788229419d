package pricefeed

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/raykavin/stopkeep/core"
)

// Static serves prices set programmatically. It backs the "static:" scheme
// and drives the engine during replays, where the caller advances prices
// candle by candle.
type Static struct {
	mu     sync.RWMutex
	quotes map[core.OracleRef]core.PriceQuote
	errs   map[core.OracleRef]error
}

// NewStatic creates an empty static feed
func NewStatic() *Static {
	return &Static{
		quotes: make(map[core.OracleRef]core.PriceQuote),
		errs:   make(map[core.OracleRef]error),
	}
}

// SetPrice sets the canonical fixed-point price served for a reference
func (s *Static) SetPrice(ref core.OracleRef, price *big.Int) {
	s.SetQuote(ref, core.PriceQuote{
		Price:      new(big.Int).Set(price),
		Decimals:   core.PriceDecimals,
		ObservedAt: time.Now(),
	})
}

// SetQuote sets the full quote served for a reference
func (s *Static) SetQuote(ref core.OracleRef, quote core.PriceQuote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[ref] = quote
	delete(s.errs, ref)
}

// SetError makes reads for a reference fail until a new quote is set
func (s *Static) SetError(ref core.OracleRef, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[ref] = err
	delete(s.quotes, ref)
}

// LatestPrice returns the quote last set for the reference
func (s *Static) LatestPrice(_ context.Context, ref core.OracleRef) (core.PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err, ok := s.errs[ref]; ok {
		return core.PriceQuote{}, err
	}
	quote, ok := s.quotes[ref]
	if !ok {
		return core.PriceQuote{}, fmt.Errorf("no price set for %s", ref)
	}
	return quote, nil
}
