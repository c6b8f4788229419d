// Package pricefeed provides price oracle adapters and a scheme router that
// dispatches oracle references to the feed registered for their scheme.
package pricefeed

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/raykavin/stopkeep/core"
	"github.com/samber/lo"
)

// Router implements core.PriceOracle by delegating each reference to the
// feed registered for its scheme.
type Router struct {
	mu    sync.RWMutex
	feeds map[string]core.PriceOracle
}

// NewRouter creates an empty feed router
func NewRouter() *Router {
	return &Router{
		feeds: make(map[string]core.PriceOracle),
	}
}

// Register binds a feed to a scheme, replacing any previous binding
func (r *Router) Register(scheme string, feed core.PriceOracle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feeds[scheme] = feed
}

// Schemes returns the registered schemes in sorted order
func (r *Router) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemes := lo.Keys(r.feeds)
	sort.Strings(schemes)
	return schemes
}

// LatestPrice resolves the reference scheme and delegates to its feed
func (r *Router) LatestPrice(ctx context.Context, ref core.OracleRef) (core.PriceQuote, error) {
	scheme, _ := ref.Split()
	if scheme == "" {
		return core.PriceQuote{}, fmt.Errorf("empty oracle reference")
	}

	r.mu.RLock()
	feed, ok := r.feeds[scheme]
	r.mu.RUnlock()

	if !ok {
		return core.PriceQuote{}, fmt.Errorf("no price feed registered for scheme %q", scheme)
	}

	return feed.LatestPrice(ctx, ref)
}
