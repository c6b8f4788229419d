package pricefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/jpillora/backoff"
	"github.com/raykavin/stopkeep/core"
)

// Binance serves spot ticker prices from the public Binance API. The target
// part of the reference is the exchange symbol, e.g. "binance:ETHUSDT".
type Binance struct {
	client  *binance.Client
	retries int
}

// BinanceOption customizes the Binance feed
type BinanceOption func(*Binance)

// WithBinanceClient replaces the underlying API client
func WithBinanceClient(client *binance.Client) BinanceOption {
	return func(b *Binance) {
		b.client = client
	}
}

// WithBinanceRetries sets how many times a failed read is retried
func WithBinanceRetries(retries int) BinanceOption {
	return func(b *Binance) {
		b.retries = retries
	}
}

// NewBinance creates a feed backed by the public ticker endpoint. No API
// credentials are needed for price reads.
func NewBinance(opts ...BinanceOption) *Binance {
	feed := &Binance{
		client:  binance.NewClient("", ""),
		retries: 3,
	}
	for _, opt := range opts {
		opt(feed)
	}
	return feed
}

// setupBackoffRetry creates a backoff with sensible defaults
func setupBackoffRetry() *backoff.Backoff {
	return &backoff.Backoff{
		Min: 100 * time.Millisecond,
		Max: 1 * time.Second,
	}
}

// LatestPrice fetches the current ticker price for the reference symbol
func (b *Binance) LatestPrice(ctx context.Context, ref core.OracleRef) (core.PriceQuote, error) {
	_, symbol := ref.Split()
	if symbol == "" {
		return core.PriceQuote{}, fmt.Errorf("reference %q has no symbol", ref)
	}

	retry := setupBackoffRetry()

	var lastErr error
	for attempt := 0; attempt <= b.retries; attempt++ {
		prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
		if err == nil && len(prices) > 0 {
			value, parseErr := core.ParsePrice(prices[0].Price)
			if parseErr != nil {
				return core.PriceQuote{}, fmt.Errorf("failed to parse ticker price: %w", parseErr)
			}
			return core.PriceQuote{
				Price:      value,
				Decimals:   core.PriceDecimals,
				ObservedAt: time.Now(),
			}, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("empty ticker response for %s", symbol)
		}

		select {
		case <-ctx.Done():
			return core.PriceQuote{}, ctx.Err()
		case <-time.After(retry.Duration()):
		}
	}

	return core.PriceQuote{}, fmt.Errorf("failed to fetch ticker for %s: %w", symbol, lastErr)
}
