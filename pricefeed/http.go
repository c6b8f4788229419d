package pricefeed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/raykavin/stopkeep/core"
	"github.com/tidwall/gjson"
)

// defaultPricePath is the JSON path used when none is configured
const defaultPricePath = "price"

// HTTPFeed serves prices from a JSON-over-HTTP endpoint. The reference target
// is appended to the base URL and the price is extracted from the response
// body with a gjson path, so one adapter covers most REST price APIs.
type HTTPFeed struct {
	client    *resty.Client
	pricePath string
}

// HTTPOption customizes the HTTP feed
type HTTPOption func(*HTTPFeed)

// WithHTTPTimeout sets the per-request timeout
func WithHTTPTimeout(timeout time.Duration) HTTPOption {
	return func(h *HTTPFeed) {
		h.client.SetTimeout(timeout)
	}
}

// WithHTTPRetries sets how many times a failed request is retried
func WithHTTPRetries(retries int) HTTPOption {
	return func(h *HTTPFeed) {
		h.client.SetRetryCount(retries)
	}
}

// NewHTTP creates a feed reading prices from baseURL/<target>, extracting
// the value at pricePath from the JSON response.
func NewHTTP(baseURL, pricePath string, opts ...HTTPOption) *HTTPFeed {
	if pricePath == "" {
		pricePath = defaultPricePath
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second)

	feed := &HTTPFeed{
		client:    client,
		pricePath: pricePath,
	}
	for _, opt := range opts {
		opt(feed)
	}
	return feed
}

// LatestPrice fetches and extracts the current price for the reference target
func (h *HTTPFeed) LatestPrice(ctx context.Context, ref core.OracleRef) (core.PriceQuote, error) {
	_, target := ref.Split()
	if target == "" {
		return core.PriceQuote{}, fmt.Errorf("reference %q has no target", ref)
	}

	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get("/" + target)
	if err != nil {
		return core.PriceQuote{}, fmt.Errorf("failed to fetch price for %s: %w", target, err)
	}
	if resp.IsError() {
		return core.PriceQuote{}, fmt.Errorf("price endpoint returned %s for %s", resp.Status(), target)
	}

	result := gjson.GetBytes(resp.Body(), h.pricePath)
	if !result.Exists() {
		return core.PriceQuote{}, fmt.Errorf("no value at %q in price response for %s", h.pricePath, target)
	}

	value, err := core.ParsePrice(result.String())
	if err != nil {
		return core.PriceQuote{}, fmt.Errorf("failed to parse price for %s: %w", target, err)
	}

	return core.PriceQuote{
		Price:      value,
		Decimals:   core.PriceDecimals,
		ObservedAt: time.Now(),
	}, nil
}
