package domain

import (
	"context"
	"time"
)

// MarketPriceService defines the interface for fetching mark prices used by sizing
type MarketPriceService interface {
	// MarkPrice returns the current mark price for a symbol, served from cache when fresh
	MarkPrice(ctx context.Context, symbol string) (float64, error)
}

// PriceCache stores recently fetched mark prices
type PriceCache interface {
	// Get returns a cached price and whether it was present
	Get(ctx context.Context, symbol string) (float64, bool, error)

	// Set stores a price for ttl
	Set(ctx context.Context, symbol string, price float64, ttl time.Duration) error
}
