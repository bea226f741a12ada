package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"copytrade/internal/domain"
)

// MarketPriceService serves mark prices from the exchange ticker through a short-lived cache
type MarketPriceService struct {
	exchange domain.ExchangeClient
	cache    domain.PriceCache
	ttl      time.Duration
}

var _ domain.MarketPriceService = (*MarketPriceService)(nil)

// NewMarketPriceService creates a new MarketPriceService. A nil cache uses process memory.
func NewMarketPriceService(exchange domain.ExchangeClient, cache domain.PriceCache, ttl time.Duration) *MarketPriceService {
	if cache == nil {
		cache = NewMemoryPriceCache()
	}
	return &MarketPriceService{
		exchange: exchange,
		cache:    cache,
		ttl:      ttl,
	}
}

// MarkPrice returns the current mark price for symbol
func (s *MarketPriceService) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	symbol = strings.ToUpper(symbol)

	price, ok, err := s.cache.Get(ctx, symbol)
	if err != nil {
		// cache outages degrade to direct ticker reads
		logrus.WithError(err).WithField("symbol", symbol).Warn("[WARN] Price cache read failed")
	} else if ok {
		return price, nil
	}

	price, err = s.exchange.GetMarkPrice(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch mark price for %s: %w", symbol, err)
	}

	if err := s.cache.Set(ctx, symbol, price, s.ttl); err != nil {
		logrus.WithError(err).WithField("symbol", symbol).Warn("[WARN] Price cache write failed")
	}
	return price, nil
}

// MemoryPriceCache is the in-process PriceCache used when no Redis is configured
type MemoryPriceCache struct {
	mu      sync.RWMutex
	entries map[string]cachedPrice
	now     func() time.Time
}

type cachedPrice struct {
	price     float64
	expiresAt time.Time
}

// NewMemoryPriceCache creates an empty cache
func NewMemoryPriceCache() *MemoryPriceCache {
	return &MemoryPriceCache{
		entries: make(map[string]cachedPrice),
		now:     time.Now,
	}
}

func (c *MemoryPriceCache) Get(ctx context.Context, symbol string) (float64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[symbol]
	if !ok || !c.now().Before(e.expiresAt) {
		return 0, false, nil
	}
	return e.price, true, nil
}

func (c *MemoryPriceCache) Set(ctx context.Context, symbol string, price float64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[symbol] = cachedPrice{price: price, expiresAt: c.now().Add(ttl)}
	return nil
}
