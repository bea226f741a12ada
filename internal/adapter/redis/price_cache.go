package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"copytrade/internal/domain"
)

const keyPrefix = "copytrade:mark_price:"

// PriceCache stores mark prices in Redis so every instance shares one ticker budget
type PriceCache struct {
	client *goredis.Client
}

var _ domain.PriceCache = (*PriceCache)(nil)

// NewPriceCache creates a new PriceCache backed by Redis
func NewPriceCache(client *goredis.Client) *PriceCache {
	return &PriceCache{client: client}
}

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis PING %s: %w", addr, err)
	}
	return client, nil
}

// Get returns the cached price for symbol
func (c *PriceCache) Get(ctx context.Context, symbol string) (float64, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+symbol).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis GET %s: %w", symbol, err)
	}
	price, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse cached price for %s: %w", symbol, err)
	}
	return price, true, nil
}

// Set stores price for ttl
func (c *PriceCache) Set(ctx context.Context, symbol string, price float64, ttl time.Duration) error {
	val := strconv.FormatFloat(price, 'f', -1, 64)
	if err := c.client.Set(ctx, keyPrefix+symbol, val, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", symbol, err)
	}
	return nil
}
