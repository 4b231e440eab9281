package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alephtrade/booksim/internal/domain"
)

// ContextCache implements domain.ContextCache. The latest MarketContext per
// instrument is stored as JSON at "mctx:{instrumentID}" so polling display
// adapters can read it without touching the engine.
type ContextCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewContextCache creates a ContextCache backed by the given Client. A ttl of
// 0 keeps contexts until overwritten.
func NewContextCache(c *Client, ttl time.Duration) *ContextCache {
	return &ContextCache{rdb: c.Underlying(), ttl: ttl}
}

func contextKey(instrumentID string) string {
	return "mctx:" + instrumentID
}

// SetContext stores the latest market context for an instrument.
func (cc *ContextCache) SetContext(ctx context.Context, mc domain.MarketContext) error {
	data, err := json.Marshal(mc)
	if err != nil {
		return fmt.Errorf("redis: marshal context %s: %w", mc.InstrumentID, err)
	}
	if err := cc.rdb.Set(ctx, contextKey(mc.InstrumentID), data, cc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set context %s: %w", mc.InstrumentID, err)
	}
	return nil
}

// GetContext retrieves the latest market context for an instrument. It
// returns domain.ErrNotFound when none is cached.
func (cc *ContextCache) GetContext(ctx context.Context, instrumentID string) (domain.MarketContext, error) {
	data, err := cc.rdb.Get(ctx, contextKey(instrumentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.MarketContext{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.MarketContext{}, fmt.Errorf("redis: get context %s: %w", instrumentID, err)
	}
	var mc domain.MarketContext
	if err := json.Unmarshal(data, &mc); err != nil {
		return domain.MarketContext{}, fmt.Errorf("redis: unmarshal context %s: %w", instrumentID, err)
	}
	return mc, nil
}

// Compile-time interface check.
var _ domain.ContextCache = (*ContextCache)(nil)
