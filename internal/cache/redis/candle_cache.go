package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alephtrade/booksim/internal/domain"
)

// candleListCap bounds the per-key closed-bar list; LPUSH + LTRIM keeps the
// newest bars at the head.
const candleListCap = 1000

// CandleCache implements domain.CandleCache. Closed bars live in a capped
// list at "candles:{instrumentID}:{granularity}".
type CandleCache struct {
	rdb *redis.Client
}

// NewCandleCache creates a CandleCache backed by the given Client.
func NewCandleCache(c *Client) *CandleCache {
	return &CandleCache{rdb: c.Underlying()}
}

func candleKey(instrumentID string, granularity time.Duration) string {
	return fmt.Sprintf("candles:%s:%s", instrumentID, granularity)
}

// AppendCandle pushes a closed bar onto the head of the list and trims it to
// the cap.
func (cc *CandleCache) AppendCandle(ctx context.Context, instrumentID string, granularity time.Duration, c domain.Candle) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("redis: marshal candle %s: %w", instrumentID, err)
	}
	key := candleKey(instrumentID, granularity)

	pipe := cc.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, candleListCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: append candle %s: %w", key, err)
	}
	return nil
}

// RecentCandles returns up to limit closed bars, newest first.
func (cc *CandleCache) RecentCandles(ctx context.Context, instrumentID string, granularity time.Duration, limit int) ([]domain.Candle, error) {
	if limit <= 0 || limit > candleListCap {
		limit = candleListCap
	}
	key := candleKey(instrumentID, granularity)
	raw, err := cc.rdb.LRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: recent candles %s: %w", key, err)
	}

	out := make([]domain.Candle, 0, len(raw))
	for _, item := range raw {
		var c domain.Candle
		if err := json.Unmarshal([]byte(item), &c); err != nil {
			return nil, fmt.Errorf("redis: unmarshal candle %s: %w", key, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.CandleCache = (*CandleCache)(nil)
