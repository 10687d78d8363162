package overdue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dayLayout = "2006-01-02"

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SweepKey(day string) string
}

// ResultCache keeps the latest sweep result per day so a repeated trigger
// for the same day replays it instead of sweeping again.
type ResultCache struct {
	store cacheStore
	ttl   time.Duration
}

func NewResultCache(store cacheStore, ttl time.Duration) (*ResultCache, error) {
	if store == nil {
		return nil, errors.New("cache store required")
	}
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &ResultCache{store: store, ttl: ttl}, nil
}

// Remember stores result under its as-of day.
func (c *ResultCache) Remember(ctx context.Context, result *SweepResult) error {
	if result == nil {
		return nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode sweep result: %w", err)
	}
	return c.store.Set(ctx, c.store.SweepKey(result.AsOf.UTC().Format(dayLayout)), payload, c.ttl)
}

// Lookup returns the stored result for day, or nil when none was recorded.
func (c *ResultCache) Lookup(ctx context.Context, day time.Time) (*SweepResult, error) {
	raw, err := c.store.Get(ctx, c.store.SweepKey(day.UTC().Format(dayLayout)))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sweep result: %w", err)
	}
	var result SweepResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("decode sweep result: %w", err)
	}
	return &result, nil
}
