package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/launchforge/launchpad/internal/domain"
)

const dealTTL = 30 * time.Second

// DealCache implements domain.DealCache using Redis hashes with JSON-
// serialized deal snapshots. The TTL is short because total_raised moves with
// every contribution; the cache absorbs read bursts, not staleness.
//
// Key schema:
//
//	deal:{id} - hash with field "data" containing JSON
type DealCache struct {
	rdb *redis.Client
}

// NewDealCache creates a DealCache backed by the given Client.
func NewDealCache(c *Client) *DealCache {
	return &DealCache{rdb: c.Underlying()}
}

func dealKey(id string) string { return "deal:" + id }

// Set stores a deal snapshot with a short TTL.
func (dc *DealCache) Set(ctx context.Context, deal domain.Deal) error {
	data, err := json.Marshal(deal)
	if err != nil {
		return fmt.Errorf("redis: marshal deal %s: %w", deal.ID, err)
	}

	key := dealKey(deal.ID)

	pipe := dc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, dealTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set deal %s: %w", deal.ID, err)
	}
	return nil
}

// Get retrieves a deal snapshot by ID. A miss reports (zero, false, nil).
func (dc *DealCache) Get(ctx context.Context, id string) (domain.Deal, bool, error) {
	data, err := dc.rdb.HGet(ctx, dealKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Deal{}, false, nil
		}
		return domain.Deal{}, false, fmt.Errorf("redis: get deal %s: %w", id, err)
	}

	var deal domain.Deal
	if err := json.Unmarshal(data, &deal); err != nil {
		return domain.Deal{}, false, fmt.Errorf("redis: unmarshal deal %s: %w", id, err)
	}
	return deal, true, nil
}

// Invalidate removes a deal snapshot, typically after a lifecycle transition.
func (dc *DealCache) Invalidate(ctx context.Context, id string) error {
	if err := dc.rdb.Del(ctx, dealKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate deal %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.DealCache = (*DealCache)(nil)
