package recency

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mnemora/mnemora-backend/internal/domain/memory"
	"github.com/mnemora/mnemora-backend/internal/platform/logger"
)

// RedisCache keeps the recency FIFO in a Redis list so it survives process
// restarts. LPUSH+LTRIM keep the list bounded; index 0 is the newest slot,
// so LRANGE already yields dump order.
type RedisCache struct {
	rdb      *goredis.Client
	key      string
	capacity int
	log      *logger.Logger
}

func NewRedisCache(rdb *goredis.Client, key string, capacity int, log *logger.Logger) (*RedisCache, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if strings.TrimSpace(key) == "" {
		key = "memory:recency"
	}
	if capacity < 0 {
		capacity = 0
	}
	return &RedisCache{
		rdb:      rdb,
		key:      key,
		capacity: capacity,
		log:      log.With("cache", "RedisRecency"),
	}, nil
}

func (c *RedisCache) Append(ctx context.Context, slot memory.RecencySlot) error {
	if c.capacity == 0 {
		return nil
	}
	raw, err := json.Marshal(slot)
	if err != nil {
		return err
	}
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, c.key, raw)
	pipe.LTrim(ctx, c.key, 0, int64(c.capacity-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recency lpush: %w", err)
	}
	return nil
}

func (c *RedisCache) Dump(ctx context.Context) ([]memory.RecencySlot, error) {
	raws, err := c.rdb.LRange(ctx, c.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("recency lrange: %w", err)
	}
	out := make([]memory.RecencySlot, 0, len(raws))
	for _, raw := range raws {
		var slot memory.RecencySlot
		if err := json.Unmarshal([]byte(raw), &slot); err != nil {
			c.log.Warn("bad recency payload skipped", "error", err)
			continue
		}
		out = append(out, slot)
	}
	return out, nil
}

func (c *RedisCache) Len(ctx context.Context) (int, error) {
	n, err := c.rdb.LLen(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("recency llen: %w", err)
	}
	return int(n), nil
}
