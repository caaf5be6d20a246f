package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides typed JSON caching on top of Client
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

func (c *Cache) key(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Get retrieves a cached value. A miss returns (false, nil).
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.key(key), data, ttl).Err()
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}

	return c.client.Redis().Del(ctx, c.key(key)).Err()
}

// TTL returns the remaining lifetime of key, 0 when missing or disabled
func (c *Cache) TTL(ctx context.Context, key string) time.Duration {
	if !c.client.Enabled() {
		return 0
	}
	ttl, err := c.client.Redis().TTL(ctx, c.key(key)).Result()
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}

// Predefined TTLs
const (
	TTLRanking  = 2 * time.Second  // 랭킹 (폴링 흡수용)
	TTLIntraday = 1 * time.Minute  // 분봉 차트
	TTLChart    = 10 * time.Minute // 일/주/월/년 차트
	TTLApproval = 23 * time.Hour   // 웹소켓 접속키
)

// Common cache key generators

func RankingKey(rankType, scope string) string {
	return fmt.Sprintf("rank:%s:%s", rankType, scope)
}

func ChartKey(market, symbol, period string) string {
	return fmt.Sprintf("chart:%s:%s:%s", market, symbol, period)
}

func TokenKey(kind string) string {
	return fmt.Sprintf("kis:token:%s", kind)
}
