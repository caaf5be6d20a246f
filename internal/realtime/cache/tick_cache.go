package cache

import (
	"sync"
	"time"

	"github.com/zxcvny/capstone/internal/realtime"
	"github.com/zxcvny/capstone/pkg/logger"
)

// TickCache keeps the last tick per symbol
// ⭐ SSOT: 실시간 최신 체결 캐싱은 이 구조체에서만
type TickCache struct {
	mu     sync.RWMutex
	ticks  map[string]realtime.Tick
	ttl    time.Duration
	logger *logger.Logger
	now    func() time.Time
}

// NewTickCache creates a tick cache; entries older than ttl count as stale
func NewTickCache(ttl time.Duration, log *logger.Logger) *TickCache {
	return &TickCache{
		ticks:  make(map[string]realtime.Tick),
		ttl:    ttl,
		logger: log.WithComponent("tick_cache"),
		now:    time.Now,
	}
}

// Update stores tick unless the cached one is newer,
// or equally new from a source of at least the same priority
func (c *TickCache) Update(tick realtime.Tick) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.ticks[tick.Code]; ok {
		if tick.ReceivedAt.Before(existing.ReceivedAt) {
			return false
		}
		if tick.ReceivedAt.Equal(existing.ReceivedAt) && tick.Source.Priority() <= existing.Source.Priority() {
			return false
		}
	}

	c.ticks[tick.Code] = tick
	return true
}

// Get returns the last tick of code and whether it is stale
func (c *TickCache) Get(code string) (tick realtime.Tick, stale bool, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tick, ok = c.ticks[code]
	if !ok {
		return realtime.Tick{}, false, false
	}
	return tick, c.now().Sub(tick.ReceivedAt) > c.ttl, true
}

// GetMany returns the cached ticks of the given codes
func (c *TickCache) GetMany(codes []string) map[string]realtime.Tick {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]realtime.Tick, len(codes))
	for _, code := range codes {
		if tick, ok := c.ticks[code]; ok {
			result[code] = tick
		}
	}
	return result
}

// Len returns the number of cached symbols
func (c *TickCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ticks)
}

// CleanStale removes stale ticks and returns how many were dropped
func (c *TickCache) CleanStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for code, tick := range c.ticks {
		if now.Sub(tick.ReceivedAt) > c.ttl {
			delete(c.ticks, code)
			count++
		}
	}

	if count > 0 {
		c.logger.WithField("count", count).Info("Cleaned stale ticks from cache")
	}
	return count
}

// Stats returns cache statistics
func (c *TickCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CacheStats{TotalCount: len(c.ticks)}
	now := c.now()
	for _, tick := range c.ticks {
		if now.Sub(tick.ReceivedAt) > c.ttl {
			stats.StaleCount++
		}
		switch tick.Source {
		case realtime.SourceStream:
			stats.StreamCount++
		case realtime.SourceSnapshot:
			stats.SnapshotCount++
		}
	}
	stats.FreshCount = stats.TotalCount - stats.StaleCount
	return stats
}

// CacheStats represents cache statistics
type CacheStats struct {
	TotalCount    int `json:"total_count"`
	FreshCount    int `json:"fresh_count"`
	StaleCount    int `json:"stale_count"`
	StreamCount   int `json:"stream_count"`
	SnapshotCount int `json:"snapshot_count"`
}
