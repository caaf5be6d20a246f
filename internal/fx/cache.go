package fx

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/zxcvny/capstone/pkg/logger"
)

// Source fetches the current USD→KRW rate from one upstream
type Source interface {
	Name() string
	FetchRate(ctx context.Context) (float64, error)
}

// Options controls refresh policy
type Options struct {
	DefaultRate     float64       // used until the first successful fetch
	RefreshInterval time.Duration // cached value is served while younger than this
	Timeout         time.Duration // per-source attempt
	FailureBackoff  time.Duration // minimum gap between attempts after every source failed
}

// DefaultOptions mirrors the FX_* config defaults
func DefaultOptions() Options {
	return Options{
		DefaultRate:     1350,
		RefreshInterval: time.Hour,
		Timeout:         3 * time.Second,
		FailureBackoff:  30 * time.Second,
	}
}

// Rate is the cached exchange rate
type Rate struct {
	Value     float64   `json:"rate"`
	FetchedAt time.Time `json:"fetched_at"`
	Source    string    `json:"source"`
}

// Cache holds a single USD→KRW rate with a time-based refresh.
// ⭐ SSOT: 환율은 이 캐시에서만 읽음
//
// Rate never fails: on refresh failure the previous value is kept and served.
// Two callers may refresh at once; the later write wins.
type Cache struct {
	sources []Source
	opts    Options
	logger  *logger.Logger
	now     func() time.Time

	mu          sync.RWMutex
	rate        Rate
	lastAttempt time.Time
}

// NewCache creates an exchange-rate cache. Sources are tried in order.
func NewCache(sources []Source, opts Options, log *logger.Logger) *Cache {
	if opts.DefaultRate <= 0 {
		opts.DefaultRate = DefaultOptions().DefaultRate
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	return &Cache{
		sources: sources,
		opts:    opts,
		logger:  log.WithComponent("fx"),
		now:     time.Now,
		rate:    Rate{Value: opts.DefaultRate, Source: "default"},
	}
}

// Rate returns the cached rate, refreshing it first when stale
func (c *Cache) Rate(ctx context.Context) float64 {
	if !c.needsRefresh() {
		return c.Snapshot().Value
	}

	if err := c.Refresh(ctx); err != nil {
		c.logger.WithError(err).WithField("rate", c.Snapshot().Value).Error("Exchange rate refresh failed, keeping previous value")
	}
	return c.Snapshot().Value
}

// Snapshot returns the cached value without touching the network
func (c *Cache) Snapshot() Rate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rate
}

func (c *Cache) needsRefresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	if !c.rate.FetchedAt.IsZero() && now.Sub(c.rate.FetchedAt) < c.opts.RefreshInterval {
		return false
	}
	// 직전 시도가 실패했다면 backoff 동안 재시도하지 않음
	if !c.lastAttempt.IsZero() && c.lastAttempt.After(c.rate.FetchedAt) && now.Sub(c.lastAttempt) < c.opts.FailureBackoff {
		return false
	}
	return true
}

// Refresh fetches a new rate regardless of age.
// Returns an error only when every source failed; the cached value is untouched then.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.lastAttempt = c.now()
	c.mu.Unlock()

	var lastErr error
	for _, src := range c.sources {
		rate, err := c.fetch(ctx, src)
		if err != nil {
			c.logger.WithError(err).WithField("source", src.Name()).Warn("Exchange rate source failed")
			lastErr = err
			continue
		}

		c.mu.Lock()
		c.rate = Rate{Value: rate, FetchedAt: c.now(), Source: src.Name()}
		c.mu.Unlock()

		c.logger.WithFields(map[string]interface{}{
			"source": src.Name(),
			"rate":   rate,
		}).Info("Exchange rate refreshed")
		return nil
	}

	if lastErr == nil {
		return fmt.Errorf("no exchange rate source configured")
	}
	return fmt.Errorf("all exchange rate sources failed: %w", lastErr)
}

func (c *Cache) fetch(ctx context.Context, src Source) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	rate, err := src.FetchRate(ctx)
	if err != nil {
		return 0, err
	}
	if !(rate > 0) || math.IsInf(rate, 0) {
		return 0, fmt.Errorf("%s returned invalid rate %v", src.Name(), rate)
	}
	return rate, nil
}
