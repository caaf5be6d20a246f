package commands

import (
	"context"
	"fmt"

	"github.com/zxcvny/capstone/internal/external/kis"
	"github.com/zxcvny/capstone/internal/fx"
	"github.com/zxcvny/capstone/internal/ranking"
	"github.com/zxcvny/capstone/internal/stockinfo"
	"github.com/zxcvny/capstone/pkg/config"
	"github.com/zxcvny/capstone/pkg/database"
	"github.com/zxcvny/capstone/pkg/httputil"
	"github.com/zxcvny/capstone/pkg/logger"
	"github.com/zxcvny/capstone/pkg/redis"
)

const cachePrefix = "capstone"

// app holds the collaborators shared by every command
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	redis  *redis.Client
	cache  *redis.Cache
	db     *database.DB // nil without DATABASE_URL
	fx     *fx.Cache
	tokens *kis.TokenStore
	kis    *kis.Client

	directory *stockinfo.Directory
	loader    *stockinfo.Loader
	rankings  *ranking.Aggregator
}

// newApp wires config, logging, storage and the quotation clients.
// withDatabase connects PostgreSQL when DATABASE_URL is set.
func newApp(ctx context.Context, withDatabase bool) (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Redis (optional)
	rc, err := redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, caching disabled")
		rc = redis.Disabled()
	}
	cache := redis.NewCache(rc, cachePrefix)

	a := &app{cfg: cfg, log: log, redis: rc, cache: cache}

	// 4. Database (optional)
	if withDatabase && cfg.Database.Enabled() {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.db = db
		log.Info("Connected to database")
	}

	// 5. Exchange rate sources: TwelveData first, Naver scrape as fallback
	limiter := redis.NewRateLimiter(rc, cachePrefix)
	var sources []fx.Source
	if cfg.TwelveData.APIKey != "" {
		tdClient := httputil.NewWithTimeout(log, cfg.FX.Timeout).
			DisableRetry().
			WithRateLimiter(limiter, redis.TwelveDataRateLimit)
		sources = append(sources, fx.NewTwelveDataSource(tdClient, cfg.TwelveData.BaseURL, cfg.TwelveData.APIKey))
	}
	naverClient := httputil.NewWithTimeout(log, cfg.FX.Timeout).
		DisableRetry().
		WithRateLimiter(limiter, redis.NaverRateLimit)
	sources = append(sources, fx.NewNaverSource(naverClient, cfg.Naver.BaseURL))

	fxOpts := fx.DefaultOptions()
	fxOpts.DefaultRate = cfg.FX.DefaultRate
	fxOpts.RefreshInterval = cfg.FX.RefreshInterval
	fxOpts.Timeout = cfg.FX.Timeout
	a.fx = fx.NewCache(sources, fxOpts, log)

	// 6. KIS quotation client
	httpClient := httputil.New(log)
	a.tokens = kis.NewTokenStore(cfg.KIS, httpClient, cache, log)
	a.kis = kis.NewClient(cfg.KIS, httpClient, a.tokens, a.fx, cache, log)

	// 7. Symbol directory
	a.directory = stockinfo.NewDirectory()
	var source stockinfo.StockSource
	if a.db != nil {
		source = stockinfo.NewRepository(a.db.Pool)
	}
	a.loader = stockinfo.NewLoader(cfg.StockMaster.Dir, source, a.directory, log)
	if err := a.loader.Reload(ctx); err != nil {
		// 종목명 없이도 시세는 동작 (코드가 이름 대신 표시됨)
		log.WithError(err).Warn("Symbol directory is empty")
	}

	// 8. Ranking aggregator
	a.rankings = ranking.NewAggregator(a.kis, a.directory, cache, log)

	return a, nil
}

// close releases storage connections
func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	if err := a.redis.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close redis")
	}
}
