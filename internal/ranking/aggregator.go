package ranking

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/zxcvny/capstone/internal/external/kis"
	"github.com/zxcvny/capstone/pkg/logger"
	"github.com/zxcvny/capstone/pkg/redis"
)

// Scope selects which markets a ranking covers
type Scope string

const (
	ScopeDomestic Scope = "DOMESTIC"
	ScopeOverseas Scope = "OVERSEAS"
	ScopeAll      Scope = "ALL"
)

// ParseScope normalizes market_type input; empty means ALL
func ParseScope(s string) (Scope, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ALL":
		return ScopeAll, nil
	case "DOMESTIC", "KR", "KRX":
		return ScopeDomestic, nil
	case "OVERSEAS", "FOREIGN", "US":
		return ScopeOverseas, nil
	default:
		return "", fmt.Errorf("unknown market scope %q", s)
	}
}

// Source fetches one market's ranking
type Source interface {
	GetRanking(ctx context.Context, rankType kis.RankType, market kis.Market) []kis.RankingEntry
	ForeignMarket() kis.Market
}

// NameResolver maps a symbol to its display name
type NameResolver interface {
	Name(symbol string) string
}

// Aggregator combines domestic and foreign rankings into one sorted list
// ⭐ SSOT: 통합 랭킹 정렬/병합은 여기서만
type Aggregator struct {
	source Source
	names  NameResolver
	cache  *redis.Cache
	logger *logger.Logger
}

// NewAggregator creates an aggregator. cache may be nil.
func NewAggregator(source Source, names NameResolver, cache *redis.Cache, log *logger.Logger) *Aggregator {
	return &Aggregator{
		source: source,
		names:  names,
		cache:  cache,
		logger: log.WithComponent("ranking"),
	}
}

// GetRanking returns at most kis.MaxRankingEntries entries sorted by the rank type's metric
// and renumbered from 1. Never fails; an upstream outage yields an empty list.
func (a *Aggregator) GetRanking(ctx context.Context, rankType kis.RankType, scope Scope) []kis.RankingEntry {
	rankType = rankType.Normalize()
	key := redis.RankingKey(string(rankType), string(scope))

	if a.cache != nil {
		var cached []kis.RankingEntry
		if ok, err := a.cache.Get(ctx, key, &cached); err != nil {
			a.logger.WithError(err).WithField("key", key).Warn("ranking cache read failed")
		} else if ok {
			return cached
		}
	}

	var entries []kis.RankingEntry
	switch scope {
	case ScopeDomestic:
		entries = a.domestic(ctx, rankType)
	case ScopeOverseas:
		entries = a.foreign(ctx, rankType)
	default:
		entries = a.combined(ctx, rankType)
	}

	SortEntries(entries, rankType)
	if len(entries) > kis.MaxRankingEntries {
		entries = entries[:kis.MaxRankingEntries]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}

	a.logger.WithFields(map[string]interface{}{
		"rank_type": rankType,
		"scope":     scope,
		"count":     len(entries),
	}).Debug("Ranking aggregated")

	if a.cache != nil && len(entries) > 0 {
		if err := a.cache.Set(ctx, key, entries, redis.TTLRanking); err != nil {
			a.logger.WithError(err).WithField("key", key).Warn("ranking cache write failed")
		}
	}
	return entries
}

// combined fetches both markets concurrently; domestic entries come first before sorting
func (a *Aggregator) combined(ctx context.Context, rankType kis.RankType) []kis.RankingEntry {
	var domestic, foreign []kis.RankingEntry

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		domestic = a.domestic(gctx, rankType)
		return nil
	})
	g.Go(func() error {
		foreign = a.foreign(gctx, rankType)
		return nil
	})
	_ = g.Wait()

	out := make([]kis.RankingEntry, 0, len(domestic)+len(foreign))
	out = append(out, domestic...)
	return append(out, foreign...)
}

func (a *Aggregator) domestic(ctx context.Context, rankType kis.RankType) []kis.RankingEntry {
	entries := a.source.GetRanking(ctx, rankType, kis.MarketDomestic)
	for i := range entries {
		entries[i].Market = kis.MarketDomestic
		if a.names != nil && (entries[i].Name == "" || entries[i].Name == entries[i].Code) {
			entries[i].Name = a.names.Name(entries[i].Code)
		}
	}
	return entries
}

func (a *Aggregator) foreign(ctx context.Context, rankType kis.RankType) []kis.RankingEntry {
	market := a.source.ForeignMarket()
	entries := a.source.GetRanking(ctx, rankType, market)
	for i := range entries {
		if entries[i].Market == "" {
			entries[i].Market = market
		}
		if entries[i].Name == "" {
			entries[i].Name = entries[i].Code
		}
	}
	return entries
}

// SortEntries orders entries in place by the rank type's metric; ties keep their order.
// rise sorts change_rate descending and fall ascending; volume, amount and market_cap
// sort descending. market_cap falls back to amount when an entry has no market cap,
// an approximation kept because some foreign rows omit the cap column.
func SortEntries(entries []kis.RankingEntry, rankType kis.RankType) {
	rankType = rankType.Normalize()
	ascending := rankType == kis.RankFall

	sort.SliceStable(entries, func(i, j int) bool {
		vi, vj := Metric(entries[i], rankType), Metric(entries[j], rankType)
		if ascending {
			return vi < vj
		}
		return vi > vj
	})
}

// Metric returns the numeric sort key of e for rankType (unparseable text is 0)
func Metric(e kis.RankingEntry, rankType kis.RankType) float64 {
	switch rankType.Normalize() {
	case kis.RankRise, kis.RankFall:
		return kis.ParseNumber(e.ChangeRate)
	case kis.RankVolume:
		return kis.ParseNumber(e.Volume)
	case kis.RankAmount:
		return kis.ParseNumber(e.Amount)
	case kis.RankMarketCap:
		if strings.TrimSpace(e.MarketCap) == "" {
			return kis.ParseNumber(e.Amount)
		}
		return kis.ParseNumber(e.MarketCap)
	default:
		return 0
	}
}
