package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zxcvny/capstone/internal/external/kis"
	"github.com/zxcvny/capstone/internal/ranking"
	"github.com/zxcvny/capstone/pkg/logger"
)

// RankingSource produces a combined ranking
type RankingSource interface {
	GetRanking(ctx context.Context, rankType kis.RankType, scope ranking.Scope) []kis.RankingEntry
}

// RankingHandler handles ranking-related API endpoints
// ⭐ SSOT: 랭킹 API 핸들러는 이 구조체에서만
type RankingHandler struct {
	rankings RankingSource
	logger   *logger.Logger
}

// NewRankingHandler creates a new ranking handler
func NewRankingHandler(rankings RankingSource, log *logger.Logger) *RankingHandler {
	return &RankingHandler{
		rankings: rankings,
		logger:   log,
	}
}

// GetRanking returns up to 30 entries sorted by the rank type's metric
// GET /stocks/rank/{rank_type}?market_type=ALL|DOMESTIC|OVERSEAS
func (h *RankingHandler) GetRanking(w http.ResponseWriter, r *http.Request) {
	rankType, scope, err := parseRankingQuery(mux.Vars(r)["rank_type"], r.URL.Query().Get("market_type"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries := h.rankings.GetRanking(r.Context(), rankType, scope)
	respondJSON(w, http.StatusOK, entries)
}

// parseRankingQuery validates rank_type and market_type; an empty rank_type means volume
func parseRankingQuery(rawType, rawScope string) (kis.RankType, ranking.Scope, error) {
	rankType := kis.RankType(rawType)
	if rankType == "" {
		rankType = kis.RankVolume
	}
	if !rankType.Valid() {
		return "", "", fmt.Errorf("invalid rank_type %q (valid: volume, amount, cap, market_cap, rise, fall)", rawType)
	}

	scope, err := ranking.ParseScope(rawScope)
	if err != nil {
		return "", "", err
	}
	return rankType.Normalize(), scope, nil
}
