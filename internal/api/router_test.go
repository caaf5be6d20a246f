package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxcvny/capstone/internal/api/handlers"
	"github.com/zxcvny/capstone/internal/external/kis"
	"github.com/zxcvny/capstone/internal/fx"
	"github.com/zxcvny/capstone/internal/ranking"
	"github.com/zxcvny/capstone/internal/realtime/stream"
	"github.com/zxcvny/capstone/internal/stockinfo"
	"github.com/zxcvny/capstone/pkg/logger"
)

type emptyMarket struct{}

func (emptyMarket) GetQuote(context.Context, string, kis.Market) *kis.Quote { return nil }
func (emptyMarket) GetDetail(_ context.Context, s string, m kis.Market) kis.Detail {
	return kis.Detail{Symbol: s, Market: m}
}
func (emptyMarket) GetChart(context.Context, string, kis.Market, kis.Period) []kis.Bar {
	return []kis.Bar{}
}
func (emptyMarket) GetOrderBook(_ context.Context, s string, m kis.Market) kis.OrderBook {
	return kis.OrderBook{Symbol: s, Market: m}
}
func (emptyMarket) GetRecentTrades(context.Context, string, kis.Market) []kis.Trade {
	return []kis.Trade{}
}
func (emptyMarket) ForeignMarket() kis.Market { return kis.MarketNASDAQ }

type emptyRanking struct{}

func (emptyRanking) GetRanking(context.Context, kis.RankType, ranking.Scope) []kis.RankingEntry {
	return []kis.RankingEntry{}
}

type emptyHub struct{}

func (emptyHub) Subscribe(stream.Handle, string)   {}
func (emptyHub) Unsubscribe(stream.Handle, string) {}
func (emptyHub) Stats() stream.Stats               { return stream.Stats{State: "disconnected"} }

type fixedRate struct{}

func (fixedRate) Rate(context.Context) float64 { return 1350 }
func (fixedRate) Snapshot() fx.Rate            { return fx.Rate{Value: 1350, Source: "default"} }

func newTestHandler(frontendURL string) http.Handler {
	log := logger.Nop()
	return NewRouter(Handlers{
		Stock:   handlers.NewStockHandler(emptyMarket{}, stockinfo.NewDirectory(), log),
		Ranking: handlers.NewRankingHandler(emptyRanking{}, log),
		Stream:  handlers.NewStreamHandler(emptyHub{}, emptyRanking{}, nil, frontendURL, log),
		System:  handlers.NewSystemHandler(fixedRate{}, nil, log),
	}, frontendURL, log)
}

func TestRouter_Routes(t *testing.T) {
	h := newTestHandler("")

	tests := []struct {
		method string
		target string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/fx/rate", http.StatusOK},
		{http.MethodGet, "/scheduler/jobs", http.StatusOK},
		{http.MethodGet, "/stocks/search?keyword=AAPL", http.StatusOK},
		{http.MethodGet, "/stocks/rank/volume", http.StatusOK},
		{http.MethodGet, "/stocks/rank/unknown", http.StatusBadRequest},
		{http.MethodGet, "/stocks/005930/quote", http.StatusOK},
		{http.MethodGet, "/stocks/005930/detail", http.StatusOK},
		{http.MethodGet, "/stocks/AAPL/chart?period=D", http.StatusOK},
		{http.MethodGet, "/stocks/AAPL/orderbook", http.StatusOK},
		{http.MethodGet, "/stocks/AAPL/trades", http.StatusOK},
		{http.MethodGet, "/realtime/stats", http.StatusOK},
		{http.MethodGet, "/realtime/ticks/005930", http.StatusNotFound},
		{http.MethodGet, "/stocks/005930", http.StatusNotFound},
		{http.MethodPost, "/health", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestRouter_SearchEmptyDirectory(t *testing.T) {
	h := newTestHandler("")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stocks/search?keyword="+url.QueryEscape("삼성"), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var results []handlers.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Empty(t, results)
}

func TestRouter_CORS(t *testing.T) {
	h := newTestHandler("http://localhost:5173")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/stocks/rank/volume", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = httptest.NewRecorder()
	newTestHandler("").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stocks/005930/quote", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Internal server error", body["error"])
}
