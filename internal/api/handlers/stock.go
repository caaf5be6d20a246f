package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/zxcvny/capstone/internal/external/kis"
	"github.com/zxcvny/capstone/internal/stockinfo"
	"github.com/zxcvny/capstone/pkg/logger"
)

// searchQuoteConcurrency bounds the parallel quote lookups of one search
const searchQuoteConcurrency = 5

// MarketData is the quotation surface the stock endpoints read from
type MarketData interface {
	GetQuote(ctx context.Context, symbol string, market kis.Market) *kis.Quote
	GetDetail(ctx context.Context, symbol string, market kis.Market) kis.Detail
	GetChart(ctx context.Context, symbol string, market kis.Market, period kis.Period) []kis.Bar
	GetOrderBook(ctx context.Context, symbol string, market kis.Market) kis.OrderBook
	GetRecentTrades(ctx context.Context, symbol string, market kis.Market) []kis.Trade
	ForeignMarket() kis.Market
}

// SymbolSearcher looks symbols up by name or code
type SymbolSearcher interface {
	Search(keyword string, limit int) []stockinfo.Stock
}

// StockHandler handles stock data API endpoints
// ⭐ SSOT: 종목 시세 API 핸들러는 이 구조체에서만
type StockHandler struct {
	market    MarketData
	directory SymbolSearcher
	logger    *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(market MarketData, directory SymbolSearcher, log *logger.Logger) *StockHandler {
	return &StockHandler{
		market:    market,
		directory: directory,
		logger:    log,
	}
}

// SearchResult is one symbol match enriched with its latest quote
type SearchResult struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	Market     string  `json:"market"`
	Price      float64 `json:"price"`
	ChangeRate float64 `json:"change_rate"`
}

// Search finds symbols by name or code
// GET /stocks/search?keyword=삼성&limit=20
func (h *StockHandler) Search(w http.ResponseWriter, r *http.Request) {
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if keyword == "" {
		respondError(w, http.StatusBadRequest, "keyword is required")
		return
	}

	limit := stockinfo.DefaultSearchLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	matches := h.directory.Search(keyword, limit)
	results := make([]SearchResult, len(matches))

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(searchQuoteConcurrency)
	for i, s := range matches {
		results[i] = SearchResult{Code: s.Code, Name: s.Name, Market: s.Market}
		g.Go(func() error {
			// 시세 조회 실패는 0으로 남긴다
			if q := h.market.GetQuote(ctx, s.Code, kis.MarketDomestic); q != nil {
				results[i].Price = q.Price
				results[i].ChangeRate = q.ChangeRate
			}
			return nil
		})
	}
	_ = g.Wait()

	respondJSON(w, http.StatusOK, results)
}

// GetQuote returns the current quote; a zero-filled quote when upstream has no data
// GET /stocks/{code}/quote?market=NAS
func (h *StockHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	code, market, ok := h.target(w, r)
	if !ok {
		return
	}

	q := h.market.GetQuote(r.Context(), code, market)
	if q == nil {
		q = &kis.Quote{Symbol: code, Market: market, Currency: market.Currency()}
	}
	respondJSON(w, http.StatusOK, q)
}

// GetDetail returns the fundamentals view
// GET /stocks/{code}/detail
func (h *StockHandler) GetDetail(w http.ResponseWriter, r *http.Request) {
	code, market, ok := h.target(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.market.GetDetail(r.Context(), code, market))
}

// GetChart returns OHLCV bars
// GET /stocks/{code}/chart?period=D|W|M|Y|realtime|1|3|5|10|15|30|60
func (h *StockHandler) GetChart(w http.ResponseWriter, r *http.Request) {
	code, market, ok := h.target(w, r)
	if !ok {
		return
	}

	period, err := kis.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	bars := h.market.GetChart(r.Context(), code, market, period)
	h.logger.WithFields(map[string]interface{}{
		"code":   code,
		"market": market,
		"period": period.String(),
		"bars":   len(bars),
	}).Debug("Chart served")

	respondJSON(w, http.StatusOK, bars)
}

// GetOrderBook returns the bid/ask ladder
// GET /stocks/{code}/orderbook
func (h *StockHandler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	code, market, ok := h.target(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.market.GetOrderBook(r.Context(), code, market))
}

// GetTrades returns recent executions, newest first
// GET /stocks/{code}/trades
func (h *StockHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	code, market, ok := h.target(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.market.GetRecentTrades(r.Context(), code, market))
}

// target reads {code} and the market; writes a 400 and returns false when invalid
func (h *StockHandler) target(w http.ResponseWriter, r *http.Request) (string, kis.Market, bool) {
	code := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["code"]))
	if code == "" {
		respondError(w, http.StatusBadRequest, "stock code is required")
		return "", "", false
	}

	market, err := resolveMarket(r, code, h.market.ForeignMarket())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	return code, market, true
}
