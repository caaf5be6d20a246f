package ranking_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxcvny/capstone/internal/external/kis"
	"github.com/zxcvny/capstone/internal/ranking"
	"github.com/zxcvny/capstone/internal/stockinfo"
	"github.com/zxcvny/capstone/pkg/config"
	"github.com/zxcvny/capstone/pkg/httputil"
	"github.com/zxcvny/capstone/pkg/logger"
	"github.com/zxcvny/capstone/pkg/redis"
)

type staticTokens struct{}

func (staticTokens) AccessToken(context.Context) (string, error) { return "token", nil }
func (staticTokens) ApprovalKey(context.Context) (string, error) { return "approval", nil }

type staticRate float64

func (r staticRate) Rate(context.Context) float64 { return float64(r) }

// newKISServer serves the fluctuation and updown-rate rankings
func newKISServer(t *testing.T) *httptest.Server {
	domestic := []map[string]string{
		{"data_rank": "1", "stck_shrn_iscd": "000001", "hts_kor_isnm": "가나", "stck_prpr": "1000", "prdy_vrss": "51", "prdy_ctrt": "5.10", "acml_vol": "100"},
		{"data_rank": "2", "stck_shrn_iscd": "000002", "hts_kor_isnm": "", "stck_prpr": "2000", "prdy_vrss": "460", "prdy_ctrt": "29.90", "acml_vol": "200"},
		{"data_rank": "3", "stck_shrn_iscd": "000003", "hts_kor_isnm": "다라", "stck_prpr": "3000", "prdy_vrss": "321", "prdy_ctrt": "12.00", "acml_vol": "300"},
	}
	foreign := []map[string]string{
		{"rank": "1", "symb": "AAPL", "name": "", "last": "200", "diff": "26.84", "rate": "15.50", "tvol": "10", "tamt": ""},
		{"rank": "2", "symb": "MSFT", "name": "Microsoft", "last": "400", "diff": "3.96", "rate": "1.00", "tvol": "5", "tamt": "2000"},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{"rt_cd": "0", "msg_cd": "MCA00000", "msg1": "정상처리 되었습니다."}
		switch r.URL.Path {
		case "/uapi/domestic-stock/v1/ranking/fluctuation":
			assert.Equal(t, "0", r.URL.Query().Get("FID_RANK_SORT_CLS_CODE"))
			body["output"] = domestic
		case "/uapi/overseas-stock/v1/ranking/updown-rate":
			assert.Equal(t, "NAS", r.URL.Query().Get("EXCD"))
			body["output2"] = foreign
		default:
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAggregator(t *testing.T) *ranking.Aggregator {
	srv := newKISServer(t)
	cache := redis.NewCache(redis.Disabled(), "test")

	client := kis.NewClient(
		config.KISConfig{AppKey: "key", AppSecret: "secret", BaseURL: srv.URL, OverseasExchange: "NAS"},
		httputil.New(logger.Nop()).DisableRetry(),
		staticTokens{}, staticRate(1350), cache, logger.Nop(),
	)
	directory := stockinfo.NewDirectory(stockinfo.Stock{Code: "000002", Name: "마바", Market: "KOSPI"})

	return ranking.NewAggregator(client, directory, cache, logger.Nop())
}

func codes(entries []kis.RankingEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Code
	}
	return out
}

func TestAggregator_DomesticRiseResorted(t *testing.T) {
	entries := newAggregator(t).GetRanking(context.Background(), kis.RankRise, ranking.ScopeDomestic)

	require.Len(t, entries, 3)
	assert.Equal(t, []string{"000002", "000003", "000001"}, codes(entries))
	for i, e := range entries {
		assert.Equal(t, i+1, e.Rank)
		assert.Equal(t, kis.MarketDomestic, e.Market)
	}
	assert.Equal(t, "마바", entries[0].Name)
}

func TestAggregator_AllRiseMergesMarkets(t *testing.T) {
	entries := newAggregator(t).GetRanking(context.Background(), kis.RankRise, ranking.ScopeAll)

	require.Len(t, entries, 5)
	assert.Equal(t, []string{"000002", "AAPL", "000003", "000001", "MSFT"}, codes(entries))

	apple := entries[1]
	assert.Equal(t, 2, apple.Rank)
	assert.Equal(t, kis.MarketNASDAQ, apple.Market)
	assert.Equal(t, "AAPL", apple.Name)
	assert.Equal(t, "270000.00", apple.Price)
	// 거래대금이 비어 있으면 가격 × 거래량
	assert.Equal(t, "2700000", apple.Amount)
}
