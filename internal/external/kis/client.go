package kis

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/zxcvny/capstone/pkg/config"
	"github.com/zxcvny/capstone/pkg/httputil"
	"github.com/zxcvny/capstone/pkg/logger"
	"github.com/zxcvny/capstone/pkg/redis"
)

// REST paths
const (
	pathDomesticPrice       = "/uapi/domestic-stock/v1/quotations/inquire-price"
	pathDomesticVolumeRank  = "/uapi/domestic-stock/v1/quotations/volume-rank"
	pathDomesticFluctuation = "/uapi/domestic-stock/v1/ranking/fluctuation"
	pathDomesticMarketCap   = "/uapi/domestic-stock/v1/ranking/market-cap"
	pathDomesticDailyChart  = "/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice"
	pathDomesticMinuteChart = "/uapi/domestic-stock/v1/quotations/inquire-time-dailychartprice"
	pathDomesticOrderBook   = "/uapi/domestic-stock/v1/quotations/inquire-asking-price-exp-ccn"
	pathDomesticTrades      = "/uapi/domestic-stock/v1/quotations/inquire-ccnl"

	pathForeignPrice       = "/uapi/overseas-price/v1/quotations/price"
	pathForeignDetail      = "/uapi/overseas-price/v1/quotations/price-detail"
	pathForeignDailyChart  = "/uapi/overseas-price/v1/quotations/dailyprice"
	pathForeignMinuteChart = "/uapi/overseas-price/v1/quotations/inquire-time-itemchartprice"
	pathForeignOrderBook   = "/uapi/overseas-price/v1/quotations/inquire-asking-price"
	pathForeignTrades      = "/uapi/overseas-price/v1/quotations/inquire-ccnl"
	pathForeignRankVolume  = "/uapi/overseas-stock/v1/ranking/trade-vol"
	pathForeignRankAmount  = "/uapi/overseas-stock/v1/ranking/trade-pbmn"
	pathForeignRankCap     = "/uapi/overseas-stock/v1/ranking/market-cap"
	pathForeignRankUpDown  = "/uapi/overseas-stock/v1/ranking/updown-rate"
)

// TR IDs
const (
	trDomesticPrice       = "FHKST01010100" // 국내주식 현재가
	trDomesticOrderBook   = "FHKST01010200" // 호가
	trDomesticTrades      = "FHKST01010300" // 체결
	trDomesticDailyChart  = "FHKST03010100" // 기간별 시세
	trDomesticMinuteChart = "FHKST03010230" // 일별 분봉
	trDomesticVolumeRank  = "FHPST01710000" // 거래량 순위
	trDomesticFluctuation = "FHPST01700000" // 등락률 순위
	trDomesticMarketCap   = "FHPST01740000" // 시가총액 상위

	trForeignPrice       = "HHDFS00000300" // 해외주식 현재체결가
	trForeignOrderBook   = "HHDFS76200100" // 호가
	trForeignDetail      = "HHDFS76200200" // 현재가 상세
	trForeignTrades      = "HHDFS76200300" // 체결
	trForeignDailyChart  = "HHDFS76240000" // 기간별 시세
	trForeignMinuteChart = "HHDFS76950200" // 분봉
	trForeignRankUpDown  = "HHDFS76290000" // 상승율/하락율
	trForeignRankVolume  = "HHDFS76310010" // 거래량 순위
	trForeignRankAmount  = "HHDFS76320010" // 거래대금 순위
	trForeignRankCap     = "HHDFS76350100" // 시가총액 순위
)

// REST throttle: KIS allows ~20 req/s on real accounts, far less on virtual ones
const (
	requestsPerSecond        = 15
	virtualRequestsPerSecond = 5
)

// RateProvider supplies the USD→KRW rate for foreign conversions
type RateProvider interface {
	Rate(ctx context.Context) float64
}

// Client handles communication with the KIS (한국투자증권) quotation API.
// Public methods never return errors: failures are logged and an empty result is returned.
// ⭐ SSOT: KIS 시세 API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	tokens     TokenProvider
	rates      RateProvider
	cache      *redis.Cache
	logger     *logger.Logger
	cfg        config.KISConfig
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewClient creates a new KIS API client.
// Panics when a field map lacks a required key; that is a programming error.
func NewClient(cfg config.KISConfig, httpClient *httputil.Client, tokens TokenProvider, rates RateProvider, cache *redis.Cache, log *logger.Logger) *Client {
	if err := ValidateFieldMaps(); err != nil {
		panic(err)
	}

	rps := requestsPerSecond
	if cfg.IsVirtual {
		rps = virtualRequestsPerSecond
	}

	return &Client{
		httpClient: httpClient,
		tokens:     tokens,
		rates:      rates,
		cache:      cache,
		logger:     log.WithComponent("kis"),
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		now:        time.Now,
	}
}

// ForeignMarket returns the configured default foreign exchange
func (c *Client) ForeignMarket() Market {
	if m, err := ParseMarket(c.cfg.OverseasExchange); err == nil && !m.IsDomestic() {
		return m
	}
	return MarketNASDAQ
}

// envelope is the common KIS response wrapper
type envelope struct {
	RtCd    string  `json:"rt_cd"`
	MsgCd   string  `json:"msg_cd"`
	Msg1    string  `json:"msg1"`
	Output  records `json:"output"`
	Output1 records `json:"output1"`
	Output2 records `json:"output2"`
}

// get makes an authenticated GET request and checks rt_cd
func (c *Client) get(ctx context.Context, path, trID string, params url.Values) (*envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	fullURL := c.cfg.BaseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("appkey", c.cfg.AppKey)
	req.Header.Set("appsecret", c.cfg.AppSecret)
	req.Header.Set("tr_id", trID)
	req.Header.Set("custtype", "P")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := httputil.DecodeJSON(resp, &env); err != nil {
		return nil, err
	}

	if env.RtCd != "0" {
		return nil, &APIError{TrID: trID, Code: env.MsgCd, Message: env.Msg1}
	}

	return &env, nil
}

// foreignParams builds the AUTH/EXCD/SYMB triple every overseas quotation takes
func foreignParams(market Market, symbol string) url.Values {
	params := url.Values{}
	params.Set("AUTH", "")
	params.Set("EXCD", string(market))
	params.Set("SYMB", symbol)
	return params
}

// domesticParams builds the market/code pair every domestic quotation takes
func domesticParams(symbol string) url.Values {
	params := url.Values{}
	params.Set("FID_COND_MRKT_DIV_CODE", "J")
	params.Set("FID_INPUT_ISCD", symbol)
	return params
}

// logFailure records an upstream failure with the offending identifiers
func (c *Client) logFailure(err error, op string, fields map[string]interface{}) {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["op"] = op
	c.logger.WithError(err).WithFields(fields).Error("KIS request failed")
}

func (c *Client) fxRate(ctx context.Context) float64 {
	return c.rates.Rate(ctx)
}
