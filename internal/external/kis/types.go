package kis

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================
// Markets
// ============================================================

// Market identifies an instrument universe. Domestic is "KR"; foreign markets use KIS exchange codes.
type Market string

const (
	MarketDomestic Market = "KR"
	MarketNASDAQ   Market = "NAS"
	MarketNYSE     Market = "NYS"
	MarketAMEX     Market = "AMS"
)

// IsDomestic reports whether m is the Korean market
func (m Market) IsDomestic() bool {
	return m == MarketDomestic
}

// Currency returns the quote currency of the market
func (m Market) Currency() string {
	if m.IsDomestic() {
		return "KRW"
	}
	return "USD"
}

// ParseMarket normalizes user input (KR, KRX, DOMESTIC, NAS, NASD, NYSE, ...)
func ParseMarket(s string) (Market, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "KR", "KRX", "DOMESTIC", "J":
		return MarketDomestic, nil
	case "NAS", "NASD", "NASDAQ":
		return MarketNASDAQ, nil
	case "NYS", "NYSE":
		return MarketNYSE, nil
	case "AMS", "AMEX":
		return MarketAMEX, nil
	default:
		return "", fmt.Errorf("unknown market %q", s)
	}
}

// InferMarket guesses the market from symbol shape:
// six-digit numeric codes are domestic, everything else is the given foreign exchange.
func InferMarket(symbol string, foreign Market) Market {
	if IsDomesticSymbol(symbol) {
		return MarketDomestic
	}
	return foreign
}

// IsDomesticSymbol reports whether symbol is a six-digit KRX code
func IsDomesticSymbol(symbol string) bool {
	if len(symbol) != 6 {
		return false
	}
	for _, r := range symbol {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ============================================================
// Canonical records
// ============================================================

// Quote is a normalized single-instrument quote.
// Foreign quotes stay in the source currency (see Currency).
type Quote struct {
	Symbol     string    `json:"symbol"`
	Market     Market    `json:"market"`
	Price      float64   `json:"price"`
	Change     float64   `json:"change"`
	ChangeRate float64   `json:"change_rate"`
	Volume     float64   `json:"volume"`
	Turnover   float64   `json:"turnover"`
	PrevClose  float64   `json:"prev_close"`
	Currency   string    `json:"currency"`
	Timestamp  time.Time `json:"timestamp"`
}

// RankingEntry is one row of a ranking. Numeric fields keep the upstream wire text
// (foreign values already converted to KRW / 억원).
type RankingEntry struct {
	Rank       int    `json:"rank"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	Market     Market `json:"market"`
	Price      string `json:"price"`
	Change     string `json:"change"`
	ChangeRate string `json:"change_rate"`
	Volume     string `json:"volume"`
	Amount     string `json:"amount"`
	MarketCap  string `json:"market_cap,omitempty"`
}

// Bar is one OHLCV candle. Time is KST.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Detail is the merged fundamentals view of one instrument.
// Prices are KRW and MarketCap is 억원 for both markets.
type Detail struct {
	Symbol           string  `json:"symbol"`
	Market           Market  `json:"market"`
	Price            float64 `json:"price"`
	Change           float64 `json:"change"`
	ChangeRate       float64 `json:"change_rate"`
	Open             float64 `json:"open"`
	High             float64 `json:"high"`
	Low              float64 `json:"low"`
	Volume           float64 `json:"volume"`
	MarketCap        float64 `json:"market_cap"`
	PER              float64 `json:"per"`
	PBR              float64 `json:"pbr"`
	EPS              float64 `json:"eps"`
	BPS              float64 `json:"bps"`
	TurnoverVelocity float64 `json:"turnover_velocity"`
	High52W          float64 `json:"high_52w"`
	Low52W           float64 `json:"low_52w"`
}

// OrderBookLevel is one price level of the ladder
type OrderBookLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook is the current bid/ask ladder, best level first
type OrderBook struct {
	Symbol      string           `json:"symbol"`
	Market      Market           `json:"market"`
	Asks        []OrderBookLevel `json:"asks"`
	Bids        []OrderBookLevel `json:"bids"`
	TotalAskQty float64          `json:"total_ask_qty"`
	TotalBidQty float64          `json:"total_bid_qty"`
}

// Trade is one executed trade, newest first in lists
type Trade struct {
	Date       string  `json:"date,omitempty"`
	Time       string  `json:"time"` // HHMMSS KST
	Price      float64 `json:"price"`
	Change     float64 `json:"change"`
	ChangeRate float64 `json:"change_rate"`
	Volume     float64 `json:"volume"`
	Power      float64 `json:"power"` // 체결강도
}

// ============================================================
// Rank types
// ============================================================

// RankType selects the ranking metric
type RankType string

const (
	RankVolume    RankType = "volume"
	RankAmount    RankType = "amount"
	RankMarketCap RankType = "market_cap"
	RankCap       RankType = "cap" // alias of market_cap accepted from clients
	RankRise      RankType = "rise"
	RankFall      RankType = "fall"
)

// Normalize maps the cap alias onto market_cap
func (t RankType) Normalize() RankType {
	if t == RankCap {
		return RankMarketCap
	}
	return t
}

// Valid reports whether t is a known rank type
func (t RankType) Valid() bool {
	switch t.Normalize() {
	case RankVolume, RankAmount, RankMarketCap, RankRise, RankFall:
		return true
	}
	return false
}

// MaxRankingEntries caps every ranking result
const MaxRankingEntries = 30

// ============================================================
// Errors
// ============================================================

// APIError is a KIS payload with rt_cd != "0"
type APIError struct {
	TrID    string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("KIS API error [%s] %s: %s", e.TrID, e.Code, e.Message)
}

// KST is the zone every session computation runs in
var KST = time.FixedZone("KST", 9*60*60)
