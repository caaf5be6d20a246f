package kis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Field is a canonical field name shared by every upstream shape
type Field string

const (
	FieldSymbol     Field = "symbol"
	FieldName       Field = "name"
	FieldRank       Field = "rank"
	FieldPrice      Field = "price"
	FieldChange     Field = "change"
	FieldChangeRate Field = "change_rate"
	FieldVolume     Field = "volume"
	FieldTurnover   Field = "turnover"
	FieldMarketCap  Field = "market_cap"
	FieldPrevClose  Field = "prev_close"
	FieldOpen       Field = "open"
	FieldHigh       Field = "high"
	FieldLow        Field = "low"
	FieldClose      Field = "close"
	FieldDate       Field = "date"
	FieldTime       Field = "time"
	FieldPER        Field = "per"
	FieldPBR        Field = "pbr"
	FieldEPS        Field = "eps"
	FieldBPS        Field = "bps"
	FieldShares     Field = "shares"
	FieldVelocity   Field = "velocity"
	FieldHigh52W    Field = "high_52w"
	FieldLow52W     Field = "low_52w"
	FieldPower      Field = "power"
	FieldTotalAsk   Field = "total_ask"
	FieldTotalBid   Field = "total_bid"
	FieldLocalDate  Field = "local_date"
	FieldLocalTime  Field = "local_time"
)

// FieldMap translates canonical fields to one upstream payload's keys.
// ⭐ SSOT: 업스트림 필드명은 이 파일에서만 정의
type FieldMap struct {
	Name     string
	Keys     map[Field]string
	Required []Field
}

// Key returns the upstream key for f ("" when the shape lacks it)
func (m FieldMap) Key(f Field) string {
	return m.Keys[f]
}

// Text returns the raw wire text of f in r
func (m FieldMap) Text(r record, f Field) string {
	key, ok := m.Keys[f]
	if !ok {
		return ""
	}
	return strings.TrimSpace(r[key])
}

// Num parses f in r with ParseNumber
func (m FieldMap) Num(r record, f Field) float64 {
	return ParseNumber(m.Text(r, f))
}

// Has reports whether f is present and non-empty in r
func (m FieldMap) Has(r record, f Field) bool {
	return m.Text(r, f) != ""
}

// validate checks every required field has a key
func (m FieldMap) validate() error {
	for _, f := range m.Required {
		if m.Keys[f] == "" {
			return fmt.Errorf("field map %s: missing key for required field %q", m.Name, f)
		}
	}
	return nil
}

var quoteRequired = []Field{FieldPrice, FieldChange, FieldChangeRate, FieldVolume}
var rankingRequired = []Field{FieldSymbol, FieldPrice, FieldChange, FieldChangeRate, FieldVolume}
var barRequired = []Field{FieldDate, FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume}
var tradeRequired = []Field{FieldTime, FieldPrice, FieldVolume}

// ============================================================
// Domestic (국내주식)
// ============================================================

// inquire-price FHKST01010100 output
var domesticPriceFields = FieldMap{
	Name: "domestic.inquire-price",
	Keys: map[Field]string{
		FieldSymbol:     "stck_shrn_iscd",
		FieldPrice:      "stck_prpr",
		FieldChange:     "prdy_vrss",
		FieldChangeRate: "prdy_ctrt",
		FieldVolume:     "acml_vol",
		FieldTurnover:   "acml_tr_pbmn",
		FieldPrevClose:  "stck_sdpr",
		FieldOpen:       "stck_oprc",
		FieldHigh:       "stck_hgpr",
		FieldLow:        "stck_lwpr",
		FieldMarketCap:  "hts_avls", // 억원
		FieldPER:        "per",
		FieldPBR:        "pbr",
		FieldEPS:        "eps",
		FieldBPS:        "bps",
		FieldVelocity:   "vol_tnrt",
		FieldHigh52W:    "w52_hgpr",
		FieldLow52W:     "w52_lwpr",
	},
	Required: append([]Field{FieldMarketCap, FieldPER, FieldPBR}, quoteRequired...),
}

// volume-rank FHPST01710000 output
var domesticVolumeRankFields = FieldMap{
	Name: "domestic.volume-rank",
	Keys: map[Field]string{
		FieldSymbol:     "mksc_shrn_iscd",
		FieldName:       "hts_kor_isnm",
		FieldRank:       "data_rank",
		FieldPrice:      "stck_prpr",
		FieldChange:     "prdy_vrss",
		FieldChangeRate: "prdy_ctrt",
		FieldVolume:     "acml_vol",
		FieldTurnover:   "acml_tr_pbmn",
	},
	Required: append([]Field{FieldTurnover}, rankingRequired...),
}

// ranking/fluctuation FHPST01700000 output (no turnover column)
var domesticFluctuationFields = FieldMap{
	Name: "domestic.fluctuation",
	Keys: map[Field]string{
		FieldSymbol:     "stck_shrn_iscd",
		FieldName:       "hts_kor_isnm",
		FieldRank:       "data_rank",
		FieldPrice:      "stck_prpr",
		FieldChange:     "prdy_vrss",
		FieldChangeRate: "prdy_ctrt",
		FieldVolume:     "acml_vol",
	},
	Required: rankingRequired,
}

// ranking/market-cap FHPST01740000 output
var domesticMarketCapFields = FieldMap{
	Name: "domestic.market-cap",
	Keys: map[Field]string{
		FieldSymbol:     "mksc_shrn_iscd",
		FieldName:       "hts_kor_isnm",
		FieldRank:       "data_rank",
		FieldPrice:      "stck_prpr",
		FieldChange:     "prdy_vrss",
		FieldChangeRate: "prdy_ctrt",
		FieldVolume:     "acml_vol",
		FieldMarketCap:  "stck_avls", // 억원
	},
	Required: append([]Field{FieldMarketCap}, rankingRequired...),
}

// inquire-daily-itemchartprice FHKST03010100 output2
var domesticDailyBarFields = FieldMap{
	Name: "domestic.daily-chart",
	Keys: map[Field]string{
		FieldDate:   "stck_bsop_date",
		FieldOpen:   "stck_oprc",
		FieldHigh:   "stck_hgpr",
		FieldLow:    "stck_lwpr",
		FieldClose:  "stck_clpr",
		FieldVolume: "acml_vol",
	},
	Required: barRequired,
}

// inquire-time-dailychartprice FHKST03010230 output2
var domesticMinuteBarFields = FieldMap{
	Name: "domestic.minute-chart",
	Keys: map[Field]string{
		FieldDate:   "stck_bsop_date",
		FieldTime:   "stck_cntg_hour",
		FieldOpen:   "stck_oprc",
		FieldHigh:   "stck_hgpr",
		FieldLow:    "stck_lwpr",
		FieldClose:  "stck_prpr",
		FieldVolume: "cntg_vol",
	},
	Required: append([]Field{FieldTime}, barRequired...),
}

// inquire-ccnl FHKST01010300 output
var domesticTradeFields = FieldMap{
	Name: "domestic.inquire-ccnl",
	Keys: map[Field]string{
		FieldTime:       "stck_cntg_hour",
		FieldPrice:      "stck_prpr",
		FieldChange:     "prdy_vrss",
		FieldChangeRate: "prdy_ctrt",
		FieldVolume:     "cntg_vol",
		FieldPower:      "tday_rltv",
	},
	Required: tradeRequired,
}

// inquire-asking-price-exp-ccn FHKST01010200 output1 totals; levels are askp{n}/bidp{n}
var domesticOrderBookFields = FieldMap{
	Name: "domestic.asking-price",
	Keys: map[Field]string{
		FieldTotalAsk: "total_askp_rsqn",
		FieldTotalBid: "total_bidp_rsqn",
	},
	Required: []Field{FieldTotalAsk, FieldTotalBid},
}

// ladderKeys names the numbered columns of an order book payload ({prefix}{level})
type ladderKeys struct {
	AskPrice string
	BidPrice string
	AskQty   string
	BidQty   string
	Depth    int
}

func (k ladderKeys) level(r record, n int) (ask, bid OrderBookLevel) {
	suffix := strconv.Itoa(n)
	ask = OrderBookLevel{Price: ParseNumber(r[k.AskPrice+suffix]), Quantity: ParseNumber(r[k.AskQty+suffix])}
	bid = OrderBookLevel{Price: ParseNumber(r[k.BidPrice+suffix]), Quantity: ParseNumber(r[k.BidQty+suffix])}
	return ask, bid
}

var domesticLadder = ladderKeys{AskPrice: "askp", BidPrice: "bidp", AskQty: "askp_rsqn", BidQty: "bidp_rsqn", Depth: 10}

// ============================================================
// Foreign (해외주식)
// ============================================================

// price HHDFS00000300 output
var foreignPriceFields = FieldMap{
	Name: "foreign.price",
	Keys: map[Field]string{
		FieldPrice:      "last",
		FieldChange:     "diff",
		FieldChangeRate: "rate",
		FieldVolume:     "tvol",
		FieldTurnover:   "tamt",
		FieldPrevClose:  "base",
	},
	Required: append([]Field{FieldPrevClose}, quoteRequired...),
}

// price-detail HHDFS76200200 output (no change / change_rate; derived from base)
var foreignDetailFields = FieldMap{
	Name: "foreign.price-detail",
	Keys: map[Field]string{
		FieldPrice:     "last",
		FieldPrevClose: "base",
		FieldOpen:      "open",
		FieldHigh:      "high",
		FieldLow:       "low",
		FieldVolume:    "tvol",
		FieldTurnover:  "tamt",
		FieldMarketCap: "tomv", // raw USD
		FieldPER:       "perx",
		FieldPBR:       "pbrx",
		FieldEPS:       "epsx",
		FieldBPS:       "bpsx",
		FieldShares:    "shar",
		FieldHigh52W:   "h52p",
		FieldLow52W:    "l52p",
	},
	Required: []Field{FieldPrice, FieldPrevClose, FieldMarketCap, FieldEPS, FieldBPS, FieldShares},
}

// ranking/* output2 (trade-vol, trade-pbmn, market-cap, updown-rate)
var foreignRankingFields = FieldMap{
	Name: "foreign.ranking",
	Keys: map[Field]string{
		FieldSymbol:     "symb",
		FieldName:       "name",
		FieldRank:       "rank",
		FieldPrice:      "last",
		FieldChange:     "diff",
		FieldChangeRate: "rate",
		FieldVolume:     "tvol",
		FieldTurnover:   "tamt",
		FieldMarketCap:  "tomv",
	},
	Required: rankingRequired,
}

// dailyprice HHDFS76240000 output2
var foreignDailyBarFields = FieldMap{
	Name: "foreign.dailyprice",
	Keys: map[Field]string{
		FieldDate:   "xymd",
		FieldOpen:   "open",
		FieldHigh:   "high",
		FieldLow:    "low",
		FieldClose:  "clos",
		FieldVolume: "tvol",
	},
	Required: barRequired,
}

// inquire-time-itemchartprice HHDFS76950200 output2 (KST columns)
var foreignMinuteBarFields = FieldMap{
	Name: "foreign.minute-chart",
	Keys: map[Field]string{
		FieldDate:      "kymd",
		FieldTime:      "khms",
		FieldLocalDate: "xymd", // 현지 일자, 다음 페이지 KEYB 구성용
		FieldLocalTime: "xhms",
		FieldOpen:      "open",
		FieldHigh:      "high",
		FieldLow:       "low",
		FieldClose:     "last",
		FieldVolume:    "evol",
	},
	Required: append([]Field{FieldTime, FieldLocalDate, FieldLocalTime}, barRequired...),
}

// inquire-ccnl HHDFS76200300 output1
var foreignTradeFields = FieldMap{
	Name: "foreign.inquire-ccnl",
	Keys: map[Field]string{
		FieldDate:       "xymd",
		FieldTime:       "khms",
		FieldPrice:      "last",
		FieldChange:     "diff",
		FieldChangeRate: "rate",
		FieldVolume:     "evol",
		FieldPower:      "vpow",
	},
	Required: append([]Field{FieldDate}, tradeRequired...),
}

// inquire-asking-price HHDFS76200100 output2 (levels beyond 1 only on real-time subscriptions)
var foreignLadder = ladderKeys{AskPrice: "pask", BidPrice: "pbid", AskQty: "vask", BidQty: "vbid", Depth: 10}

// allFieldMaps is checked once at client construction
var allFieldMaps = []FieldMap{
	domesticPriceFields,
	domesticVolumeRankFields,
	domesticFluctuationFields,
	domesticMarketCapFields,
	domesticDailyBarFields,
	domesticMinuteBarFields,
	domesticTradeFields,
	domesticOrderBookFields,
	foreignPriceFields,
	foreignDetailFields,
	foreignRankingFields,
	foreignDailyBarFields,
	foreignMinuteBarFields,
	foreignTradeFields,
}

// ValidateFieldMaps checks every field map declares its required keys
func ValidateFieldMaps() error {
	for _, m := range allFieldMaps {
		if err := m.validate(); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================
// Wire records and numeric parsing
// ============================================================

// record is one upstream object with every scalar rendered as text
type record map[string]string

// UnmarshalJSON accepts string, number and bool scalars; nested values are skipped
func (r *record) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	out := make(record, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			out[k] = t
		case json.Number:
			out[k] = t.String()
		case bool:
			out[k] = strconv.FormatBool(t)
		}
	}
	*r = out
	return nil
}

// records decodes either a JSON array of objects or a single object
type records []record

func (rs *records) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*rs = nil
		return nil
	}
	if trimmed[0] == '{' {
		var one record
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return err
		}
		*rs = records{one}
		return nil
	}
	var many []record
	if err := json.Unmarshal(trimmed, &many); err != nil {
		return err
	}
	*rs = many
	return nil
}

var numberCleaner = strings.NewReplacer(",", "", " ", "", "+", "")

// ParseNumber parses upstream numeric text.
// Thousands separators, spaces and '+' are stripped; empty or unparseable text is 0.
func ParseNumber(text string) float64 {
	v, _ := parseStrict(text)
	return v
}

// DeriveTurnover returns turnover when present, else price × volume as integer text.
// Falls back to "0" when either operand is missing or not numeric.
func DeriveTurnover(price, volume, turnover string) string {
	if strings.TrimSpace(turnover) != "" {
		return strings.TrimSpace(turnover)
	}

	p, okP := parseStrict(price)
	v, okV := parseStrict(volume)
	if !okP || !okV {
		return "0"
	}
	return strconv.FormatFloat(p*v, 'f', 0, 64)
}

func parseStrict(text string) (float64, bool) {
	cleaned := numberCleaner.Replace(strings.TrimSpace(text))
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	// ParseFloat accepts "NaN" and "Inf"; neither is a number on the wire
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
