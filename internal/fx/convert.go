package fx

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// 억원 단위
var eok = decimal.NewFromInt(100_000_000)

// ToKRW converts a USD amount to KRW, rounded to 2 decimals.
// NaN or infinite operands yield 0.
func ToKRW(value, rate float64) float64 {
	if !finite(value, rate) {
		return 0
	}
	return decimal.NewFromFloat(value).
		Mul(decimal.NewFromFloat(rate)).
		Round(2).
		InexactFloat64()
}

// ToEok converts a raw USD amount to 억원 (KRW / 1e8), rounded to 2 decimals
func ToEok(value, rate float64) float64 {
	if !finite(value, rate) {
		return 0
	}
	return decimal.NewFromFloat(value).
		Mul(decimal.NewFromFloat(rate)).
		Div(eok).
		Round(2).
		InexactFloat64()
}

// ConvertText converts numeric wire text (USD) to KRW text with the given decimals.
// Thousands separators and a leading '+' are tolerated; anything unparseable yields "0".
func ConvertText(text string, rate float64, places int32) string {
	d, ok := parseDecimal(text)
	if !ok || !finite(rate) {
		return "0"
	}
	return d.Mul(decimal.NewFromFloat(rate)).StringFixed(places)
}

// EokText converts a raw USD amount in wire text to 억원 text
func EokText(text string, rate float64) string {
	d, ok := parseDecimal(text)
	if !ok || !finite(rate) {
		return "0"
	}
	return d.Mul(decimal.NewFromFloat(rate)).Div(eok).StringFixed(0)
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func parseDecimal(text string) (decimal.Decimal, bool) {
	cleaned := strings.NewReplacer(",", "", " ", "", "+", "").Replace(strings.TrimSpace(text))
	if cleaned == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
