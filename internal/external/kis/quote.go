package kis

import (
	"context"
	"fmt"
)

// GetQuote fetches a single-instrument quote. Returns nil on any failure.
// Foreign quotes are left in USD.
func (c *Client) GetQuote(ctx context.Context, symbol string, market Market) *Quote {
	q, err := c.fetchQuote(ctx, symbol, market)
	if err != nil {
		c.logFailure(err, "quote", map[string]interface{}{
			"symbol": symbol,
			"market": market,
		})
		return nil
	}
	return q
}

func (c *Client) fetchQuote(ctx context.Context, symbol string, market Market) (*Quote, error) {
	var (
		env    *envelope
		fields FieldMap
		err    error
	)

	if market.IsDomestic() {
		fields = domesticPriceFields
		env, err = c.get(ctx, pathDomesticPrice, trDomesticPrice, domesticParams(symbol))
	} else {
		fields = foreignPriceFields
		env, err = c.get(ctx, pathForeignPrice, trForeignPrice, foreignParams(market, symbol))
	}
	if err != nil {
		return nil, err
	}
	if len(env.Output) == 0 {
		return nil, fmt.Errorf("empty quote output")
	}

	r := env.Output[0]
	if !fields.Has(r, FieldPrice) {
		// 해외 시세는 장 마감/휴장 시 last가 빈 문자열로 옴
		return nil, fmt.Errorf("quote has no price")
	}

	q := &Quote{
		Symbol:     symbol,
		Market:     market,
		Price:      fields.Num(r, FieldPrice),
		Change:     fields.Num(r, FieldChange),
		ChangeRate: fields.Num(r, FieldChangeRate),
		Volume:     fields.Num(r, FieldVolume),
		PrevClose:  fields.Num(r, FieldPrevClose),
		Currency:   market.Currency(),
		Timestamp:  c.now(),
	}
	q.Turnover = ParseNumber(DeriveTurnover(fields.Text(r, FieldPrice), fields.Text(r, FieldVolume), fields.Text(r, FieldTurnover)))

	return q, nil
}
