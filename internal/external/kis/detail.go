package kis

import (
	"context"
	"fmt"

	"github.com/zxcvny/capstone/internal/fx"
)

// GetDetail fetches the fundamentals view of one instrument.
// On failure the record is zero-filled except for Symbol and Market.
func (c *Client) GetDetail(ctx context.Context, symbol string, market Market) Detail {
	var (
		d   Detail
		err error
	)
	if market.IsDomestic() {
		d, err = c.domesticDetail(ctx, symbol)
	} else {
		d, err = c.foreignDetail(ctx, symbol, market)
	}
	if err != nil {
		c.logFailure(err, "detail", map[string]interface{}{
			"symbol": symbol,
			"market": market,
		})
		return Detail{Symbol: symbol, Market: market}
	}
	return d
}

func (c *Client) domesticDetail(ctx context.Context, symbol string) (Detail, error) {
	env, err := c.get(ctx, pathDomesticPrice, trDomesticPrice, domesticParams(symbol))
	if err != nil {
		return Detail{}, err
	}
	if len(env.Output) == 0 {
		return Detail{}, fmt.Errorf("empty detail output")
	}

	f, r := domesticPriceFields, env.Output[0]
	return Detail{
		Symbol:           symbol,
		Market:           MarketDomestic,
		Price:            f.Num(r, FieldPrice),
		Change:           f.Num(r, FieldChange),
		ChangeRate:       f.Num(r, FieldChangeRate),
		Open:             f.Num(r, FieldOpen),
		High:             f.Num(r, FieldHigh),
		Low:              f.Num(r, FieldLow),
		Volume:           f.Num(r, FieldVolume),
		MarketCap:        f.Num(r, FieldMarketCap), // hts_avls 는 이미 억원
		PER:              f.Num(r, FieldPER),
		PBR:              f.Num(r, FieldPBR),
		EPS:              f.Num(r, FieldEPS),
		BPS:              f.Num(r, FieldBPS),
		TurnoverVelocity: f.Num(r, FieldVelocity),
		High52W:          f.Num(r, FieldHigh52W),
		Low52W:           f.Num(r, FieldLow52W),
	}, nil
}

// foreignDetail converts USD figures to KRW and tomv to 억원.
// price-detail has no change columns, so change and change_rate are derived from base.
func (c *Client) foreignDetail(ctx context.Context, symbol string, market Market) (Detail, error) {
	env, err := c.get(ctx, pathForeignDetail, trForeignDetail, foreignParams(market, symbol))
	if err != nil {
		return Detail{}, err
	}
	if len(env.Output) == 0 {
		return Detail{}, fmt.Errorf("empty detail output")
	}

	f, r := foreignDetailFields, env.Output[0]
	rate := c.fxRate(ctx)

	last := f.Num(r, FieldPrice)
	base := f.Num(r, FieldPrevClose)
	change := 0.0
	if last != 0 && base != 0 {
		change = last - base
	}
	changeRate := ChangeRate(last, base)
	if f.Has(r, FieldChangeRate) {
		changeRate = f.Num(r, FieldChangeRate)
	}

	velocity := 0.0
	if shares := f.Num(r, FieldShares); shares > 0 {
		velocity = f.Num(r, FieldVolume) / shares * 100
	}

	return Detail{
		Symbol:           symbol,
		Market:           market,
		Price:            fx.ToKRW(last, rate),
		Change:           fx.ToKRW(change, rate),
		ChangeRate:       changeRate,
		Open:             fx.ToKRW(f.Num(r, FieldOpen), rate),
		High:             fx.ToKRW(f.Num(r, FieldHigh), rate),
		Low:              fx.ToKRW(f.Num(r, FieldLow), rate),
		Volume:           f.Num(r, FieldVolume),
		MarketCap:        fx.ToEok(f.Num(r, FieldMarketCap), rate),
		PER:              f.Num(r, FieldPER),
		PBR:              f.Num(r, FieldPBR),
		EPS:              fx.ToKRW(f.Num(r, FieldEPS), rate),
		BPS:              fx.ToKRW(f.Num(r, FieldBPS), rate),
		TurnoverVelocity: velocity,
		High52W:          fx.ToKRW(f.Num(r, FieldHigh52W), rate),
		Low52W:           fx.ToKRW(f.Num(r, FieldLow52W), rate),
	}, nil
}

// ChangeRate returns (last - base) / base * 100, 0 when either side is missing
func ChangeRate(last, base float64) float64 {
	if last == 0 || base == 0 {
		return 0
	}
	return (last - base) / base * 100
}
