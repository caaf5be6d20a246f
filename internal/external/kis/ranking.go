package kis

import (
	"context"
	"fmt"
	"net/url"

	"github.com/zxcvny/capstone/internal/fx"
)

// GetRanking fetches one market's ranking (at most MaxRankingEntries rows).
// Domestic rows carry the upstream order; foreign price/change/amount are KRW and market cap is 억원.
// Returns an empty slice on any failure.
func (c *Client) GetRanking(ctx context.Context, rankType RankType, market Market) []RankingEntry {
	var (
		entries []RankingEntry
		err     error
	)

	if market.IsDomestic() {
		entries, err = c.domesticRanking(ctx, rankType.Normalize())
	} else {
		// 해외 랭킹은 cap 대신 market_cap 키를 사용
		entries, err = c.foreignRanking(ctx, rankType.Normalize(), market)
	}
	if err != nil {
		c.logFailure(err, "ranking", map[string]interface{}{
			"rank_type": rankType,
			"market":    market,
		})
		return []RankingEntry{}
	}
	return entries
}

func (c *Client) domesticRanking(ctx context.Context, rankType RankType) ([]RankingEntry, error) {
	var (
		path, trID string
		fields     FieldMap
		params     = url.Values{}
	)

	params.Set("FID_COND_MRKT_DIV_CODE", "J")
	params.Set("FID_INPUT_ISCD", "0000")
	params.Set("FID_DIV_CLS_CODE", "0")
	params.Set("FID_INPUT_PRICE_1", "")
	params.Set("FID_INPUT_PRICE_2", "")
	params.Set("FID_VOL_CNT", "")

	switch rankType {
	case RankVolume, RankAmount:
		path, trID, fields = pathDomesticVolumeRank, trDomesticVolumeRank, domesticVolumeRankFields
		params.Set("FID_COND_SCR_DIV_CODE", "20171")
		params.Set("FID_TRGT_CLS_CODE", "111111111")
		params.Set("FID_TRGT_EXLS_CLS_CODE", "0000000000")
		params.Set("FID_INPUT_DATE_1", "")
		// 소속 구분: 0 평균거래량, 3 거래금액순
		if rankType == RankAmount {
			params.Set("FID_BLNG_CLS_CODE", "3")
		} else {
			params.Set("FID_BLNG_CLS_CODE", "0")
		}

	case RankRise, RankFall:
		path, trID, fields = pathDomesticFluctuation, trDomesticFluctuation, domesticFluctuationFields
		params.Set("FID_COND_SCR_DIV_CODE", "20170")
		params.Set("FID_INPUT_CNT_1", "0")
		params.Set("FID_PRC_CLS_CODE", "1")
		params.Set("FID_TRGT_CLS_CODE", "0")
		params.Set("FID_TRGT_EXLS_CLS_CODE", "0")
		params.Set("FID_RSFL_RATE1", "")
		params.Set("FID_RSFL_RATE2", "")
		// 순위 정렬: 0 상승률순, 1 하락률순
		if rankType == RankFall {
			params.Set("FID_RANK_SORT_CLS_CODE", "1")
		} else {
			params.Set("FID_RANK_SORT_CLS_CODE", "0")
		}

	case RankMarketCap:
		path, trID, fields = pathDomesticMarketCap, trDomesticMarketCap, domesticMarketCapFields
		params.Set("FID_COND_SCR_DIV_CODE", "20174")
		params.Set("FID_TRGT_CLS_CODE", "0")
		params.Set("FID_TRGT_EXLS_CLS_CODE", "0")

	default:
		return nil, fmt.Errorf("unsupported rank type %q", rankType)
	}

	env, err := c.get(ctx, path, trID, params)
	if err != nil {
		return nil, err
	}

	entries := make([]RankingEntry, 0, MaxRankingEntries)
	for i, r := range env.Output {
		if len(entries) == MaxRankingEntries {
			break
		}
		price := fields.Text(r, FieldPrice)
		volume := fields.Text(r, FieldVolume)
		entries = append(entries, RankingEntry{
			Rank:       rankOf(fields, r, i),
			Code:       fields.Text(r, FieldSymbol),
			Name:       fields.Text(r, FieldName),
			Market:     MarketDomestic,
			Price:      price,
			Change:     fields.Text(r, FieldChange),
			ChangeRate: fields.Text(r, FieldChangeRate),
			Volume:     volume,
			Amount:     DeriveTurnover(price, volume, fields.Text(r, FieldTurnover)),
			MarketCap:  fields.Text(r, FieldMarketCap),
		})
	}
	return entries, nil
}

func (c *Client) foreignRanking(ctx context.Context, rankType RankType, market Market) ([]RankingEntry, error) {
	params := url.Values{}
	params.Set("AUTH", "")
	params.Set("EXCD", string(market))
	params.Set("KEYB", "")
	params.Set("NDAY", "0")
	params.Set("VOL_RANG", "0")

	var path, trID string
	switch rankType {
	case RankVolume:
		path, trID = pathForeignRankVolume, trForeignRankVolume
		params.Set("PRC1", "")
		params.Set("PRC2", "")
	case RankAmount:
		path, trID = pathForeignRankAmount, trForeignRankAmount
		params.Set("PRC1", "")
		params.Set("PRC2", "")
	case RankMarketCap:
		path, trID = pathForeignRankCap, trForeignRankCap
	case RankRise, RankFall:
		path, trID = pathForeignRankUpDown, trForeignRankUpDown
		// GUBN: 1 상승율, 0 하락율
		if rankType == RankFall {
			params.Set("GUBN", "0")
		} else {
			params.Set("GUBN", "1")
		}
	default:
		return nil, fmt.Errorf("unsupported rank type %q", rankType)
	}

	env, err := c.get(ctx, path, trID, params)
	if err != nil {
		return nil, err
	}

	fxRate := c.fxRate(ctx)
	fields := foreignRankingFields

	entries := make([]RankingEntry, 0, MaxRankingEntries)
	for i, r := range env.Output2 {
		if len(entries) == MaxRankingEntries {
			break
		}
		price := fields.Text(r, FieldPrice)
		volume := fields.Text(r, FieldVolume)
		amountUSD := DeriveTurnover(price, volume, fields.Text(r, FieldTurnover))

		entry := RankingEntry{
			Rank:       rankOf(fields, r, i),
			Code:       fields.Text(r, FieldSymbol),
			Name:       fields.Text(r, FieldName),
			Market:     market,
			Price:      fx.ConvertText(price, fxRate, 2),
			Change:     fx.ConvertText(fields.Text(r, FieldChange), fxRate, 2),
			ChangeRate: fields.Text(r, FieldChangeRate),
			Volume:     volume,
			Amount:     fx.ConvertText(amountUSD, fxRate, 0),
		}
		if fields.Has(r, FieldMarketCap) {
			entry.MarketCap = fx.EokText(fields.Text(r, FieldMarketCap), fxRate)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func rankOf(fields FieldMap, r record, index int) int {
	if n := int(fields.Num(r, FieldRank)); n > 0 {
		return n
	}
	return index + 1
}
