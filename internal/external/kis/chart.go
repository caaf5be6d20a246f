package kis

import (
	"context"
	"fmt"
	"time"

	"github.com/zxcvny/capstone/pkg/redis"
)

// Paging bounds
const (
	maxDailyPages          = 30
	maxDomesticMinutePages = 100
	maxForeignMinutePages  = 30
	maxEmptyMinuteDays     = 7 // 연휴 대비 빈 날짜 허용 횟수
	minuteLookback         = 365 * 24 * time.Hour
)

// lookback returns how far back a daily-family period is fetched
func lookback(p Period) (years int) {
	switch p.Kind {
	case PeriodWeekly:
		return 5
	case PeriodMonthly:
		return 10
	case PeriodYearly:
		return 20
	default:
		return 2
	}
}

// GetChart returns ascending OHLCV bars for symbol. Returns an empty slice on any failure.
// Intraday results are cached for a minute, the rest for ten.
func (c *Client) GetChart(ctx context.Context, symbol string, market Market, period Period) []Bar {
	key := redis.ChartKey(string(market), symbol, period.String())
	if c.cache != nil {
		var cached []Bar
		if ok, err := c.cache.Get(ctx, key, &cached); err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("chart cache read failed")
		} else if ok {
			return cached
		}
	}

	bars, err := c.fetchChart(ctx, symbol, market, period)
	if err != nil {
		c.logFailure(err, "chart", map[string]interface{}{
			"symbol": symbol,
			"market": market,
			"period": period.String(),
		})
		return []Bar{}
	}

	if c.cache != nil && len(bars) > 0 {
		ttl := redis.TTLChart
		if period.IsIntraday() {
			ttl = redis.TTLIntraday
		}
		if err := c.cache.Set(ctx, key, bars, ttl); err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("chart cache write failed")
		}
	}
	return bars
}

func (c *Client) fetchChart(ctx context.Context, symbol string, market Market, period Period) ([]Bar, error) {
	var (
		bars []Bar
		err  error
	)

	switch {
	case period.IsIntraday() && market.IsDomestic():
		bars, err = c.domesticMinuteBars(ctx, symbol, period.Kind == PeriodRealtime)
	case period.IsIntraday():
		bars, err = c.foreignMinuteBars(ctx, symbol, market, period.Kind == PeriodRealtime)
	case market.IsDomestic():
		bars, err = c.domesticDailyBars(ctx, symbol, period)
	default:
		bars, err = c.foreignDailyBars(ctx, symbol, market, period)
	}
	if err != nil {
		return nil, err
	}

	bars = NormalizeBars(bars)

	switch period.Kind {
	case PeriodRealtime:
		bars = FilterLatestSession(bars, market)
	case PeriodIntraday:
		bars = AggregateBars(bars, period.Minutes, market)
	case PeriodYearly:
		if !market.IsDomestic() {
			bars = AggregateYearly(bars)
		}
	}
	return bars, nil
}

// ============================================================
// Daily family
// ============================================================

func (c *Client) domesticDailyBars(ctx context.Context, symbol string, period Period) ([]Bar, error) {
	now := c.now().In(KST)
	start := now.AddDate(-lookback(period), 0, 0)
	end := now

	divCode := map[PeriodKind]string{
		PeriodDaily:   "D",
		PeriodWeekly:  "W",
		PeriodMonthly: "M",
		PeriodYearly:  "Y",
	}[period.Kind]

	var bars []Bar
	for page := 0; page < maxDailyPages && !end.Before(start); page++ {
		params := domesticParams(symbol)
		params.Set("FID_INPUT_DATE_1", start.Format("20060102"))
		params.Set("FID_INPUT_DATE_2", end.Format("20060102"))
		params.Set("FID_PERIOD_DIV_CODE", divCode)
		params.Set("FID_ORG_ADJ_PRC", "0")

		env, err := c.get(ctx, pathDomesticDailyChart, trDomesticDailyChart, params)
		if err != nil {
			if len(bars) > 0 {
				// 이미 받은 구간은 살린다
				c.logger.WithError(err).WithField("symbol", symbol).Warn("daily chart paging stopped early")
				break
			}
			return nil, err
		}

		pageBars := parseBars(domesticDailyBarFields, env.Output2, false)
		if len(pageBars) == 0 {
			break
		}
		bars = append(bars, pageBars...)

		oldest := oldestTime(pageBars)
		if !oldest.After(start) {
			break
		}
		end = oldest.AddDate(0, 0, -1)
	}
	return bars, nil
}

func (c *Client) foreignDailyBars(ctx context.Context, symbol string, market Market, period Period) ([]Bar, error) {
	// GUBN: 0 일, 1 주, 2 월 (년봉은 월봉을 합산)
	gubn := "0"
	switch period.Kind {
	case PeriodWeekly:
		gubn = "1"
	case PeriodMonthly, PeriodYearly:
		gubn = "2"
	}

	start := c.now().In(KST).AddDate(-lookback(period), 0, 0)
	bymd := ""

	var bars []Bar
	for page := 0; page < maxDailyPages; page++ {
		params := foreignParams(market, symbol)
		params.Set("GUBN", gubn)
		params.Set("BYMD", bymd)
		params.Set("MODP", "1")

		env, err := c.get(ctx, pathForeignDailyChart, trForeignDailyChart, params)
		if err != nil {
			if len(bars) > 0 {
				c.logger.WithError(err).WithField("symbol", symbol).Warn("daily chart paging stopped early")
				break
			}
			return nil, err
		}

		pageBars := parseBars(foreignDailyBarFields, env.Output2, false)
		if len(pageBars) == 0 {
			break
		}
		bars = append(bars, pageBars...)

		oldest := oldestTime(pageBars)
		if !oldest.After(start) {
			break
		}
		bymd = oldest.AddDate(0, 0, -1).Format("20060102")
	}
	return bars, nil
}

// ============================================================
// Minute bars
// ============================================================

// domesticMinuteBars pages FHKST03010230 backward one day at a time.
// Each call returns at most 120 bars ending at FID_INPUT_HOUR_1 on FID_INPUT_DATE_1.
func (c *Client) domesticMinuteBars(ctx context.Context, symbol string, realtime bool) ([]Bar, error) {
	now := c.now().In(KST)
	cutoff := now.Add(-minuteLookback)

	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, KST)
	hour := "153000"
	emptyDays := 0

	var (
		bars          []Bar
		sessionCutoff time.Time
	)
	for page := 0; page < maxDomesticMinutePages; page++ {
		params := domesticParams(symbol)
		params.Set("FID_INPUT_HOUR_1", hour)
		params.Set("FID_INPUT_DATE_1", day.Format("20060102"))
		params.Set("FID_PW_DATA_INCU_YN", "Y")
		params.Set("FID_FAKE_TICK_INCU_YN", "")

		env, err := c.get(ctx, pathDomesticMinuteChart, trDomesticMinuteChart, params)
		if err != nil {
			if len(bars) > 0 {
				c.logger.WithError(err).WithField("symbol", symbol).Warn("minute chart paging stopped early")
				break
			}
			return nil, err
		}

		pageBars := parseBars(domesticMinuteBarFields, env.Output2, true)
		if len(pageBars) == 0 {
			// 휴장일: 전 영업일 장 마감부터 다시
			emptyDays++
			if emptyDays > maxEmptyMinuteDays || (realtime && len(bars) > 0) {
				break
			}
			day = day.AddDate(0, 0, -1)
			hour = "153000"
			continue
		}
		emptyDays = 0

		if realtime && sessionCutoff.IsZero() {
			sessionCutoff = domesticSession.StartOf(newestTime(pageBars))
		}
		bars = append(bars, pageBars...)

		oldest := oldestTime(pageBars)
		if oldest.Before(cutoff) || (realtime && !oldest.After(sessionCutoff)) {
			break
		}

		oldestDay := time.Date(oldest.Year(), oldest.Month(), oldest.Day(), 0, 0, 0, 0, KST)
		if !oldest.After(oldestDay.Add(domesticSession.Start)) {
			if realtime {
				break
			}
			day = oldestDay.AddDate(0, 0, -1)
			hour = "153000"
			continue
		}
		day = oldestDay
		hour = oldest.Add(-time.Minute).Format("150405")
	}
	return bars, nil
}

// foreignMinuteBars pages HHDFS76950200 with NEXT/KEYB.
// KEYB is the local date+time of the oldest bar received so far.
func (c *Client) foreignMinuteBars(ctx context.Context, symbol string, market Market, realtime bool) ([]Bar, error) {
	cutoff := c.now().Add(-minuteLookback)
	next, keyb := "", ""

	var (
		bars          []Bar
		sessionCutoff time.Time
	)
	for page := 0; page < maxForeignMinutePages; page++ {
		params := foreignParams(market, symbol)
		params.Set("NMIN", "1")
		params.Set("PINC", "1")
		params.Set("NEXT", next)
		params.Set("NREC", "120")
		params.Set("FILL", "")
		params.Set("KEYB", keyb)

		env, err := c.get(ctx, pathForeignMinuteChart, trForeignMinuteChart, params)
		if err != nil {
			if len(bars) > 0 {
				c.logger.WithError(err).WithField("symbol", symbol).Warn("minute chart paging stopped early")
				break
			}
			return nil, err
		}

		pageBars := parseBars(foreignMinuteBarFields, env.Output2, true)
		if len(pageBars) == 0 {
			break
		}

		if realtime && sessionCutoff.IsZero() {
			sessionCutoff = foreignSession.StartOf(newestTime(pageBars))
		}
		bars = append(bars, pageBars...)

		oldest := oldestTime(pageBars)
		if oldest.Before(cutoff) || (realtime && !oldest.After(sessionCutoff)) {
			break
		}

		key := oldestLocalKey(env.Output2)
		if key == "" || key == keyb {
			break
		}
		next, keyb = "1", key
	}
	return bars, nil
}

// oldestLocalKey returns xymd+xhms of the oldest row in a foreign minute page
func oldestLocalKey(rows records) string {
	fields := foreignMinuteBarFields
	oldest := ""
	for _, r := range rows {
		k := fields.Text(r, FieldLocalDate) + fields.Text(r, FieldLocalTime)
		if len(k) != 14 {
			continue
		}
		if oldest == "" || k < oldest {
			oldest = k
		}
	}
	return oldest
}

// ============================================================
// Helpers
// ============================================================

// parseBars projects rows through fields, skipping rows with no valid date
func parseBars(fields FieldMap, rows records, withTime bool) []Bar {
	bars := make([]Bar, 0, len(rows))
	for _, r := range rows {
		t, err := parseBarTime(fields.Text(r, FieldDate), fields.Text(r, FieldTime), withTime)
		if err != nil {
			continue
		}
		bars = append(bars, Bar{
			Time:   t,
			Open:   fields.Num(r, FieldOpen),
			High:   fields.Num(r, FieldHigh),
			Low:    fields.Num(r, FieldLow),
			Close:  fields.Num(r, FieldClose),
			Volume: fields.Num(r, FieldVolume),
		})
	}
	return bars
}

func parseBarTime(date, clock string, withTime bool) (time.Time, error) {
	if !withTime {
		return time.ParseInLocation("20060102", date, KST)
	}
	if len(clock) == 4 {
		clock += "00"
	}
	t, err := time.ParseInLocation("20060102150405", date+clock, KST)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse bar time %q %q: %w", date, clock, err)
	}
	return t, nil
}

func oldestTime(bars []Bar) time.Time {
	oldest := bars[0].Time
	for _, b := range bars[1:] {
		if b.Time.Before(oldest) {
			oldest = b.Time
		}
	}
	return oldest
}

func newestTime(bars []Bar) time.Time {
	newest := bars[0].Time
	for _, b := range bars[1:] {
		if b.Time.After(newest) {
			newest = b.Time
		}
	}
	return newest
}
