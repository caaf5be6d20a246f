package kis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kst(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, KST)
}

func minuteBar(t time.Time, open, high, low, close, vol float64) Bar {
	return Bar{Time: t, Open: open, High: high, Low: low, Close: close, Volume: vol}
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in      string
		want    Period
		wantErr bool
	}{
		{"D", Period{Kind: PeriodDaily}, false},
		{"", Period{Kind: PeriodDaily}, false},
		{"week", Period{Kind: PeriodWeekly}, false},
		{"M", Period{Kind: PeriodMonthly}, false},
		{"y", Period{Kind: PeriodYearly}, false},
		{"realtime", Period{Kind: PeriodRealtime, Minutes: 1}, false},
		{"5", Period{Kind: PeriodIntraday, Minutes: 5}, false},
		{"30m", Period{Kind: PeriodIntraday, Minutes: 30}, false},
		{"7", Period{}, true},
		{"hourly", Period{}, true},
	}
	for _, tt := range tests {
		got, err := ParsePeriod(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	p, _ := ParsePeriod("15")
	assert.Equal(t, "15", p.String())
	assert.True(t, p.IsIntraday())
	assert.False(t, Period{Kind: PeriodWeekly}.IsIntraday())
}

func TestSession_StartOf(t *testing.T) {
	assert.Equal(t, kst(2024, 6, 14, 9, 0), domesticSession.StartOf(kst(2024, 6, 14, 3, 0)))
	assert.Equal(t, kst(2024, 6, 13, 23, 30), foreignSession.StartOf(kst(2024, 6, 14, 2, 15)))
	assert.Equal(t, kst(2024, 6, 14, 23, 30), foreignSession.StartOf(kst(2024, 6, 14, 23, 45)))

	assert.True(t, foreignSession.Contains(kst(2024, 6, 14, 6, 0)))
	assert.False(t, foreignSession.Contains(kst(2024, 6, 14, 6, 1)))
	assert.True(t, domesticSession.Contains(kst(2024, 6, 14, 15, 30)))
	assert.False(t, domesticSession.Contains(kst(2024, 6, 14, 8, 59)))
}

func TestAggregateBars_Domestic(t *testing.T) {
	var bars []Bar
	for i := 0; i < 6; i++ {
		p := float64(100 + i)
		bars = append(bars, minuteBar(kst(2024, 6, 14, 9, i), p, p+2, p-1, p+1, 10))
	}

	got := AggregateBars(bars, 5, MarketDomestic)
	require.Len(t, got, 2)

	assert.Equal(t, Bar{Time: kst(2024, 6, 14, 9, 0), Open: 100, High: 106, Low: 99, Close: 105, Volume: 50}, got[0])
	assert.Equal(t, Bar{Time: kst(2024, 6, 14, 9, 5), Open: 105, High: 107, Low: 104, Close: 106, Volume: 10}, got[1])
}

func TestAggregateBars_ForeignRollsOverMidnight(t *testing.T) {
	bars := []Bar{
		minuteBar(kst(2024, 6, 13, 23, 30), 10, 11, 9, 10, 1),
		minuteBar(kst(2024, 6, 13, 23, 59), 10, 12, 10, 11, 1),
		minuteBar(kst(2024, 6, 14, 0, 1), 11, 11, 8, 9, 1),
		minuteBar(kst(2024, 6, 14, 0, 30), 9, 9, 9, 9, 1),
	}

	got := AggregateBars(bars, 60, MarketNASDAQ)
	require.Len(t, got, 2)
	assert.Equal(t, kst(2024, 6, 13, 23, 30), got[0].Time)
	assert.Equal(t, 10.0, got[0].Open)
	assert.Equal(t, 12.0, got[0].High)
	assert.Equal(t, 8.0, got[0].Low)
	assert.Equal(t, 9.0, got[0].Close)
	assert.Equal(t, 3.0, got[0].Volume)
	assert.Equal(t, kst(2024, 6, 14, 0, 30), got[1].Time)
}

func TestAggregateBars_OneMinuteIsIdentity(t *testing.T) {
	bars := []Bar{minuteBar(kst(2024, 6, 14, 9, 0), 1, 1, 1, 1, 1)}
	assert.Equal(t, bars, AggregateBars(bars, 1, MarketDomestic))
}

func TestNormalizeBars(t *testing.T) {
	bars := []Bar{
		minuteBar(kst(2024, 6, 14, 9, 2), 3, 3, 3, 3, 1),
		minuteBar(kst(2024, 6, 14, 9, 0), 1, 1, 1, 1, 1),
		minuteBar(kst(2024, 6, 14, 9, 2), 4, 4, 4, 4, 2),
		minuteBar(kst(2024, 6, 14, 9, 1), 2, 2, 2, 2, 1),
	}

	got := NormalizeBars(bars)
	require.Len(t, got, 3)
	assert.Equal(t, kst(2024, 6, 14, 9, 0), got[0].Time)
	assert.Equal(t, kst(2024, 6, 14, 9, 1), got[1].Time)
	assert.Equal(t, 4.0, got[2].Close)
}

func TestAggregateYearly(t *testing.T) {
	bars := []Bar{
		minuteBar(kst(2023, 1, 1, 0, 0), 10, 15, 9, 12, 100),
		minuteBar(kst(2023, 12, 1, 0, 0), 12, 20, 11, 18, 50),
		minuteBar(kst(2024, 1, 1, 0, 0), 18, 19, 17, 17, 10),
	}

	got := AggregateYearly(bars)
	require.Len(t, got, 2)
	assert.Equal(t, Bar{Time: kst(2023, 1, 1, 0, 0), Open: 10, High: 20, Low: 9, Close: 18, Volume: 150}, got[0])
	assert.Equal(t, kst(2024, 1, 1, 0, 0), got[1].Time)
}

func TestFilterLatestSession(t *testing.T) {
	bars := []Bar{
		minuteBar(kst(2024, 6, 13, 15, 0), 1, 1, 1, 1, 1),
		minuteBar(kst(2024, 6, 14, 8, 30), 1, 1, 1, 1, 1),
		minuteBar(kst(2024, 6, 14, 9, 0), 1, 1, 1, 1, 1),
		minuteBar(kst(2024, 6, 14, 9, 1), 1, 1, 1, 1, 1),
	}

	got := FilterLatestSession(bars, MarketDomestic)
	require.Len(t, got, 2)
	assert.Equal(t, kst(2024, 6, 14, 9, 0), got[0].Time)

	assert.Empty(t, FilterLatestSession(nil, MarketDomestic))
}

func TestSessionSortKey(t *testing.T) {
	assert.Equal(t, -1, SessionSortKey("1234"))
	assert.Equal(t, -1, SessionSortKey("ab3456"))
	assert.Greater(t, SessionSortKey("001000"), SessionSortKey("235000"))
	assert.Greater(t, SessionSortKey("235000"), SessionSortKey("233000"))

	assert.True(t, InForeignSession("233000"))
	assert.True(t, InForeignSession("060000"))
	assert.False(t, InForeignSession("060001"))
	assert.False(t, InForeignSession("120000"))
	assert.False(t, InForeignSession(""))
}
