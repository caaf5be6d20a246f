package stream

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxcvny/capstone/internal/external/kis"
)

func TestSubscriptionFor(t *testing.T) {
	tests := []struct {
		symbol string
		trID   string
		trKey  string
		market kis.Market
	}{
		{"005930", TrDomesticTick, "005930", kis.MarketDomestic},
		{"AAPL", TrForeignTick, "DNASAAPL", kis.MarketNASDAQ},
		{"12345", TrForeignTick, "DNAS12345", kis.MarketNASDAQ},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			sub := SubscriptionFor(tt.symbol, kis.MarketNASDAQ)
			assert.Equal(t, tt.trID, sub.TrID)
			assert.Equal(t, tt.trKey, sub.TrKey)
			assert.Equal(t, tt.market, sub.Market)
		})
	}
}

func TestControlMessageShape(t *testing.T) {
	msg := newControlMessage("key", trTypeSubscribe, SubscriptionFor("005930", kis.MarketNASDAQ))
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"header": {"approval_key": "key", "custtype": "P", "tr_type": "1", "content-type": "utf-8"},
		"body": {"input": {"tr_id": "H0STCNT0", "tr_key": "005930"}}
	}`, string(data))
}

func TestParseDataFrame(t *testing.T) {
	one := domesticRecord("005930", "093001", "70100", "600", "0.86", "1", "100", "1")
	two := domesticRecord("000660", "093002", "180000", "-500", "-0.28", "3", "300", "1")

	tests := []struct {
		name    string
		frame   string
		records int
		trID    string
		wantErr bool
	}{
		{name: "single", frame: "0|H0STCNT0|001|" + one, records: 1, trID: TrDomesticTick},
		{name: "two records", frame: "0|H0STCNT0|002|" + one + "^" + two, records: 2, trID: TrDomesticTick},
		{name: "unknown TR split evenly", frame: "0|XXXX0000|002|a^b^c^d", records: 2, trID: "XXXX0000"},
		{name: "unknown TR uneven", frame: "0|XXXX0000|002|a^b^c", wantErr: true},
		{name: "missing parts", frame: "0|H0STCNT0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := ParseDataFrame([]byte(tt.frame))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.trID, frame.TrID)
			assert.Len(t, frame.Records, tt.records)
		})
	}
}

func TestParseDataFrame_SecondRecordFields(t *testing.T) {
	one := domesticRecord("005930", "093001", "70100", "600", "0.86", "1", "100", "1")
	two := domesticRecord("000660", "093002", "180000", "-500", "-0.28", "3", "300", "1")

	frame, err := ParseDataFrame([]byte("0|H0STCNT0|002|" + one + "^" + two))
	require.NoError(t, err)

	tick, ok := DecodeDomesticTick(frame.Records[1], time.Now())
	require.True(t, ok)
	assert.Equal(t, "000660", tick.Code)
	assert.Equal(t, "180000", tick.Price)
	assert.Equal(t, "-0.28", tick.Rate)
}

func TestDecodeTicks_ShortRecords(t *testing.T) {
	_, ok := DecodeDomesticTick(strings.Split("005930^093001^70100", "^"), time.Now())
	assert.False(t, ok)

	_, ok = DecodeForeignTick(strings.Split("DNASAAPL^AAPL^4", "^"), 1350, time.Now())
	assert.False(t, ok)
}

func TestDecodeForeignTick_UsesReceiverTime(t *testing.T) {
	received := time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC) // 00:04:05 KST
	f := strings.Split(foreignRecord("TSLA", "10", "0.5", "5.26", "1", "2", ""), "^")

	tick, ok := DecodeForeignTick(f, 1000, received)
	require.True(t, ok)
	assert.Equal(t, "000405", tick.Time)
	assert.Equal(t, "10000.00", tick.Price)
	assert.Equal(t, "500.00", tick.Change)
	assert.Equal(t, "0.00", tick.Power)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a, b := newHandle("a"), newHandle("b")

	assert.True(t, r.Add("AAPL", a))
	assert.False(t, r.Add("AAPL", a))
	assert.False(t, r.Add("AAPL", b))
	assert.Len(t, r.Handles("AAPL"), 2)
	assert.Equal(t, 2, r.HandleCount())

	removed, emptied := r.Remove("AAPL", a)
	assert.True(t, removed)
	assert.False(t, emptied)

	removed, emptied = r.Remove("AAPL", a)
	assert.False(t, removed)
	assert.False(t, emptied)

	removed, emptied = r.Remove("AAPL", b)
	assert.True(t, removed)
	assert.True(t, emptied)
	assert.False(t, r.Has("AAPL"))
	assert.Empty(t, r.Symbols())
	assert.Equal(t, 0, r.Len())
}
