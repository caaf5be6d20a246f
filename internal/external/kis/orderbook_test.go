package kis

import (
	"context"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrderBook_Domestic(t *testing.T) {
	fake, srv := newFakeKIS(t)
	fake.handle(pathDomesticOrderBook, func(url.Values) interface{} {
		return okEnvelope(map[string]interface{}{
			"output1": map[string]string{
				"askp1": "72400", "askp_rsqn1": "100",
				"askp2": "72500", "askp_rsqn2": "50",
				"bidp1": "72300", "bidp_rsqn1": "200",
				"askp3": "0", "bidp2": "",
				"total_askp_rsqn": "150", "total_bidp_rsqn": "200",
			},
			"output2": map[string]string{"stck_prpr": "72300"},
		})
	})
	c := newTestClient(t, srv.URL)

	book := c.GetOrderBook(context.Background(), "005930", MarketDomestic)
	assert.Equal(t, []OrderBookLevel{{Price: 72400, Quantity: 100}, {Price: 72500, Quantity: 50}}, book.Asks)
	assert.Equal(t, []OrderBookLevel{{Price: 72300, Quantity: 200}}, book.Bids)
	assert.Equal(t, 150.0, book.TotalAskQty)
	assert.Equal(t, 200.0, book.TotalBidQty)
}

func TestGetOrderBook_ForeignInKRW(t *testing.T) {
	fake, srv := newFakeKIS(t)
	fake.handle(pathForeignOrderBook, func(url.Values) interface{} {
		return okEnvelope(map[string]interface{}{
			"output1": map[string]string{"rsym": "DNASAAPL"},
			"output2": map[string]string{"pask1": "200", "vask1": "5", "pbid1": "199.5", "vbid1": "7"},
		})
	})
	c := newTestClient(t, srv.URL)

	book := c.GetOrderBook(context.Background(), "AAPL", MarketNASDAQ)
	assert.Equal(t, []OrderBookLevel{{Price: 270000, Quantity: 5}}, book.Asks)
	assert.Equal(t, []OrderBookLevel{{Price: 269325, Quantity: 7}}, book.Bids)
	assert.Equal(t, 5.0, book.TotalAskQty)
	assert.Equal(t, 7.0, book.TotalBidQty)
}

func TestGetOrderBook_FailureHasEmptyLadders(t *testing.T) {
	_, srv := newFakeKIS(t)
	c := newTestClient(t, srv.URL)

	book := c.GetOrderBook(context.Background(), "005930", MarketDomestic)
	assert.Equal(t, "005930", book.Symbol)
	assert.NotNil(t, book.Asks)
	assert.Empty(t, book.Asks)
	assert.Empty(t, book.Bids)
}

func TestGetRecentTrades_DomesticCapped(t *testing.T) {
	fake, srv := newFakeKIS(t)
	rows := make([]map[string]string, 0, 40)
	for i := 0; i < 40; i++ {
		rows = append(rows, map[string]string{
			"stck_cntg_hour": fmt.Sprintf("1530%02d", 59-i), "stck_prpr": "72300", "prdy_vrss": "100",
			"prdy_ctrt": "0.14", "cntg_vol": "3", "tday_rltv": "101.5",
		})
	}
	fake.handle(pathDomesticTrades, func(url.Values) interface{} {
		return okEnvelope(map[string]interface{}{"output": rows})
	})
	c := newTestClient(t, srv.URL)

	trades := c.GetRecentTrades(context.Background(), "005930", MarketDomestic)
	require.Len(t, trades, MaxRecentTrades)
	assert.Equal(t, "153059", trades[0].Time)
	assert.Equal(t, 101.5, trades[0].Power)
}

func TestGetRecentTrades_ForeignLatestSessionNewestFirst(t *testing.T) {
	fake, srv := newFakeKIS(t)
	trade := func(xymd, khms, last string) map[string]string {
		return map[string]string{"xymd": xymd, "khms": khms, "last": last, "diff": "1", "rate": "0.5", "evol": "2", "vpow": "98.1"}
	}
	fake.handle(pathForeignTrades, func(q url.Values) interface{} {
		assert.Equal(t, "0", q.Get("TDAY"))
		return okEnvelope(map[string]interface{}{"output1": []map[string]string{
			trade("20240613", "233500", "200"),
			trade("20240613", "003000", "201"),
			trade("20240613", "120000", "202"), // 장외
			trade("20240612", "235900", "199"), // 이전 거래일
		}})
	})
	c := newTestClient(t, srv.URL)

	trades := c.GetRecentTrades(context.Background(), "AAPL", MarketNASDAQ)
	require.Len(t, trades, 2)
	assert.Equal(t, "003000", trades[0].Time)
	assert.Equal(t, 271350.0, trades[0].Price)
	assert.Equal(t, 1350.0, trades[0].Change)
	assert.Equal(t, "233500", trades[1].Time)
}

func TestGetRecentTrades_FailureIsEmpty(t *testing.T) {
	_, srv := newFakeKIS(t)
	c := newTestClient(t, srv.URL)

	trades := c.GetRecentTrades(context.Background(), "AAPL", MarketNASDAQ)
	assert.NotNil(t, trades)
	assert.Empty(t, trades)
}
