package kis

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/zxcvny/capstone/internal/fx"
)

// MaxRecentTrades caps GetRecentTrades
const MaxRecentTrades = 30

// GetOrderBook fetches the bid/ask ladder, best level first.
// Foreign prices are converted to KRW. On failure the ladder is empty.
func (c *Client) GetOrderBook(ctx context.Context, symbol string, market Market) OrderBook {
	book, err := c.fetchOrderBook(ctx, symbol, market)
	if err != nil {
		c.logFailure(err, "orderbook", map[string]interface{}{
			"symbol": symbol,
			"market": market,
		})
		return OrderBook{Symbol: symbol, Market: market, Asks: []OrderBookLevel{}, Bids: []OrderBookLevel{}}
	}
	return book
}

func (c *Client) fetchOrderBook(ctx context.Context, symbol string, market Market) (OrderBook, error) {
	book := OrderBook{Symbol: symbol, Market: market}

	if market.IsDomestic() {
		env, err := c.get(ctx, pathDomesticOrderBook, trDomesticOrderBook, domesticParams(symbol))
		if err != nil {
			return book, err
		}
		if len(env.Output1) == 0 {
			return book, fmt.Errorf("empty orderbook output")
		}
		r := env.Output1[0]
		book.Asks, book.Bids = readLadder(domesticLadder, r, 1)
		book.TotalAskQty = domesticOrderBookFields.Num(r, FieldTotalAsk)
		book.TotalBidQty = domesticOrderBookFields.Num(r, FieldTotalBid)
		return book, nil
	}

	params := foreignParams(market, symbol)
	env, err := c.get(ctx, pathForeignOrderBook, trForeignOrderBook, params)
	if err != nil {
		return book, err
	}
	rows := env.Output2
	if len(rows) == 0 {
		rows = env.Output1
	}
	if len(rows) == 0 {
		return book, fmt.Errorf("empty orderbook output")
	}

	book.Asks, book.Bids = readLadder(foreignLadder, rows[0], c.fxRate(ctx))
	// 해외 호가는 총잔량 필드가 없어 단계별 잔량을 합산
	for _, l := range book.Asks {
		book.TotalAskQty += l.Quantity
	}
	for _, l := range book.Bids {
		book.TotalBidQty += l.Quantity
	}
	return book, nil
}

// readLadder collects levels with a positive price, scaling prices by rate
func readLadder(keys ladderKeys, r record, rate float64) (asks, bids []OrderBookLevel) {
	asks = make([]OrderBookLevel, 0, keys.Depth)
	bids = make([]OrderBookLevel, 0, keys.Depth)
	for n := 1; n <= keys.Depth; n++ {
		ask, bid := keys.level(r, n)
		if ask.Price > 0 {
			ask.Price = fx.ToKRW(ask.Price, rate)
			asks = append(asks, ask)
		}
		if bid.Price > 0 {
			bid.Price = fx.ToKRW(bid.Price, rate)
			bids = append(bids, bid)
		}
	}
	return asks, bids
}

// GetRecentTrades returns up to MaxRecentTrades executions, newest first.
// Foreign trades are limited to the latest trading date and the regular session, prices in KRW.
func (c *Client) GetRecentTrades(ctx context.Context, symbol string, market Market) []Trade {
	var (
		trades []Trade
		err    error
	)
	if market.IsDomestic() {
		trades, err = c.domesticTrades(ctx, symbol)
	} else {
		trades, err = c.foreignTrades(ctx, symbol, market)
	}
	if err != nil {
		c.logFailure(err, "trades", map[string]interface{}{
			"symbol": symbol,
			"market": market,
		})
		return []Trade{}
	}
	return trades
}

func (c *Client) domesticTrades(ctx context.Context, symbol string) ([]Trade, error) {
	env, err := c.get(ctx, pathDomesticTrades, trDomesticTrades, domesticParams(symbol))
	if err != nil {
		return nil, err
	}

	f := domesticTradeFields
	trades := make([]Trade, 0, MaxRecentTrades)
	for _, r := range env.Output {
		if len(trades) == MaxRecentTrades {
			break
		}
		if !f.Has(r, FieldTime) {
			continue
		}
		trades = append(trades, Trade{
			Time:       f.Text(r, FieldTime),
			Price:      f.Num(r, FieldPrice),
			Change:     f.Num(r, FieldChange),
			ChangeRate: f.Num(r, FieldChangeRate),
			Volume:     f.Num(r, FieldVolume),
			Power:      f.Num(r, FieldPower),
		})
	}
	return trades, nil
}

func (c *Client) foreignTrades(ctx context.Context, symbol string, market Market) ([]Trade, error) {
	params := foreignParams(market, symbol)
	params.Set("KEYB", "")
	params.Set("TDAY", "0")

	env, err := c.get(ctx, pathForeignTrades, trForeignTrades, params)
	if err != nil {
		return nil, err
	}

	rows := env.Output1
	if len(rows) == 0 {
		rows = env.Output
	}

	f := foreignTradeFields
	latest := ""
	for _, r := range rows {
		if d := f.Text(r, FieldDate); d > latest {
			latest = d
		}
	}

	rate := c.fxRate(ctx)
	trades := make([]Trade, 0, len(rows))
	for _, r := range rows {
		date, clock := f.Text(r, FieldDate), f.Text(r, FieldTime)
		if date != latest || !InForeignSession(clock) {
			continue
		}
		trades = append(trades, Trade{
			Date:       date,
			Time:       clock,
			Price:      fx.ToKRW(f.Num(r, FieldPrice), rate),
			Change:     fx.ToKRW(f.Num(r, FieldChange), rate),
			ChangeRate: f.Num(r, FieldChangeRate),
			Volume:     f.Num(r, FieldVolume),
			Power:      f.Num(r, FieldPower),
		})
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return SessionSortKey(trades[i].Time) > SessionSortKey(trades[j].Time)
	})
	if len(trades) > MaxRecentTrades {
		trades = trades[:MaxRecentTrades]
	}
	return trades, nil
}

// SessionSortKey orders HHMMSS times of a session that crosses midnight.
// Times before 12:00 are shifted by a day so 00:10 sorts after 23:50. Unparseable input is -1.
func SessionSortKey(hhmmss string) int {
	if len(hhmmss) != 6 {
		return -1
	}
	h, errH := strconv.Atoi(hhmmss[0:2])
	m, errM := strconv.Atoi(hhmmss[2:4])
	s, errS := strconv.Atoi(hhmmss[4:6])
	if errH != nil || errM != nil || errS != nil {
		return -1
	}
	key := h*3600 + m*60 + s
	if h < 12 {
		key += 24 * 3600
	}
	return key
}

// InForeignSession reports whether a KST HHMMSS time lies within 23:30 ~ 06:00
func InForeignSession(hhmmss string) bool {
	key := SessionSortKey(hhmmss)
	if key < 0 {
		return false
	}
	start := int(foreignSession.Start.Seconds())
	return key >= start && key <= start+int(foreignSession.Duration.Seconds())
}
