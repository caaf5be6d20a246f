package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/zxcvny/capstone/internal/external/kis"
)

// Push-feed TR IDs
const (
	TrDomesticTick = "H0STCNT0" // 국내주식 실시간 체결가
	TrForeignTick  = "HDFSCNT0" // 해외주식 실시간 지연 체결가
	TrPingPong     = "PINGPONG"
)

// Record widths of each data TR (fields per record)
const (
	domesticTickWidth = 46
	foreignTickWidth  = 26
)

// tr_type values
const (
	trTypeSubscribe   = "1"
	trTypeUnsubscribe = "2"
)

// controlMessage is the JSON subscribe/unsubscribe request
type controlMessage struct {
	Header controlHeader `json:"header"`
	Body   controlBody   `json:"body"`
}

type controlHeader struct {
	ApprovalKey string `json:"approval_key"`
	Custtype    string `json:"custtype"`
	TrType      string `json:"tr_type"`
	ContentType string `json:"content-type"`
}

type controlBody struct {
	Input controlInput `json:"input"`
}

type controlInput struct {
	TrID  string `json:"tr_id"`
	TrKey string `json:"tr_key"`
}

// Subscription is the upstream identity of a symbol
type Subscription struct {
	Symbol string
	Market kis.Market
	TrID   string
	TrKey  string
}

// SubscriptionFor selects the TR by symbol shape: six-digit codes are domestic,
// everything else is a foreign ticker on the given exchange ("D"+exchange+symbol).
func SubscriptionFor(symbol string, foreign kis.Market) Subscription {
	market := kis.InferMarket(symbol, foreign)
	if market.IsDomestic() {
		return Subscription{Symbol: symbol, Market: market, TrID: TrDomesticTick, TrKey: symbol}
	}
	return Subscription{Symbol: symbol, Market: market, TrID: TrForeignTick, TrKey: "D" + string(market) + symbol}
}

func newControlMessage(approvalKey, trType string, sub Subscription) controlMessage {
	return controlMessage{
		Header: controlHeader{
			ApprovalKey: approvalKey,
			Custtype:    "P",
			TrType:      trType,
			ContentType: "utf-8",
		},
		Body: controlBody{Input: controlInput{TrID: sub.TrID, TrKey: sub.TrKey}},
	}
}

// controlReply is a JSON frame from upstream (ack, error, PINGPONG)
type controlReply struct {
	Header struct {
		TrID  string `json:"tr_id"`
		TrKey string `json:"tr_key"`
	} `json:"header"`
	Body struct {
		RtCd  string `json:"rt_cd"`
		MsgCd string `json:"msg_cd"`
		Msg1  string `json:"msg1"`
	} `json:"body"`
}

// isControlFrame reports whether data is a JSON control frame
func isControlFrame(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// DataFrame is a decoded "flag|tr_id|count|payload" push frame
type DataFrame struct {
	Encrypted bool
	TrID      string
	Records   [][]string
}

// ParseDataFrame splits a push frame into its records.
// When count > 1 the caret payload is cut into fixed-width records of the TR's width.
func ParseDataFrame(data []byte) (DataFrame, error) {
	parts := strings.SplitN(string(data), "|", 4)
	if len(parts) < 4 {
		return DataFrame{}, fmt.Errorf("malformed frame: %d parts", len(parts))
	}

	frame := DataFrame{Encrypted: parts[0] == "1", TrID: parts[1]}
	fields := strings.Split(parts[3], "^")

	count, err := strconv.Atoi(strings.TrimLeft(parts[2], "0"))
	if err != nil || count <= 1 {
		frame.Records = [][]string{fields}
		return frame, nil
	}

	width := recordWidth(frame.TrID)
	if width == 0 {
		if len(fields)%count != 0 {
			return DataFrame{}, fmt.Errorf("frame %s: %d fields not divisible into %d records", frame.TrID, len(fields), count)
		}
		width = len(fields) / count
	}

	for i := 0; i < count; i++ {
		start, end := i*width, (i+1)*width
		if end > len(fields) {
			// 마지막 레코드가 잘린 경우 남은 필드만 사용
			if start < len(fields) {
				frame.Records = append(frame.Records, fields[start:])
			}
			break
		}
		frame.Records = append(frame.Records, fields[start:end])
	}
	return frame, nil
}

func recordWidth(trID string) int {
	switch trID {
	case TrDomesticTick:
		return domesticTickWidth
	case TrForeignTick:
		return foreignTickWidth
	default:
		return 0
	}
}

func decodeControl(data []byte) (controlReply, error) {
	var reply controlReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return reply, fmt.Errorf("decode control frame: %w", err)
	}
	return reply, nil
}
