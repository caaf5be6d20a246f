package realtime

import "time"

// TickType is the record type pushed to stream subscribers
const TickType = "trade"

// Tick is one trade update delivered to subscribers of a symbol.
// Numeric fields keep wire text; foreign price and change are already KRW.
// ⭐ SSOT: 실시간 체결 데이터 구조
type Tick struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Name    string `json:"name,omitempty"`
	Time    string `json:"time"` // HHMMSS KST
	Price   string `json:"price"`
	Change  string `json:"change"`
	Rate    string `json:"rate"`
	Volume  string `json:"volume"`
	AcmlVol string `json:"acml_vol"`
	Power   string `json:"power"` // 체결강도

	Source     TickSource `json:"-"`
	ReceivedAt time.Time  `json:"-"`
}

// TickSource identifies where a tick came from
type TickSource string

const (
	SourceStream   TickSource = "KIS_WS"   // push feed
	SourceSnapshot TickSource = "KIS_REST" // one-shot quote on subscribe
)

// Priority returns the source rank (higher = better)
func (s TickSource) Priority() int {
	switch s {
	case SourceStream:
		return 2
	case SourceSnapshot:
		return 1
	default:
		return 0
	}
}
