package stream

import (
	"time"

	"github.com/zxcvny/capstone/internal/external/kis"
	"github.com/zxcvny/capstone/internal/fx"
	"github.com/zxcvny/capstone/internal/realtime"
)

// H0STCNT0 field positions
const (
	domCode    = 0  // MKSC_SHRN_ISCD
	domTime    = 1  // STCK_CNTG_HOUR
	domPrice   = 2  // STCK_PRPR
	domChange  = 4  // PRDY_VRSS
	domRate    = 5  // PRDY_CTRT
	domVolume  = 12 // CNTG_VOL
	domAcmlVol = 13 // ACML_VOL
	domPower   = 18 // CTTR
)

// HDFSCNT0 field positions
const (
	forSymbol  = 1  // SYMB
	forPrice   = 11 // LAST
	forChange  = 13 // DIFF
	forRate    = 14 // RATE
	forVolume  = 19 // EVOL
	forAcmlVol = 20 // TVOL
	forPower   = 24 // STRN
)

// DecodeDomesticTick maps one H0STCNT0 record. ok is false when the record is too short.
func DecodeDomesticTick(f []string, receivedAt time.Time) (realtime.Tick, bool) {
	if len(f) <= domAcmlVol || f[domCode] == "" {
		return realtime.Tick{}, false
	}
	return realtime.Tick{
		Type:       realtime.TickType,
		Code:       f[domCode],
		Time:       f[domTime],
		Price:      f[domPrice],
		Change:     f[domChange],
		Rate:       f[domRate],
		Volume:     f[domVolume],
		AcmlVol:    f[domAcmlVol],
		Power:      field(f, domPower, "0.00"),
		Source:     realtime.SourceStream,
		ReceivedAt: receivedAt,
	}, true
}

// DecodeForeignTick maps one HDFSCNT0 record.
// The local exchange time is replaced by receivedAt in KST; price and change are converted to KRW.
func DecodeForeignTick(f []string, rate float64, receivedAt time.Time) (realtime.Tick, bool) {
	if len(f) <= forAcmlVol || f[forSymbol] == "" {
		return realtime.Tick{}, false
	}
	return realtime.Tick{
		Type:       realtime.TickType,
		Code:       f[forSymbol],
		Time:       receivedAt.In(kis.KST).Format("150405"),
		Price:      fx.ConvertText(f[forPrice], rate, 2),
		Change:     fx.ConvertText(f[forChange], rate, 2),
		Rate:       f[forRate],
		Volume:     f[forVolume],
		AcmlVol:    f[forAcmlVol],
		Power:      field(f, forPower, "0.00"),
		Source:     realtime.SourceStream,
		ReceivedAt: receivedAt,
	}, true
}

func field(f []string, i int, fallback string) string {
	if i < len(f) && f[i] != "" {
		return f[i]
	}
	return fallback
}
