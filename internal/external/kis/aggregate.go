package kis

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ============================================================
// Sessions
// ============================================================

// Session is a market's regular trading window in KST
type Session struct {
	Start    time.Duration // offset from midnight KST
	Duration time.Duration
}

var (
	// 09:00 ~ 15:30
	domesticSession = Session{Start: 9 * time.Hour, Duration: 6*time.Hour + 30*time.Minute}
	// 23:30 ~ 익일 06:00 (서머타임 미적용 기준)
	foreignSession = Session{Start: 23*time.Hour + 30*time.Minute, Duration: 6*time.Hour + 30*time.Minute}
)

// SessionFor returns the regular session of market
func SessionFor(market Market) Session {
	if market.IsDomestic() {
		return domesticSession
	}
	return foreignSession
}

// StartOf returns the start of the session t belongs to.
// For a session that crosses midnight, times before noon belong to the previous day's session.
func (s Session) StartOf(t time.Time) time.Time {
	t = t.In(KST)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, KST)
	if s.Start+s.Duration > 24*time.Hour && t.Hour() < 12 {
		day = day.AddDate(0, 0, -1)
	}
	return day.Add(s.Start)
}

// Contains reports whether t falls inside the regular session (end inclusive)
func (s Session) Contains(t time.Time) bool {
	start := s.StartOf(t)
	return !t.Before(start) && !t.After(start.Add(s.Duration))
}

// ============================================================
// Periods
// ============================================================

// PeriodKind groups chart periods by how they are fetched
type PeriodKind int

const (
	PeriodDaily PeriodKind = iota
	PeriodWeekly
	PeriodMonthly
	PeriodYearly
	PeriodIntraday
	PeriodRealtime
)

// Period is a parsed chart period
type Period struct {
	Kind    PeriodKind
	Minutes int // bucket size for intraday; 1 for realtime
}

var allowedMinutes = map[int]bool{1: true, 3: true, 5: true, 10: true, 15: true, 30: true, 60: true}

// ParsePeriod accepts D, W, M, Y (or day/week/month/year), realtime, or a minute bucket size
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "d", "day", "":
		return Period{Kind: PeriodDaily}, nil
	case "w", "week":
		return Period{Kind: PeriodWeekly}, nil
	case "m", "month":
		return Period{Kind: PeriodMonthly}, nil
	case "y", "year":
		return Period{Kind: PeriodYearly}, nil
	case "realtime":
		return Period{Kind: PeriodRealtime, Minutes: 1}, nil
	}

	n, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(s), "m"))
	if err != nil || !allowedMinutes[n] {
		return Period{}, fmt.Errorf("invalid chart period %q", s)
	}
	return Period{Kind: PeriodIntraday, Minutes: n}, nil
}

// IsIntraday reports whether the period is built from minute bars
func (p Period) IsIntraday() bool {
	return p.Kind == PeriodIntraday || p.Kind == PeriodRealtime
}

// String is the canonical form used in cache keys
func (p Period) String() string {
	switch p.Kind {
	case PeriodWeekly:
		return "W"
	case PeriodMonthly:
		return "M"
	case PeriodYearly:
		return "Y"
	case PeriodIntraday:
		return strconv.Itoa(p.Minutes)
	case PeriodRealtime:
		return "realtime"
	default:
		return "D"
	}
}

// ============================================================
// Bar processing
// ============================================================

// NormalizeBars deduplicates by time (the later occurrence wins) and sorts ascending
func NormalizeBars(bars []Bar) []Bar {
	byTime := make(map[int64]int, len(bars))
	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		key := b.Time.UnixNano()
		if i, ok := byTime[key]; ok {
			out[i] = b
			continue
		}
		byTime[key] = len(out)
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// AggregateBars merges ascending 1-minute bars into session-aligned buckets of size minutes.
// Bucket boundaries are offsets from the session start, not wall-clock multiples.
func AggregateBars(bars []Bar, minutes int, market Market) []Bar {
	if minutes <= 1 || len(bars) == 0 {
		return bars
	}

	session := SessionFor(market)
	size := time.Duration(minutes) * time.Minute

	out := make([]Bar, 0, len(bars)/minutes+1)
	var current *Bar
	for _, b := range bars {
		start := session.StartOf(b.Time)
		offset := b.Time.Sub(start)
		idx := offset / size
		if offset < 0 && offset%size != 0 {
			idx--
		}
		bucket := start.Add(idx * size)

		if current != nil && current.Time.Equal(bucket) {
			if b.High > current.High {
				current.High = b.High
			}
			if b.Low < current.Low {
				current.Low = b.Low
			}
			current.Close = b.Close
			current.Volume += b.Volume
			continue
		}

		out = append(out, Bar{
			Time:   bucket,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
		current = &out[len(out)-1]
	}
	return out
}

// AggregateYearly merges ascending monthly (or daily) bars into calendar-year bars
func AggregateYearly(bars []Bar) []Bar {
	out := make([]Bar, 0, len(bars)/12+1)
	for _, b := range bars {
		year := time.Date(b.Time.In(KST).Year(), 1, 1, 0, 0, 0, 0, KST)
		if n := len(out); n > 0 && out[n-1].Time.Equal(year) {
			last := &out[n-1]
			if b.High > last.High {
				last.High = b.High
			}
			if b.Low < last.Low {
				last.Low = b.Low
			}
			last.Close = b.Close
			last.Volume += b.Volume
			continue
		}
		b.Time = year
		out = append(out, b)
	}
	return out
}

// FilterLatestSession keeps only bars of the newest session that fall inside regular hours
func FilterLatestSession(bars []Bar, market Market) []Bar {
	if len(bars) == 0 {
		return bars
	}

	session := SessionFor(market)
	latest := session.StartOf(bars[len(bars)-1].Time)

	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if session.StartOf(b.Time).Equal(latest) && session.Contains(b.Time) {
			out = append(out, b)
		}
	}
	return out
}
