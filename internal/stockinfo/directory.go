package stockinfo

import (
	"sort"
	"strings"
	"sync"
)

// Stock is one listed instrument of the symbol master
type Stock struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Market string `json:"market"` // KOSPI, KOSDAQ, ...
}

// DefaultSearchLimit caps Search when limit <= 0
const DefaultSearchLimit = 20

// Directory is the in-memory symbol → name table.
// Reads never fail: unknown symbols resolve to themselves.
// ⭐ SSOT: 종목명 조회는 이 디렉터리에서만
type Directory struct {
	mu     sync.RWMutex
	byCode map[string]Stock
	sorted []Stock // by code
}

// NewDirectory creates a directory holding stocks
func NewDirectory(stocks ...Stock) *Directory {
	d := &Directory{}
	d.Replace(stocks)
	return d
}

// Replace swaps the whole table atomically. Later duplicates of a code win.
func (d *Directory) Replace(stocks []Stock) {
	byCode := make(map[string]Stock, len(stocks))
	for _, s := range stocks {
		s.Code = strings.TrimSpace(s.Code)
		s.Name = strings.TrimSpace(s.Name)
		if s.Code == "" || s.Name == "" {
			continue
		}
		byCode[s.Code] = s
	}

	sorted := make([]Stock, 0, len(byCode))
	for _, s := range byCode {
		sorted = append(sorted, s)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })

	d.mu.Lock()
	d.byCode = byCode
	d.sorted = sorted
	d.mu.Unlock()
}

// Name returns the display name of symbol, or symbol itself when unknown
func (d *Directory) Name(symbol string) string {
	if d == nil {
		return symbol
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	if s, ok := d.byCode[symbol]; ok {
		return s.Name
	}
	return symbol
}

// Lookup returns the stock of code
func (d *Directory) Lookup(code string) (Stock, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.byCode[code]
	return s, ok
}

// Search matches keyword against names and codes (case-insensitive), in code order
func (d *Directory) Search(keyword string, limit int) []Stock {
	kw := strings.ToUpper(strings.TrimSpace(keyword))
	if kw == "" {
		return []Stock{}
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	results := make([]Stock, 0, limit)
	for _, s := range d.sorted {
		if strings.Contains(strings.ToUpper(s.Name), kw) || strings.Contains(s.Code, kw) {
			results = append(results, s)
			if len(results) == limit {
				break
			}
		}
	}
	return results
}

// Len returns the number of known stocks
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byCode)
}
