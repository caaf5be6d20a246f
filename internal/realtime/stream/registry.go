package stream

import (
	"sort"
	"sync"
)

// Handle is a downstream connection able to receive tick payloads.
// Implementations must be comparable (pointer receivers).
type Handle interface {
	ID() string
	Send(payload []byte) error
}

// Registry maps symbols to their live handles.
// A symbol is present only while it has at least one handle.
// ⭐ SSOT: 구독자 목록은 이 레지스트리에서만
type Registry struct {
	mu   sync.RWMutex
	subs map[string]map[Handle]struct{}
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]map[Handle]struct{})}
}

// Add registers h under symbol. first reports whether symbol had no handles before.
// Adding an existing handle is a no-op.
func (r *Registry) Add(symbol string, h Handle) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[symbol]
	if !ok {
		set = make(map[Handle]struct{})
		r.subs[symbol] = set
	}
	set[h] = struct{}{}
	return !ok
}

// Remove unregisters h from symbol. emptied reports whether symbol was dropped.
func (r *Registry) Remove(symbol string, h Handle) (removed, emptied bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[symbol]
	if !ok {
		return false, false
	}
	if _, ok := set[h]; !ok {
		return false, false
	}
	delete(set, h)
	if len(set) == 0 {
		delete(r.subs, symbol)
		return true, true
	}
	return true, false
}

// Handles returns a copy of symbol's handles
func (r *Registry) Handles(symbol string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.subs[symbol]
	out := make([]Handle, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	return out
}

// Symbols returns every registered symbol, sorted
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.subs))
	for s := range r.subs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Has reports whether symbol has any handle
func (r *Registry) Has(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[symbol]
	return ok
}

// Contains reports whether h is registered under symbol
func (r *Registry) Contains(symbol string, h Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[symbol][h]
	return ok
}

// Len returns the number of symbols
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// HandleCount returns the number of (symbol, handle) registrations
func (r *Registry) HandleCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, set := range r.subs {
		n += len(set)
	}
	return n
}
