package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxcvny/capstone/internal/realtime"
	"github.com/zxcvny/capstone/pkg/logger"
)

func newTestCache(now time.Time) *TickCache {
	c := NewTickCache(time.Minute, logger.Nop())
	c.now = func() time.Time { return now }
	return c
}

func tick(code string, at time.Time, src realtime.TickSource, price string) realtime.Tick {
	return realtime.Tick{Type: realtime.TickType, Code: code, Price: price, Source: src, ReceivedAt: at}
}

func TestTickCache_Update(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		existing *realtime.Tick
		incoming realtime.Tick
		accepted bool
		price    string
	}{
		{
			name:     "first tick",
			incoming: tick("005930", base, realtime.SourceSnapshot, "70000"),
			accepted: true,
			price:    "70000",
		},
		{
			name:     "older tick rejected",
			existing: ptr(tick("005930", base, realtime.SourceStream, "70100")),
			incoming: tick("005930", base.Add(-time.Second), realtime.SourceStream, "69900"),
			accepted: false,
			price:    "70100",
		},
		{
			name:     "same time from stream beats snapshot",
			existing: ptr(tick("005930", base, realtime.SourceSnapshot, "70000")),
			incoming: tick("005930", base, realtime.SourceStream, "70200"),
			accepted: true,
			price:    "70200",
		},
		{
			name:     "same time snapshot loses to stream",
			existing: ptr(tick("005930", base, realtime.SourceStream, "70200")),
			incoming: tick("005930", base, realtime.SourceSnapshot, "70000"),
			accepted: false,
			price:    "70200",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCache(base)
			if tt.existing != nil {
				require.True(t, c.Update(*tt.existing))
			}
			assert.Equal(t, tt.accepted, c.Update(tt.incoming))

			got, _, ok := c.Get("005930")
			require.True(t, ok)
			assert.Equal(t, tt.price, got.Price)
		})
	}
}

func TestTickCache_StaleAndClean(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c := newTestCache(base)

	c.Update(tick("005930", base.Add(-2*time.Minute), realtime.SourceStream, "70000"))
	c.Update(tick("AAPL", base, realtime.SourceSnapshot, "300000"))

	_, stale, ok := c.Get("005930")
	require.True(t, ok)
	assert.True(t, stale)

	stats := c.Stats()
	assert.Equal(t, 2, stats.TotalCount)
	assert.Equal(t, 1, stats.StaleCount)
	assert.Equal(t, 1, stats.StreamCount)
	assert.Equal(t, 1, stats.SnapshotCount)

	assert.Equal(t, 1, c.CleanStale())
	assert.Equal(t, 1, c.Len())
	assert.Len(t, c.GetMany([]string{"005930", "AAPL"}), 1)
}

func ptr(t realtime.Tick) *realtime.Tick { return &t }
