package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxcvny/capstone/internal/realtime"
	"github.com/zxcvny/capstone/internal/realtime/cache"
	"github.com/zxcvny/capstone/internal/scheduler"
	"github.com/zxcvny/capstone/pkg/logger"
)

type refresherFunc func(ctx context.Context) error

func (f refresherFunc) Refresh(ctx context.Context) error { return f(ctx) }
func (f refresherFunc) Reload(ctx context.Context) error  { return f(ctx) }

// compile-time check that every job satisfies scheduler.Job
var (
	_ scheduler.Job = (*FXRefreshJob)(nil)
	_ scheduler.Job = (*StockMasterJob)(nil)
	_ scheduler.Job = (*TickCleanupJob)(nil)
)

func TestFXRefreshJob(t *testing.T) {
	calls := 0
	job := NewFXRefreshJob(refresherFunc(func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("all sources failed")
		}
		return nil
	}))

	assert.Equal(t, "fx_refresh", job.Name())
	assert.Equal(t, "0 0 * * * *", job.Schedule())
	assert.ErrorContains(t, job.Run(context.Background()), "refresh exchange rate")
	assert.NoError(t, job.Run(context.Background()))
}

func TestStockMasterJob(t *testing.T) {
	job := NewStockMasterJob(refresherFunc(func(context.Context) error {
		return errors.New("no stocks loaded")
	}))

	assert.Equal(t, "stock_master", job.Name())
	assert.Equal(t, "0 30 7 * * *", job.Schedule())
	assert.ErrorContains(t, job.Run(context.Background()), "reload stock master")
}

func TestTickCleanupJob(t *testing.T) {
	ticks := cache.NewTickCache(time.Minute, logger.Nop())
	ticks.Update(realtime.Tick{Code: "005930", Price: "70000", Source: realtime.SourceStream, ReceivedAt: time.Now().Add(-time.Hour)})
	ticks.Update(realtime.Tick{Code: "000660", Price: "180000", Source: realtime.SourceStream, ReceivedAt: time.Now()})

	job := NewTickCleanupJob(ticks, logger.Nop())
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 1, ticks.Len())
	_, _, ok := ticks.Get("000660")
	assert.True(t, ok)
}

func TestJobsRunUnderScheduler(t *testing.T) {
	s := scheduler.New(scheduler.Options{MaxRetries: 1, RetryDelay: time.Millisecond}, logger.Nop())

	attempts := 0
	require.NoError(t, s.AddJob(NewFXRefreshJob(refresherFunc(func(context.Context) error {
		attempts++
		if attempts == 1 {
			return errors.New("timeout")
		}
		return nil
	}))))

	result, err := s.RunJobSync("fx_refresh")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
}
