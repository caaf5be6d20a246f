package jobs

import (
	"context"

	"github.com/zxcvny/capstone/internal/realtime/cache"
	"github.com/zxcvny/capstone/pkg/logger"
)

// TickCleanupJob evicts stale ticks from the last-tick cache
type TickCleanupJob struct {
	cache  *cache.TickCache
	logger *logger.Logger
}

// NewTickCleanupJob creates a new tick cleanup job
func NewTickCleanupJob(ticks *cache.TickCache, log *logger.Logger) *TickCleanupJob {
	return &TickCleanupJob{
		cache:  ticks,
		logger: log,
	}
}

// Name returns the job name
func (j *TickCleanupJob) Name() string {
	return "tick_cleanup"
}

// Schedule returns the cron schedule (every 5 minutes)
func (j *TickCleanupJob) Schedule() string {
	return "0 */5 * * * *"
}

// Run executes the cleanup
func (j *TickCleanupJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled tick cleanup")

	count := j.cache.CleanStale()

	if count > 0 {
		j.logger.WithField("removed", count).Debug("Tick cleanup completed")
	}

	return nil
}
