package jobs

import (
	"context"
	"fmt"
)

// RateRefresher re-fetches the exchange rate
type RateRefresher interface {
	Refresh(ctx context.Context) error
}

// FXRefreshJob warms the USD/KRW cache so request paths rarely pay for a fetch
type FXRefreshJob struct {
	rates RateRefresher
}

// NewFXRefreshJob creates a new FX refresh job
func NewFXRefreshJob(rates RateRefresher) *FXRefreshJob {
	return &FXRefreshJob{rates: rates}
}

// Name returns the job name
func (j *FXRefreshJob) Name() string {
	return "fx_refresh"
}

// Schedule returns the cron schedule (top of every hour)
func (j *FXRefreshJob) Schedule() string {
	return "0 0 * * * *"
}

// Run refreshes the rate; a failure keeps the previous value and is retried
func (j *FXRefreshJob) Run(ctx context.Context) error {
	if err := j.rates.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh exchange rate: %w", err)
	}
	return nil
}
