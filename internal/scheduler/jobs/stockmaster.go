package jobs

import (
	"context"
	"fmt"
)

// DirectoryReloader rebuilds the symbol directory
type DirectoryReloader interface {
	Reload(ctx context.Context) error
}

// StockMasterJob reloads the symbol directory before the domestic open
type StockMasterJob struct {
	loader DirectoryReloader
}

// NewStockMasterJob creates a new stock master job
func NewStockMasterJob(loader DirectoryReloader) *StockMasterJob {
	return &StockMasterJob{loader: loader}
}

// Name returns the job name
func (j *StockMasterJob) Name() string {
	return "stock_master"
}

// Schedule returns the cron schedule (07:30 every day)
func (j *StockMasterJob) Schedule() string {
	return "0 30 7 * * *"
}

// Run reloads master files and the database table
func (j *StockMasterJob) Run(ctx context.Context) error {
	if err := j.loader.Reload(ctx); err != nil {
		return fmt.Errorf("reload stock master: %w", err)
	}
	return nil
}
