package stockinfo

import (
	"context"
	"fmt"

	"github.com/zxcvny/capstone/pkg/logger"
)

// StockSource lists stocks from a persistent store
type StockSource interface {
	ActiveStocks(ctx context.Context) ([]Stock, error)
}

// Loader fills a Directory from master files and, when configured, the database.
// Database rows override master-file rows of the same code.
type Loader struct {
	dir       string
	source    StockSource // nil when no database is configured
	directory *Directory
	logger    *logger.Logger
}

// NewLoader creates a loader. source may be nil.
func NewLoader(dir string, source StockSource, directory *Directory, log *logger.Logger) *Loader {
	return &Loader{
		dir:       dir,
		source:    source,
		directory: directory,
		logger:    log.WithComponent("stockinfo"),
	}
}

// Reload rebuilds the directory. A partial load still replaces the table
// unless nothing at all was loaded.
func (l *Loader) Reload(ctx context.Context) error {
	stocks, missing, err := LoadMasterDir(l.dir)
	if err != nil {
		return fmt.Errorf("load master files: %w", err)
	}
	for _, path := range missing {
		l.logger.WithField("path", path).Warn("Master file not found, names for that market fall back to codes")
	}
	fromFiles := len(stocks)

	fromDB := 0
	if l.source != nil {
		rows, err := l.source.ActiveStocks(ctx)
		if err != nil {
			l.logger.WithError(err).Warn("Failed to load stocks from database")
		} else {
			stocks = append(stocks, rows...)
			fromDB = len(rows)
		}
	}

	if len(stocks) == 0 {
		return fmt.Errorf("no stocks loaded from %s", l.dir)
	}

	l.directory.Replace(stocks)
	l.logger.WithFields(map[string]interface{}{
		"from_files": fromFiles,
		"from_db":    fromDB,
		"total":      l.directory.Len(),
	}).Info("Stock directory loaded")
	return nil
}
