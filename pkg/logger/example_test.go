package logger_test

import (
	"errors"

	"github.com/zxcvny/capstone/pkg/config"
	"github.com/zxcvny/capstone/pkg/logger"
)

// Example demonstrates structured logging the way the services use it
func Example() {
	cfg := &config.Config{
		Env:       "development",
		LogLevel:  "info",
		LogFormat: "console",
	}

	// Create logger (SSOT)
	log := logger.New(cfg)

	log.Info("Application started")

	// Structured fields for upstream failures
	log.WithFields(map[string]interface{}{
		"symbol":    "AAPL",
		"rank_type": "volume",
	}).WithError(errors.New("timeout")).Error("Ranking fetch failed")
}
