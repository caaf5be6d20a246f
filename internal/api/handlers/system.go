package handlers

import (
	"context"
	"net/http"

	"github.com/zxcvny/capstone/internal/fx"
	"github.com/zxcvny/capstone/internal/scheduler"
	"github.com/zxcvny/capstone/pkg/logger"
)

// ServiceName is reported by the health endpoint
const ServiceName = "capstone-api"

// RateSource exposes the cached USD/KRW rate
type RateSource interface {
	Rate(ctx context.Context) float64
	Snapshot() fx.Rate
}

// JobReporter exposes scheduled job statistics
type JobReporter interface {
	GetJobStats() map[string]scheduler.JobStats
}

// SystemHandler serves health, FX and scheduler endpoints
type SystemHandler struct {
	rates  RateSource
	jobs   JobReporter
	logger *logger.Logger
}

// NewSystemHandler creates a new system handler. jobs may be nil.
func NewSystemHandler(rates RateSource, jobs JobReporter, log *logger.Logger) *SystemHandler {
	return &SystemHandler{
		rates:  rates,
		jobs:   jobs,
		logger: log,
	}
}

// Health returns server health status
// GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": ServiceName,
	})
}

// FXRate returns the USD/KRW rate, refreshing first when stale
// GET /fx/rate
func (h *SystemHandler) FXRate(w http.ResponseWriter, r *http.Request) {
	h.rates.Rate(r.Context())
	respondJSON(w, http.StatusOK, h.rates.Snapshot())
}

// JobStats returns run statistics of every scheduled job
// GET /scheduler/jobs
func (h *SystemHandler) JobStats(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondJSON(w, http.StatusOK, map[string]scheduler.JobStats{})
		return
	}
	respondJSON(w, http.StatusOK, h.jobs.GetJobStats())
}
