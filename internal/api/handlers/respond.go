package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/zxcvny/capstone/internal/external/kis"
)

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// resolveMarket reads ?market= and falls back to inferring from the symbol shape
func resolveMarket(r *http.Request, symbol string, foreign kis.Market) (kis.Market, error) {
	if raw := strings.TrimSpace(r.URL.Query().Get("market")); raw != "" {
		return kis.ParseMarket(raw)
	}
	return kis.InferMarket(symbol, foreign), nil
}
