package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/zxcvny/capstone/internal/api/handlers"
	"github.com/zxcvny/capstone/pkg/logger"
)

// Handlers groups the endpoint handlers mounted by NewRouter
type Handlers struct {
	Stock   *handlers.StockHandler
	Ranking *handlers.RankingHandler
	Stream  *handlers.StreamHandler
	System  *handlers.SystemHandler
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, frontendURL string, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", h.System.Health).Methods("GET")
	r.HandleFunc("/fx/rate", h.System.FXRate).Methods("GET")
	r.HandleFunc("/scheduler/jobs", h.System.JobStats).Methods("GET")

	// Stock endpoints; static paths before {code}
	stocks := r.PathPrefix("/stocks").Subrouter()
	stocks.HandleFunc("/search", h.Stock.Search).Methods("GET")
	stocks.HandleFunc("/rank/{rank_type}", h.Ranking.GetRanking).Methods("GET")
	stocks.HandleFunc("/{code}/quote", h.Stock.GetQuote).Methods("GET")
	stocks.HandleFunc("/{code}/detail", h.Stock.GetDetail).Methods("GET")
	stocks.HandleFunc("/{code}/chart", h.Stock.GetChart).Methods("GET")
	stocks.HandleFunc("/{code}/orderbook", h.Stock.GetOrderBook).Methods("GET")
	stocks.HandleFunc("/{code}/trades", h.Stock.GetTrades).Methods("GET")

	// Realtime endpoints
	realtime := r.PathPrefix("/realtime").Subrouter()
	realtime.HandleFunc("/stats", h.Stream.RealtimeStats).Methods("GET")
	realtime.HandleFunc("/ticks/{code}", h.Stream.LastTick).Methods("GET")
	realtime.HandleFunc("/stocks/{code}", h.Stream.StockTicks).Methods("GET")
	realtime.HandleFunc("/rankings", h.Stream.Rankings).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	// preflight requests never match a GET route, so CORS wraps the router itself
	return corsMiddleware(frontendURL)(r)
}

// corsMiddleware allows the frontend origin; "" allows any origin
func corsMiddleware(allowedOrigin string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := allowedOrigin
			if origin == "" {
				origin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if origin != "*" {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Call next handler
			next.ServeHTTP(w, r)

			// Log request
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"query":    r.URL.RawQuery,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
