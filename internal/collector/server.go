package collector

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/pagepulse/pagepulse-go/internal/ratelimit"
)

// SetupRoutes configures the collector's HTTP surface
func (h *Handler) SetupRoutes(limiter *ratelimit.Limiter) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.HandleHealthz).Methods("GET")

	api := r.PathPrefix("/v1").Subrouter()

	// Event endpoints are rate limited per project; session bookkeeping
	// and interaction batches are not (batches are already throttled by
	// the SDK's window policy)
	limited := api.PathPrefix("").Subrouter()
	limited.Use(RateLimitMiddleware(limiter))
	limited.HandleFunc("/track", h.HandleTrack).Methods("POST")
	limited.HandleFunc("/batch", h.HandleBatch).Methods("POST")

	api.HandleFunc("/session/start", h.HandleSessionStart).Methods("POST")
	api.HandleFunc("/session/end", h.HandleSessionEnd).Methods("POST")
	api.HandleFunc("/interaction-batch", h.HandleInteractionBatch).Methods("POST")
	api.HandleFunc("/live", h.feed.HandleLive).Methods("GET")

	r.Use(corsMiddleware)
	return r
}

// RateLimitMiddleware rejects requests from projects over their ingest
// budget with 429 and X-RateLimit headers
func RateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			project := projectID(r)
			if project == "" {
				// Anonymous pushes are not limited; they are rejected
				// later by validation if malformed
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(project) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "rate limit exceeded for project " + project,
				})
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(project)))
			next.ServeHTTP(w, r)
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Project-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
