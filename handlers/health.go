package handlers

import (
	"net/http"
	"os"
	"time"

	"github.com/upb/jwt-gate/app"
	"github.com/upb/jwt-gate/utils"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck returns a simple health check handler
func HealthCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteOK(w, HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ReadinessCheck reports whether the signing key is already cached. A cold
// cache is still ready: the first request fetches the key.
func ReadinessCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}

		if _, err := os.Stat(deps.Keys.Path()); err != nil {
			checks["key_cache"] = "cold"
		} else {
			checks["key_cache"] = "warm"
		}

		_ = utils.WriteOK(w, HealthResponse{
			Status:    "ready",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checks,
		})
	}
}
