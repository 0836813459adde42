// Package responses holds the JSON bodies and writers shared by the
// previewer HTTP servers.
package responses

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// StatusHealthy is the only status a live server reports.
const StatusHealthy = "healthy"

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Envelope wraps a successful API result.
type Envelope struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

// WriteJSON encodes v with the given status code. Encoding failures after
// the header is sent can only be logged.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response body", "error", err)
	}
}

// Health answers liveness probes for service.
func Health(service string) http.HandlerFunc {
	body := HealthResponse{Status: StatusHealthy, Service: service}
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, body)
	}
}
