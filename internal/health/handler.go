// Package health provides health check implementations for external dependencies.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Checker is any dependency that can report its health.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// checkTimeout bounds each dependency probe so a hung dependency cannot
// stall the readiness endpoint.
const checkTimeout = 5 * time.Second

// Handler serves liveness and readiness endpoints over a named set of checkers.
type Handler struct {
	checkers map[string]Checker
	logger   *slog.Logger
}

// NewHandler creates a health handler. checkers maps a dependency name
// ("database", "redis") to its checker.
func NewHandler(checkers map[string]Checker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{checkers: checkers, logger: logger}
}

// Live reports process liveness. It always succeeds while the process can
// serve HTTP.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Ready probes every registered dependency and reports per-dependency status.
// Returns 503 when any dependency fails its check.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checkers))
	for name, checker := range h.checkers {
		if err := checker.HealthCheck(ctx); err != nil {
			h.logger.Warn("health check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()))
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(results)
}
