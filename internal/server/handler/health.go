package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Check tests one dependency.
type Check func(ctx context.Context) error

// HealthHandler serves GET /api/health.
type HealthHandler struct {
	checks  map[string]Check
	clients func() int
	logger  *slog.Logger
}

// HealthOption configures a HealthHandler.
type HealthOption func(*HealthHandler)

// WithClientCount adds the number of connected websocket clients to the
// response.
func WithClientCount(fn func() int) HealthOption {
	return func(h *HealthHandler) { h.clients = fn }
}

// NewHealthHandler creates a HealthHandler. checks may be empty.
func NewHealthHandler(checks map[string]Check, logger *slog.Logger, opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{checks: checks, logger: logger}
	for _, o := range opts {
		o(h)
	}
	return h
}

// HealthCheck runs every dependency check with a short timeout. Any failure
// reports "degraded" with 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			deps[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	body := map[string]any{
		"status":       status,
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}
	if h.clients != nil {
		body["ws_clients"] = h.clients()
	}
	writeJSON(w, code, body)
}
