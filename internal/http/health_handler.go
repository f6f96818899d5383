package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports the reachability of every registered dependency.
type HealthHandler struct {
	checks    map[string]Pinger
	timeout   time.Duration
	responder responder
}

// NewHealthHandler checks each named pinger; nil pingers are skipped.
func NewHealthHandler(checks map[string]Pinger, logger *slog.Logger) *HealthHandler {
	filtered := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			filtered[name] = p
		}
	}
	return &HealthHandler{checks: filtered, timeout: 2 * time.Second, responder: newResponder(logger)}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	code := http.StatusOK
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.responder.loggerFor(ctx).ErrorContext(ctx, "health check failed", "dependency", name, "error", err)
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	h.responder.writeJSON(ctx, w, code, resp)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
