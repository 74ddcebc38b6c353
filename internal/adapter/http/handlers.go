package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Strob0t/Sofia/internal/middleware"
	"github.com/Strob0t/Sofia/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Agents         *service.AgentService
	Orchestrations *service.OrchestrationService
	Executions     *service.ExecutionService

	// Idempotency, when set, deduplicates execute requests by Idempotency-Key.
	Idempotency middleware.IdempotencyStore
	// ExecuteLimiter, when set, throttles execute requests per tenant and IP.
	ExecuteLimiter *middleware.RateLimiter
	// InboundSecret, when set, overrides the configured inbound webhook
	// secret and is read on every hook request.
	InboundSecret func() string
}

// --- Agents ---

// ListAgents handles GET /api/v1/agents
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	handleList(h.Agents.List)(w, r)
}

// GetAgent handles GET /api/v1/agents/{id}
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Agents.Get, "agent not found")(w, r)
}

// CreateAgent handles POST /api/v1/agents
func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	handleCreate(h.Agents.Create)(w, r)
}

// DeleteAgent handles DELETE /api/v1/agents/{id}
func (h *Handlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	handleDelete(h.Agents.Delete, "agent not found")(w, r)
}

// --- Health ---

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthHandler reports "ok" when every check passes and "degraded" with
// 503 otherwise.
func HealthHandler(checks ...HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		res := healthStatus{Status: "ok", Checks: make(map[string]string, len(checks))}
		code := http.StatusOK
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				res.Checks[c.Name] = err.Error()
				res.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			res.Checks[c.Name] = "ok"
		}
		writeJSON(w, code, res)
	}
}
