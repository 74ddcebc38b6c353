package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/Sofia/internal/config"
	"github.com/Strob0t/Sofia/internal/domain/dispatch"
	"github.com/Strob0t/Sofia/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router.
// Tenant and request-id middleware are expected on r already.
func MountRoutes(r chi.Router, h *Handlers, webhookCfg config.Webhook) {
	execute := h.executeMiddleware()

	verify := middleware.WebhookHMAC(webhookCfg.InboundSecret, dispatch.SignatureHeader)
	if h.InboundSecret != nil {
		verify = middleware.WebhookHMACFunc(h.InboundSecret, dispatch.SignatureHeader)
	}

	// Inbound triggers (HMAC-verified instead of tenant headers alone)
	r.Route("/api/v1/hooks", func(r chi.Router) {
		r.With(append([]func(http.Handler) http.Handler{verify}, execute...)...).Post("/orchestrations/{id}/execute", h.HookExecuteOrchestration)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Agents
		r.Get("/agents", h.ListAgents)
		r.Post("/agents", h.CreateAgent)
		r.Get("/agents/{id}", h.GetAgent)
		r.Delete("/agents/{id}", h.DeleteAgent)

		// Orchestrations
		r.Get("/orchestrations", h.ListOrchestrations)
		r.Post("/orchestrations", h.CreateOrchestration)
		r.Get("/orchestrations/{id}", h.GetOrchestration)
		r.Put("/orchestrations/{id}", h.UpdateOrchestration)
		r.Put("/orchestrations/{id}/status", h.SetOrchestrationStatus)

		// Executions
		r.With(execute...).Post("/orchestrations/{id}/execute", h.ExecuteOrchestration)
		r.Get("/orchestrations/{id}/executions", h.ListExecutions)
		r.Get("/executions/{id}", h.GetExecution)
	})
}

// executeMiddleware returns the optional throttling and deduplication
// applied to execute endpoints.
func (h *Handlers) executeMiddleware() []func(http.Handler) http.Handler {
	var mws []func(http.Handler) http.Handler
	if h.ExecuteLimiter != nil {
		mws = append(mws, h.ExecuteLimiter.Handler)
	}
	if h.Idempotency != nil {
		mws = append(mws, middleware.Idempotency(h.Idempotency))
	}
	return mws
}
