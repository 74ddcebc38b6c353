package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/Strob0t/Sofia/internal/domain/orchestration"
	"github.com/Strob0t/Sofia/internal/service"
)

// --- Orchestrations ---

// ListOrchestrations handles GET /api/v1/orchestrations
func (h *Handlers) ListOrchestrations(w http.ResponseWriter, r *http.Request) {
	handleList(h.Orchestrations.List)(w, r)
}

// GetOrchestration handles GET /api/v1/orchestrations/{id}
func (h *Handlers) GetOrchestration(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Orchestrations.Get, "orchestration not found")(w, r)
}

// CreateOrchestration handles POST /api/v1/orchestrations
func (h *Handlers) CreateOrchestration(w http.ResponseWriter, r *http.Request) {
	handleCreate(h.Orchestrations.Create)(w, r)
}

// UpdateOrchestration handles PUT /api/v1/orchestrations/{id}
func (h *Handlers) UpdateOrchestration(w http.ResponseWriter, r *http.Request) {
	handleUpdate(h.Orchestrations.Update, "orchestration not found")(w, r)
}

type statusRequest struct {
	Status orchestration.Status `json:"status"`
}

// SetOrchestrationStatus handles PUT /api/v1/orchestrations/{id}/status
func (h *Handlers) SetOrchestrationStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[statusRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}
	o, err := h.Orchestrations.SetStatus(r.Context(), urlParam(r, "id"), req.Status)
	if err != nil {
		writeDomainError(w, err, "orchestration not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// --- Executions ---

type enqueueResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// ExecuteOrchestration handles POST /api/v1/orchestrations/{id}/execute
//
// The run is synchronous and answers with the execution and its dispatch
// records. With ?async=true the request is queued and 202 is returned.
func (h *Handlers) ExecuteOrchestration(w http.ResponseWriter, r *http.Request) {
	req, ok := readOptionalJSON[service.ExecuteRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	h.execute(w, r, req)
}

// HookExecuteOrchestration handles POST /api/v1/hooks/orchestrations/{id}/execute
//
// The signed request body is used verbatim as the execution input.
func (h *Handlers) HookExecuteOrchestration(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	var req service.ExecuteRequest
	if len(body) > 0 {
		if !json.Valid(body) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Input = body
	}
	h.execute(w, r, req)
}

func (h *Handlers) execute(w http.ResponseWriter, r *http.Request, req service.ExecuteRequest) {
	id := urlParam(r, "id")

	if r.URL.Query().Get("async") == "true" {
		requestID, err := h.Executions.Enqueue(r.Context(), id, req)
		if err != nil {
			writeDomainError(w, err, "orchestration not found")
			return
		}
		writeJSON(w, http.StatusAccepted, enqueueResponse{RequestID: requestID, Status: "queued"})
		return
	}

	report, err := h.Executions.Execute(r.Context(), id, req)
	if err != nil {
		writeDomainError(w, err, "orchestration not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListExecutions handles GET /api/v1/orchestrations/{id}/executions
func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	items, err := h.Executions.List(r.Context(), urlParam(r, "id"), queryLimit(r))
	if err != nil {
		writeDomainError(w, err, "orchestration not found")
		return
	}
	if items == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// GetExecution handles GET /api/v1/executions/{id}
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Executions.Get, "execution not found")(w, r)
}
