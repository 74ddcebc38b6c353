package messagequeue

import "encoding/json"

// ExecutionRequestedPayload is the schema for executions.requested messages.
type ExecutionRequestedPayload struct {
	RequestID       string          `json:"request_id"`
	TenantID        string          `json:"tenant_id"`
	OrchestrationID string          `json:"orchestration_id"`
	ConversationID  string          `json:"conversation_id,omitempty"`
	Input           json.RawMessage `json:"input"`
}

// ExecutionEventPayload is the schema for executions.{started,completed,failed}.
type ExecutionEventPayload struct {
	ExecutionID     string          `json:"execution_id"`
	OrchestrationID string          `json:"orchestration_id"`
	TenantID        string          `json:"tenant_id"`
	Status          string          `json:"status"`
	Output          json.RawMessage `json:"output,omitempty"`
	Error           string          `json:"error,omitempty"`
	TokensUsed      int             `json:"tokens_used"`
	DurationMs      int64           `json:"duration_ms"`
}

// DispatchResultPayload is the schema for dispatch.result messages.
type DispatchResultPayload struct {
	ExecutionID string `json:"execution_id"`
	Type        string `json:"type"`
	Destination string `json:"destination"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}
