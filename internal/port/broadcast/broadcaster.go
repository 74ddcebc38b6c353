// Package broadcast defines the port for pushing real-time events to connected clients.
package broadcast

import "context"

// Event types pushed while an execution runs.
const (
	EventExecutionStatus = "execution.status"
	EventExecutionStep   = "execution.step"
)

// Broadcaster sends real-time events to the clients of one tenant.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// ExecutionStatusEvent is pushed on every execution status change.
type ExecutionStatusEvent struct {
	ExecutionID     string `json:"execution_id"`
	OrchestrationID string `json:"orchestration_id"`
	Status          string `json:"status"`
	Error           string `json:"error,omitempty"`
}

// ExecutionStepEvent is pushed when a step starts or finishes.
type ExecutionStepEvent struct {
	ExecutionID     string `json:"execution_id"`
	OrchestrationID string `json:"orchestration_id"`
	AgentID         string `json:"agent_id"`
	Role            string `json:"role,omitempty"`
	Phase           string `json:"phase"` // "started" | "finished"
}

// Nop discards every event. Used when no live clients are wired.
type Nop struct{}

func (Nop) BroadcastEvent(context.Context, string, any) {}
