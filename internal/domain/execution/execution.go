// Package execution defines the Execution entity: one run of an
// orchestration against a specific input, with its audit trail.
package execution

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of an execution.
// Transitions only move forward: pending -> running -> completed|failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal returns true once no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Staying in a non-terminal state is allowed (progress updates).
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() || next.rank() < 0 {
		return false
	}
	return next.rank() >= s.rank()
}

// ErrInvalidTransition is returned when a patch would move status backwards
// or mutate a terminal execution.
var ErrInvalidTransition = errors.New("invalid execution status transition")

// AgentResult records one completed step.
type AgentResult struct {
	AgentID   string    `json:"agentId"`
	AgentName string    `json:"agentName"`
	Role      string    `json:"role"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Timestamp time.Time `json:"timestamp"`
}

// Execution is exactly one run. Its row has a single writer: the execution
// service that created it.
type Execution struct {
	ID              string          `json:"id"`
	OrchestrationID string          `json:"orchestration_id"`
	ConversationID  string          `json:"conversation_id,omitempty"`
	Input           json.RawMessage `json:"input"`
	Status          Status          `json:"status"`
	CurrentAgentID  string          `json:"current_agent_id,omitempty"`
	AgentResults    []AgentResult   `json:"agent_results"`
	Output          json.RawMessage `json:"output,omitempty"`
	Error           string          `json:"error,omitempty"`
	TokensUsed      int             `json:"tokens_used"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// Duration returns the wall time between start and completion, or zero
// while the execution is still running.
func (e *Execution) Duration() time.Duration {
	if e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(e.StartedAt)
}

// CreateRequest holds the fields needed to open an execution row.
type CreateRequest struct {
	OrchestrationID string          `json:"orchestration_id"`
	ConversationID  string          `json:"conversation_id,omitempty"`
	Input           json.RawMessage `json:"input"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Status         *Status
	CurrentAgentID *string
	AgentResults   []AgentResult
	Output         json.RawMessage
	Error          *string
	TokensUsed     *int
	CompletedAt    *time.Time
}

// Progress returns a patch that records the step currently running.
func Progress(agentID string, results []AgentResult) Patch {
	return Patch{CurrentAgentID: &agentID, AgentResults: results}
}

// Complete returns the terminal patch for a successful run.
func Complete(output json.RawMessage, results []AgentResult, tokens int, at time.Time) Patch {
	st := StatusCompleted
	return Patch{
		Status:       &st,
		AgentResults: results,
		Output:       output,
		TokensUsed:   &tokens,
		CompletedAt:  &at,
	}
}

// Fail returns the terminal patch for a failed run. results carries the
// steps that finished before the failure.
func Fail(cause error, results []AgentResult, tokens int, at time.Time) Patch {
	st := StatusFailed
	msg := cause.Error()
	return Patch{
		Status:       &st,
		AgentResults: results,
		Error:        &msg,
		TokensUsed:   &tokens,
		CompletedAt:  &at,
	}
}

// Validate checks the patch on its own, without the current row: no
// regression to pending, and completed_at present exactly when the patch
// moves to a terminal status. Stores that apply patches blindly rely on it.
func (p *Patch) Validate() error {
	if p.Status != nil && p.Status.rank() < StatusRunning.rank() {
		return fmt.Errorf("%w: cannot move to %q", ErrInvalidTransition, *p.Status)
	}
	terminal := p.Status != nil && p.Status.IsTerminal()
	if terminal != (p.CompletedAt != nil) {
		return fmt.Errorf("%w: completed_at must be set iff status is terminal", ErrInvalidTransition)
	}
	return nil
}

// Check validates the patch against the current state of e: status never
// regresses, terminal executions are immutable, and completed_at is present
// exactly when the resulting status is terminal.
func (p *Patch) Check(e *Execution) error {
	if e.Status.IsTerminal() {
		return fmt.Errorf("%w: execution %s is %s", ErrInvalidTransition, e.ID, e.Status)
	}
	next := e.Status
	if p.Status != nil {
		if !e.Status.CanTransitionTo(*p.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, *p.Status)
		}
		next = *p.Status
	}
	if next.IsTerminal() != (p.CompletedAt != nil) {
		return fmt.Errorf("%w: completed_at must be set iff status is terminal (status %s)", ErrInvalidTransition, next)
	}
	return nil
}

// Apply checks p and merges it into e.
func (p *Patch) Apply(e *Execution) error {
	if err := p.Check(e); err != nil {
		return err
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.CurrentAgentID != nil {
		e.CurrentAgentID = *p.CurrentAgentID
	}
	if p.AgentResults != nil {
		e.AgentResults = p.AgentResults
	}
	if p.Output != nil {
		e.Output = p.Output
	}
	if p.Error != nil {
		e.Error = *p.Error
	}
	if p.TokensUsed != nil {
		e.TokensUsed = *p.TokensUsed
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		e.CompletedAt = &t
	}
	return nil
}
