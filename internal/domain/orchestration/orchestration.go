// Package orchestration defines the Orchestration domain entity: a named,
// tenant-owned pipeline of agent steps plus an aggregation strategy.
package orchestration

import (
	"encoding/json"
	"time"
)

// Strategy defines how the steps of an orchestration are run and aggregated.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyParallel   Strategy = "parallel"
	StrategyConsensus  Strategy = "consensus"
)

// IsValid reports whether s is a known strategy.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategySequential, StrategyParallel, StrategyConsensus:
		return true
	}
	return false
}

// Status represents the lifecycle state of an orchestration definition.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusInactive:
		return true
	}
	return false
}

// Orchestration is a persisted pipeline definition. It is read-only while
// an execution runs against it.
type Orchestration struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Agents      []AgentStep     `json:"agents"`
	Strategy    Strategy        `json:"strategy"`
	Status      Status          `json:"status"`
	Config      json.RawMessage `json:"config,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// AgentStep is one position in the pipeline.
type AgentStep struct {
	AgentID string `json:"agentId"`
	Role    string `json:"role"`
	// Prompt, when set, replaces the agent's system prompt for this step.
	Prompt string `json:"prompt,omitempty"`
	// Condition is stored with the step but not evaluated by the executor.
	Condition string `json:"condition,omitempty"`
}

// CreateRequest holds the fields needed to create an orchestration.
type CreateRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Agents      []AgentStep     `json:"agents"`
	Strategy    Strategy        `json:"strategy"`
	Status      Status          `json:"status"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// UpdateRequest carries a partial update. Nil fields are left unchanged.
type UpdateRequest struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Agents      []AgentStep     `json:"agents,omitempty"`
	Strategy    *Strategy       `json:"strategy,omitempty"`
	Status      *Status         `json:"status,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Apply merges the non-nil fields of r into o.
func (r *UpdateRequest) Apply(o *Orchestration) {
	if r.Name != nil {
		o.Name = *r.Name
	}
	if r.Description != nil {
		o.Description = *r.Description
	}
	if r.Agents != nil {
		o.Agents = r.Agents
	}
	if r.Strategy != nil {
		o.Strategy = *r.Strategy
	}
	if r.Status != nil {
		o.Status = *r.Status
	}
	if r.Config != nil {
		o.Config = r.Config
	}
}
