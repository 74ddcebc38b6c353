package orchestration

import (
	"errors"
	"fmt"

	"github.com/Strob0t/Sofia/internal/domain"
)

var (
	ErrNameRequired       = errors.New("name is required")
	ErrInvalidStrategy    = errors.New("invalid strategy: must be sequential, parallel, or consensus")
	ErrInvalidStatus      = errors.New("invalid status: must be draft, active, or inactive")
	ErrNoAgents           = errors.New("at least one agent step is required")
	ErrStepMissingAgent   = errors.New("step agentId is required")
	ErrNotActive          = errors.New("orchestration is not active")
	ErrInvalidConfigShape = errors.New("config must be a JSON object")
)

// Validate checks the CreateRequest for structural correctness.
// An empty Status defaults to draft.
func (r *CreateRequest) Validate() error {
	if r.Status == "" {
		r.Status = StatusDraft
	}
	o := Orchestration{
		Name:     r.Name,
		Agents:   r.Agents,
		Strategy: r.Strategy,
		Status:   r.Status,
		Config:   r.Config,
	}
	return o.Validate()
}

// Validate checks the definition for structural correctness. Every returned
// error wraps domain.ErrValidation.
func (o *Orchestration) Validate() error {
	if err := o.validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return nil
}

func (o *Orchestration) validate() error {
	if o.Name == "" {
		return ErrNameRequired
	}
	if !o.Strategy.IsValid() {
		return ErrInvalidStrategy
	}
	if !o.Status.IsValid() {
		return ErrInvalidStatus
	}
	if len(o.Agents) == 0 {
		return ErrNoAgents
	}
	for i := range o.Agents {
		if o.Agents[i].AgentID == "" {
			return fmt.Errorf("step %d: %w", i, ErrStepMissingAgent)
		}
	}
	if len(o.Config) > 0 && !isJSONObject(o.Config) {
		return ErrInvalidConfigShape
	}
	return nil
}

// CheckRunnable reports whether an execution may be started. It is checked
// before any execution record is created.
func (o *Orchestration) CheckRunnable() error {
	if o.Status != StatusActive {
		return fmt.Errorf("%w: %w (status %s)", domain.ErrValidation, ErrNotActive, o.Status)
	}
	if len(o.Agents) == 0 {
		return fmt.Errorf("%w: %w", domain.ErrValidation, ErrNoAgents)
	}
	return nil
}

func isJSONObject(raw []byte) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
