// Package agent defines the Agent domain entity consumed by the orchestration engine.
package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/Strob0t/Sofia/internal/domain"
)

var (
	ErrNameRequired       = errors.New("name is required")
	ErrModelRequired      = errors.New("model is required")
	ErrTemperatureInvalid = errors.New("temperature must be between 0 and 2")
)

// Agent is an LLM persona: a model, a system prompt and a sampling temperature.
// The executor only ever reads agents.
type Agent struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id,omitempty"`
	Name         string    `json:"name"`
	Model        string    `json:"model"`
	SystemPrompt string    `json:"system_prompt"`
	Temperature  float64   `json:"temperature"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateRequest holds the fields needed to register an agent.
type CreateRequest struct {
	Name         string  `json:"name"`
	Model        string  `json:"model"`
	SystemPrompt string  `json:"system_prompt"`
	Temperature  float64 `json:"temperature"`
}

// Validate checks the request for structural correctness.
func (r *CreateRequest) Validate() error {
	var err error
	switch {
	case r.Name == "":
		err = ErrNameRequired
	case r.Model == "":
		err = ErrModelRequired
	case r.Temperature < 0 || r.Temperature > 2:
		err = ErrTemperatureInvalid
	}
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return nil
}

// NotFoundError reports a pipeline step referencing an agent that does not exist.
// Its message is recorded verbatim on failed executions.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Agent %s not found", e.ID)
}

// Is lets errors.Is(err, domain.ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == domain.ErrNotFound
}
