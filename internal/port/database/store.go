// Package database defines the persistence port used by the services.
package database

import (
	"context"

	"github.com/Strob0t/Sofia/internal/domain/agent"
	"github.com/Strob0t/Sofia/internal/domain/execution"
	"github.com/Strob0t/Sofia/internal/domain/orchestration"
)

// Store is the port interface for persistence. All reads and writes are
// scoped to the tenant carried in ctx.
type Store interface {
	// Agents
	CreateAgent(ctx context.Context, req agent.CreateRequest) (*agent.Agent, error)
	GetAgent(ctx context.Context, id string) (*agent.Agent, error)
	ListAgents(ctx context.Context) ([]agent.Agent, error)
	DeleteAgent(ctx context.Context, id string) error

	// Orchestrations
	CreateOrchestration(ctx context.Context, req orchestration.CreateRequest) (*orchestration.Orchestration, error)
	GetOrchestration(ctx context.Context, id string) (*orchestration.Orchestration, error)
	ListOrchestrations(ctx context.Context) ([]orchestration.Orchestration, error)
	UpdateOrchestration(ctx context.Context, o *orchestration.Orchestration) error

	// Executions
	CreateExecution(ctx context.Context, req execution.CreateRequest) (*execution.Execution, error)
	UpdateExecution(ctx context.Context, id string, patch execution.Patch) error
	GetExecution(ctx context.Context, id string) (*execution.Execution, error)
	ListExecutions(ctx context.Context, orchestrationID string, limit int) ([]execution.Execution, error)
}
