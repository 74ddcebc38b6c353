package service

import (
	"context"
	"fmt"

	"github.com/Strob0t/Sofia/internal/domain/agent"
	"github.com/Strob0t/Sofia/internal/port/database"
)

// AgentService manages the agents that orchestration steps reference.
type AgentService struct {
	store  database.Store
	lookup *AgentLookup
}

// NewAgentService creates a new AgentService. lookup may be nil.
func NewAgentService(store database.Store, lookup *AgentLookup) *AgentService {
	return &AgentService{store: store, lookup: lookup}
}

// List returns all agents of the tenant.
func (s *AgentService) List(ctx context.Context) ([]agent.Agent, error) {
	return s.store.ListAgents(ctx)
}

// Get returns an agent by ID.
func (s *AgentService) Get(ctx context.Context, id string) (*agent.Agent, error) {
	return s.store.GetAgent(ctx, id)
}

// Create validates and stores a new agent.
func (s *AgentService) Create(ctx context.Context, req agent.CreateRequest) (*agent.Agent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	a, err := s.store.CreateAgent(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	return a, nil
}

// Delete removes an agent and evicts it from the lookup cache.
func (s *AgentService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteAgent(ctx, id); err != nil {
		return err
	}
	if s.lookup != nil {
		s.lookup.Invalidate(ctx, id)
	}
	return nil
}
