package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/Sofia/internal/domain"
	"github.com/Strob0t/Sofia/internal/domain/agent"
	"github.com/Strob0t/Sofia/internal/middleware"
	"github.com/Strob0t/Sofia/internal/port/cache"
	"github.com/Strob0t/Sofia/internal/port/database"
)

// AgentLookup resolves agents for the strategy executor through a
// read-through cache keyed per tenant. Cache failures never fail a lookup.
type AgentLookup struct {
	store database.Store
	cache cache.Cache
	ttl   time.Duration
}

var _ AgentSource = (*AgentLookup)(nil)

// NewAgentLookup creates an AgentLookup. A nil cache disables caching.
func NewAgentLookup(store database.Store, c cache.Cache, ttl time.Duration) *AgentLookup {
	return &AgentLookup{store: store, cache: c, ttl: ttl}
}

func agentCacheKey(ctx context.Context, id string) string {
	return "agent:" + middleware.TenantIDFromContext(ctx) + ":" + id
}

// Get returns the agent, from cache when possible.
func (l *AgentLookup) Get(ctx context.Context, id string) (*agent.Agent, error) {
	key := agentCacheKey(ctx, id)
	if l.cache != nil {
		ag, ok, err := cache.GetJSON[agent.Agent](ctx, l.cache, key)
		if err != nil {
			slog.WarnContext(ctx, "agent cache read failed", "agent_id", id, "error", err)
		} else if ok {
			return ag, nil
		}
	}

	ag, err := l.store.GetAgent(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &agent.NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}

	if l.cache != nil {
		if err := cache.SetJSON(ctx, l.cache, key, ag, l.ttl); err != nil {
			slog.WarnContext(ctx, "agent cache write failed", "agent_id", id, "error", err)
		}
	}
	return ag, nil
}

// Invalidate drops the cached copy of an agent.
func (l *AgentLookup) Invalidate(ctx context.Context, id string) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Delete(ctx, agentCacheKey(ctx, id)); err != nil {
		slog.WarnContext(ctx, "agent cache invalidate failed", "agent_id", id, "error", err)
	}
}
