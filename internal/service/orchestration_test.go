package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/Sofia/internal/domain"
	"github.com/Strob0t/Sofia/internal/domain/agent"
	"github.com/Strob0t/Sofia/internal/domain/orchestration"
)

func TestOrchestrationServiceCreateDefaultsToDraft(t *testing.T) {
	svc := NewOrchestrationService(newMemStore())
	o, err := svc.Create(context.Background(), orchestration.CreateRequest{
		Name:     "Pipeline",
		Strategy: orchestration.StrategyParallel,
		Agents:   []orchestration.AgentStep{{AgentID: "a1", Role: "r"}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if o.Status != orchestration.StatusDraft {
		t.Errorf("status = %q, want draft", o.Status)
	}
}

func TestOrchestrationServiceCreateValidates(t *testing.T) {
	svc := NewOrchestrationService(newMemStore())
	_, err := svc.Create(context.Background(), orchestration.CreateRequest{Name: "x", Strategy: "round-robin"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestOrchestrationServiceSetStatus(t *testing.T) {
	store := newMemStore()
	svc := NewOrchestrationService(store)
	o, err := svc.Create(context.Background(), orchestration.CreateRequest{
		Name:     "P",
		Strategy: orchestration.StrategySequential,
		Agents:   []orchestration.AgentStep{{AgentID: "a1"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.SetStatus(context.Background(), o.ID, orchestration.StatusActive)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if got.Status != orchestration.StatusActive {
		t.Errorf("status = %q", got.Status)
	}
	if _, err := svc.SetStatus(context.Background(), o.ID, "archived"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for unknown status, got %v", err)
	}
	if _, err := svc.SetStatus(context.Background(), "missing", orchestration.StatusActive); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOrchestrationServiceUpdateRejectsEmptySteps(t *testing.T) {
	store := newMemStore()
	store.addOrchestration(orchestration.Orchestration{
		ID: "o1", Name: "P", Strategy: orchestration.StrategySequential, Status: orchestration.StatusDraft,
		Agents: []orchestration.AgentStep{{AgentID: "a1"}},
	})
	svc := NewOrchestrationService(store)

	_, err := svc.Update(context.Background(), "o1", orchestration.UpdateRequest{Agents: []orchestration.AgentStep{}})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestAgentServiceDeleteInvalidatesCache(t *testing.T) {
	store := newMemStore()
	c := newMemCache()
	lookup := NewAgentLookup(store, c, 0)
	svc := NewAgentService(store, lookup)

	a, err := svc.Create(context.Background(), agent.CreateRequest{Name: "w", Model: "m", Temperature: 1})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := lookup.Get(context.Background(), a.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(context.Background(), a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := lookup.Get(context.Background(), a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, err := svc.Create(context.Background(), agent.CreateRequest{Name: "w"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for missing model, got %v", err)
	}
}
