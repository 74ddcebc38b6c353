package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Strob0t/Sofia/internal/domain"
	"github.com/Strob0t/Sofia/internal/domain/orchestration"
	"github.com/Strob0t/Sofia/internal/port/database"
)

// OrchestrationService manages orchestration definitions.
type OrchestrationService struct {
	store database.Store
}

// NewOrchestrationService creates a new OrchestrationService.
func NewOrchestrationService(store database.Store) *OrchestrationService {
	return &OrchestrationService{store: store}
}

// List returns all orchestrations of the tenant.
func (s *OrchestrationService) List(ctx context.Context) ([]orchestration.Orchestration, error) {
	return s.store.ListOrchestrations(ctx)
}

// Get returns an orchestration by ID.
func (s *OrchestrationService) Get(ctx context.Context, id string) (*orchestration.Orchestration, error) {
	return s.store.GetOrchestration(ctx, id)
}

// Create validates and stores a new orchestration. Output configuration
// problems are logged, not rejected: the dispatcher skips bad entries.
func (s *OrchestrationService) Create(ctx context.Context, req orchestration.CreateRequest) (*orchestration.Orchestration, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	o, err := s.store.CreateOrchestration(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create orchestration: %w", err)
	}
	logOutputProblems(ctx, o)
	return o, nil
}

// Update applies a partial update and re-validates the definition.
func (s *OrchestrationService) Update(ctx context.Context, id string, req orchestration.UpdateRequest) (*orchestration.Orchestration, error) {
	o, err := s.store.GetOrchestration(ctx, id)
	if err != nil {
		return nil, err
	}
	req.Apply(o)
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.UpdateOrchestration(ctx, o); err != nil {
		return nil, fmt.Errorf("update orchestration: %w", err)
	}
	logOutputProblems(ctx, o)
	return o, nil
}

// SetStatus moves an orchestration between draft, active and inactive.
func (s *OrchestrationService) SetStatus(ctx context.Context, id string, status orchestration.Status) (*orchestration.Orchestration, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, orchestration.ErrInvalidStatus)
	}
	return s.Update(ctx, id, orchestration.UpdateRequest{Status: &status})
}

func logOutputProblems(ctx context.Context, o *orchestration.Orchestration) {
	_, errs := o.Outputs()
	for _, err := range errs {
		slog.WarnContext(ctx, "orchestration output config ignored", "orchestration_id", o.ID, "error", err)
	}
}
