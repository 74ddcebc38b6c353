package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/Sofia/internal/domain"
	"github.com/Strob0t/Sofia/internal/domain/agent"
	"github.com/Strob0t/Sofia/internal/domain/orchestration"
	"github.com/Strob0t/Sofia/internal/port/database"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ database.Store = (*Store)(nil)

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Agents ---

const agentColumns = `id, tenant_id, name, model, system_prompt, temperature, created_at, updated_at`

func scanAgent(row scannable) (agent.Agent, error) {
	var a agent.Agent
	err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.Model, &a.SystemPrompt, &a.Temperature, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *Store) CreateAgent(ctx context.Context, req agent.CreateRequest) (*agent.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO agents (tenant_id, name, model, system_prompt, temperature)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+agentColumns,
		tenantFromCtx(ctx), req.Name, req.Model, req.SystemPrompt, req.Temperature)

	a, err := scanAgent(row)
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	return &a, nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	if !validID(id) {
		return nil, errNotFound("agent", id)
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1 AND tenant_id = $2`, id, tenantFromCtx(ctx))

	a, err := scanAgent(row)
	if err != nil {
		return nil, notFoundWrap(err, "get agent %s", id)
	}
	return &a, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]agent.Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantFromCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return orEmpty(agents), rows.Err()
}

func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1 AND tenant_id = $2`, id, tenantFromCtx(ctx))
	return execExpectOne(tag, err, "delete agent %s", id)
}

// --- Orchestrations ---

const orchestrationColumns = `id, tenant_id, name, description, agents, strategy, status, config, created_at, updated_at`

func scanOrchestration(row scannable) (orchestration.Orchestration, error) {
	var (
		o          orchestration.Orchestration
		agentsJSON []byte
		configJSON []byte
	)
	err := row.Scan(&o.ID, &o.TenantID, &o.Name, &o.Description, &agentsJSON, &o.Strategy, &o.Status, &configJSON, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(agentsJSON, &o.Agents); err != nil {
		return o, fmt.Errorf("unmarshal agents: %w", err)
	}
	o.Agents = orEmpty(o.Agents)
	o.Config = json.RawMessage(configJSON)
	return o, nil
}

func (s *Store) CreateOrchestration(ctx context.Context, req orchestration.CreateRequest) (*orchestration.Orchestration, error) {
	agentsJSON, err := json.Marshal(orEmpty(req.Agents))
	if err != nil {
		return nil, fmt.Errorf("marshal agents: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO orchestrations (tenant_id, name, description, agents, strategy, status, config)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+orchestrationColumns,
		tenantFromCtx(ctx), req.Name, req.Description, agentsJSON, string(req.Strategy), string(req.Status),
		jsonOrDefault(req.Config, "{}"))

	o, err := scanOrchestration(row)
	if err != nil {
		return nil, fmt.Errorf("create orchestration: %w", err)
	}
	return &o, nil
}

func (s *Store) GetOrchestration(ctx context.Context, id string) (*orchestration.Orchestration, error) {
	if !validID(id) {
		return nil, errNotFound("orchestration", id)
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+orchestrationColumns+` FROM orchestrations WHERE id = $1 AND tenant_id = $2`, id, tenantFromCtx(ctx))

	o, err := scanOrchestration(row)
	if err != nil {
		return nil, notFoundWrap(err, "get orchestration %s", id)
	}
	return &o, nil
}

func (s *Store) ListOrchestrations(ctx context.Context) ([]orchestration.Orchestration, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orchestrationColumns+` FROM orchestrations WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantFromCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("list orchestrations: %w", err)
	}
	defer rows.Close()

	var out []orchestration.Orchestration
	for rows.Next() {
		o, err := scanOrchestration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan orchestration: %w", err)
		}
		out = append(out, o)
	}
	return orEmpty(out), rows.Err()
}

// UpdateOrchestration overwrites the mutable fields and refreshes
// o.UpdatedAt from the database.
func (s *Store) UpdateOrchestration(ctx context.Context, o *orchestration.Orchestration) error {
	agentsJSON, err := json.Marshal(orEmpty(o.Agents))
	if err != nil {
		return fmt.Errorf("marshal agents: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`UPDATE orchestrations
		 SET name = $3, description = $4, agents = $5, strategy = $6, status = $7, config = $8, updated_at = now()
		 WHERE id = $1 AND tenant_id = $2
		 RETURNING updated_at`,
		o.ID, tenantFromCtx(ctx), o.Name, o.Description, agentsJSON, string(o.Strategy), string(o.Status),
		jsonOrDefault(o.Config, "{}")).Scan(&o.UpdatedAt)
	if err != nil {
		return notFoundWrap(err, "update orchestration %s", o.ID)
	}
	return nil
}

// validID guards ids that reach UUID columns so malformed ids surface as
// not-found instead of a cast error.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

func errNotFound(kind, id string) error {
	return fmt.Errorf("get %s %s: %w", kind, id, domain.ErrNotFound)
}
