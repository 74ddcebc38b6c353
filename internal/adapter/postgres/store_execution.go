package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/Sofia/internal/domain"
	"github.com/Strob0t/Sofia/internal/domain/execution"
)

const executionColumns = `id, orchestration_id, COALESCE(conversation_id, ''), input, status, current_agent_id,
	agent_results, output, error, tokens_used, started_at, completed_at`

func scanExecution(row scannable) (execution.Execution, error) {
	var (
		e           execution.Execution
		inputJSON   []byte
		resultsJSON []byte
		outputJSON  []byte
	)
	err := row.Scan(&e.ID, &e.OrchestrationID, &e.ConversationID, &inputJSON, &e.Status, &e.CurrentAgentID,
		&resultsJSON, &outputJSON, &e.Error, &e.TokensUsed, &e.StartedAt, &e.CompletedAt)
	if err != nil {
		return e, err
	}
	e.Input = json.RawMessage(inputJSON)
	if len(outputJSON) > 0 {
		e.Output = json.RawMessage(outputJSON)
	}
	if err := json.Unmarshal(resultsJSON, &e.AgentResults); err != nil {
		return e, fmt.Errorf("unmarshal agent results: %w", err)
	}
	e.AgentResults = orEmpty(e.AgentResults)
	return e, nil
}

// CreateExecution opens the row directly in the running state.
func (s *Store) CreateExecution(ctx context.Context, req execution.CreateRequest) (*execution.Execution, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO executions (tenant_id, orchestration_id, conversation_id, input, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+executionColumns,
		tenantFromCtx(ctx), req.OrchestrationID, nullIfEmpty(req.ConversationID),
		jsonOrDefault(req.Input, "null"), string(execution.StatusRunning))

	e, err := scanExecution(row)
	if err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	return &e, nil
}

// UpdateExecution applies patch. Terminal rows are never modified: the
// update matches only non-terminal rows and reports domain.ErrConflict
// when the row exists but is already completed or failed.
func (s *Store) UpdateExecution(ctx context.Context, id string, patch execution.Patch) error {
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("update execution %s: %w: %w", id, domain.ErrValidation, err)
	}

	var resultsJSON any
	if patch.AgentResults != nil {
		b, err := json.Marshal(patch.AgentResults)
		if err != nil {
			return fmt.Errorf("marshal agent results: %w", err)
		}
		resultsJSON = jsonbSafe(b)
	}
	var errText *string
	if patch.Error != nil {
		e := textSafe(*patch.Error)
		errText = &e
	}
	var status *string
	if patch.Status != nil {
		st := string(*patch.Status)
		status = &st
	}

	tid := tenantFromCtx(ctx)
	tag, err := s.pool.Exec(ctx,
		`UPDATE executions SET
			status           = COALESCE($3, status),
			current_agent_id = COALESCE($4, current_agent_id),
			agent_results    = COALESCE($5, agent_results),
			output           = COALESCE($6, output),
			error            = COALESCE($7, error),
			tokens_used      = COALESCE($8, tokens_used),
			completed_at     = COALESCE($9, completed_at)
		 WHERE id = $1 AND tenant_id = $2 AND status NOT IN ('completed', 'failed')`,
		id, tid, status, patch.CurrentAgentID, resultsJSON, jsonOrNil(patch.Output),
		errText, patch.TokensUsed, patch.CompletedAt)
	if err != nil {
		return fmt.Errorf("update execution %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM executions WHERE id = $1 AND tenant_id = $2`, id, tid).Scan(&current)
	if err != nil {
		return notFoundWrap(err, "update execution %s", id)
	}
	return fmt.Errorf("update execution %s (status %s): %w", id, current, domain.ErrConflict)
}

func (s *Store) GetExecution(ctx context.Context, id string) (*execution.Execution, error) {
	if !validID(id) {
		return nil, errNotFound("execution", id)
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE id = $1 AND tenant_id = $2`, id, tenantFromCtx(ctx))

	e, err := scanExecution(row)
	if err != nil {
		return nil, notFoundWrap(err, "get execution %s", id)
	}
	return &e, nil
}

// ListExecutions returns the most recent executions of an orchestration,
// newest first.
func (s *Store) ListExecutions(ctx context.Context, orchestrationID string, limit int) ([]execution.Execution, error) {
	if !validID(orchestrationID) {
		return []execution.Execution{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+executionColumns+` FROM executions
		 WHERE tenant_id = $1 AND orchestration_id = $2
		 ORDER BY started_at DESC LIMIT $3`,
		tenantFromCtx(ctx), orchestrationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []execution.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, e)
	}
	return orEmpty(out), rows.Err()
}
