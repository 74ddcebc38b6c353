package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	cfotel "github.com/Strob0t/Sofia/internal/adapter/otel"
	"github.com/Strob0t/Sofia/internal/domain"
	"github.com/Strob0t/Sofia/internal/domain/dispatch"
	"github.com/Strob0t/Sofia/internal/domain/execution"
	"github.com/Strob0t/Sofia/internal/domain/orchestration"
	"github.com/Strob0t/Sofia/internal/logger"
	"github.com/Strob0t/Sofia/internal/middleware"
	"github.com/Strob0t/Sofia/internal/port/broadcast"
	"github.com/Strob0t/Sofia/internal/port/database"
	"github.com/Strob0t/Sofia/internal/port/messagequeue"
)

// ExecuteRequest is the caller's input for one execution.
type ExecuteRequest struct {
	Input          json.RawMessage `json:"input"`
	ConversationID string          `json:"conversationId,omitempty"`
}

// ExecutionReport is the outcome of a successful execution.
type ExecutionReport struct {
	Execution *execution.Execution `json:"execution"`
	Dispatch  []dispatch.Record    `json:"dispatch"`
}

// ExecutionFailedError is returned when a run fails after its record was
// created. The record is already persisted as failed.
type ExecutionFailedError struct {
	ExecutionID string
	Err         error
}

func (e *ExecutionFailedError) Error() string { return e.Err.Error() }
func (e *ExecutionFailedError) Unwrap() error { return e.Err }

// ExecutionService owns the execution record: it creates it, tracks step
// progress, persists the terminal state and triggers output dispatch.
type ExecutionService struct {
	store      database.Store
	executor   *StrategyExecutor
	dispatcher *DispatchService
	hub        broadcast.Broadcaster
	queue      messagequeue.Queue
	metrics    *cfotel.Metrics
	workers    int
	now        func() time.Time
}

// NewExecutionService creates an ExecutionService. hub may be nil.
func NewExecutionService(store database.Store, executor *StrategyExecutor, dispatcher *DispatchService, hub broadcast.Broadcaster) *ExecutionService {
	if hub == nil {
		hub = broadcast.Nop{}
	}
	return &ExecutionService{
		store:      store,
		executor:   executor,
		dispatcher: dispatcher,
		hub:        hub,
		workers:    1,
		now:        time.Now,
	}
}

// SetQueue enables async execution and lifecycle events. workers bounds
// the number of queued executions running at once.
func (s *ExecutionService) SetQueue(q messagequeue.Queue, workers int) {
	s.queue = q
	if workers > 0 {
		s.workers = workers
	}
}

// SetMetrics attaches metric instruments.
func (s *ExecutionService) SetMetrics(m *cfotel.Metrics) { s.metrics = m }

// Get returns an execution by ID.
func (s *ExecutionService) Get(ctx context.Context, id string) (*execution.Execution, error) {
	return s.store.GetExecution(ctx, id)
}

// List returns the most recent executions of an orchestration.
func (s *ExecutionService) List(ctx context.Context, orchestrationID string, limit int) ([]execution.Execution, error) {
	return s.store.ListExecutions(ctx, orchestrationID, limit)
}

// Execute runs the orchestration synchronously. Validation failures return
// before any record exists. A failed run returns *ExecutionFailedError.
func (s *ExecutionService) Execute(ctx context.Context, orchestrationID string, req ExecuteRequest) (*ExecutionReport, error) {
	orch, err := s.store.GetOrchestration(ctx, orchestrationID)
	if err != nil {
		return nil, err
	}
	if err := orch.CheckRunnable(); err != nil {
		return nil, err
	}
	if len(req.Input) > 0 && !json.Valid(req.Input) {
		return nil, fmt.Errorf("%w: input is not valid JSON", domain.ErrValidation)
	}

	exec, err := s.store.CreateExecution(ctx, execution.CreateRequest{
		OrchestrationID: orch.ID,
		ConversationID:  req.ConversationID,
		Input:           req.Input,
	})
	if err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}

	ctx = logger.WithExecutionID(ctx, exec.ID)
	ctx, span := cfotel.StartExecutionSpan(ctx, exec.ID, orch.ID, string(orch.Strategy))
	defer span.End()

	slog.InfoContext(ctx, "execution started", "orchestration_id", orch.ID, "strategy", orch.Strategy, "steps", len(orch.Agents))
	s.countExecution(ctx, orch, "started")
	s.emit(ctx, messagequeue.SubjectExecutionStarted, exec)

	obs := &progressObserver{svc: s, exec: exec, persist: orch.Strategy == orchestration.StrategySequential}
	// The stored input is normalized by the database; the steps get the caller's bytes.
	res, runErr := s.executor.Run(ctx, orch, req.Input, obs)

	// Terminal writes must land even when the caller went away.
	wctx := context.WithoutCancel(ctx)
	if runErr != nil {
		span.RecordError(runErr)
		return nil, s.fail(wctx, orch, exec, res, runErr)
	}

	output, err := json.Marshal(res.Output)
	if err != nil {
		return nil, s.fail(wctx, orch, exec, res, fmt.Errorf("encode output: %w", err))
	}
	patch := execution.Complete(output, res.AgentResults, res.TokensUsed, s.now().UTC())
	if err := s.store.UpdateExecution(wctx, exec.ID, patch); err != nil {
		span.RecordError(err)
		return nil, s.fail(wctx, orch, exec, res, fmt.Errorf("persist completed execution: %w", err))
	}
	if err := patch.Apply(exec); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "execution completed", "orchestration_id", orch.ID, "tokens_used", exec.TokensUsed, "duration_ms", exec.Duration().Milliseconds())
	s.countExecution(ctx, orch, "completed")
	if s.metrics != nil {
		s.metrics.TokensUsed.Add(ctx, int64(exec.TokensUsed))
		s.metrics.ExecutionDuration.Record(ctx, exec.Duration().Seconds())
	}
	s.emit(wctx, messagequeue.SubjectExecutionCompleted, exec)

	records := s.dispatcher.Dispatch(wctx, orch, exec)
	return &ExecutionReport{Execution: exec, Dispatch: records}, nil
}

func (s *ExecutionService) fail(ctx context.Context, orch *orchestration.Orchestration, exec *execution.Execution, res *StrategyResult, cause error) error {
	var (
		results []execution.AgentResult
		tokens  int
	)
	if res != nil {
		results = res.AgentResults
		tokens = res.TokensUsed
	}
	if results == nil {
		results = []execution.AgentResult{}
	}

	patch := execution.Fail(cause, results, tokens, s.now().UTC())
	if err := s.store.UpdateExecution(ctx, exec.ID, patch); err != nil {
		slog.ErrorContext(ctx, "persist failed execution", "orchestration_id", orch.ID, "error", err)
	} else if err := patch.Apply(exec); err != nil {
		slog.ErrorContext(ctx, "apply failed execution", "error", err)
	}

	slog.WarnContext(ctx, "execution failed", "orchestration_id", orch.ID, "completed_steps", len(results), "error", cause)
	s.countExecution(ctx, orch, "failed")
	s.emit(ctx, messagequeue.SubjectExecutionFailed, exec)

	return &ExecutionFailedError{ExecutionID: exec.ID, Err: cause}
}

// Enqueue validates the orchestration and publishes an async execution
// request. It returns the request ID.
func (s *ExecutionService) Enqueue(ctx context.Context, orchestrationID string, req ExecuteRequest) (string, error) {
	if s.queue == nil {
		return "", fmt.Errorf("%w: async execution is not available", domain.ErrValidation)
	}
	orch, err := s.store.GetOrchestration(ctx, orchestrationID)
	if err != nil {
		return "", err
	}
	if err := orch.CheckRunnable(); err != nil {
		return "", err
	}

	input := req.Input
	if len(input) == 0 {
		input = json.RawMessage(`null`)
	}
	requestID := uuid.NewString()
	data, err := json.Marshal(messagequeue.ExecutionRequestedPayload{
		RequestID:       requestID,
		TenantID:        middleware.TenantIDFromContext(ctx),
		OrchestrationID: orch.ID,
		ConversationID:  req.ConversationID,
		Input:           input,
	})
	if err != nil {
		return "", fmt.Errorf("encode execution request: %w", err)
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectExecutionRequested, data); err != nil {
		return "", fmt.Errorf("enqueue execution: %w", err)
	}
	slog.InfoContext(ctx, "execution enqueued", "orchestration_id", orch.ID, "request_id", requestID)
	return requestID, nil
}

// StartRequestSubscriber consumes async execution requests. At most
// workers executions run concurrently; the consumer blocks while all
// slots are busy.
func (s *ExecutionService) StartRequestSubscriber(ctx context.Context) (func(), error) {
	if s.queue == nil {
		return func() {}, nil
	}
	sem := semaphore.NewWeighted(int64(s.workers))

	return s.queue.Subscribe(ctx, messagequeue.SubjectExecutionRequested, func(msgCtx context.Context, _ string, data []byte) error {
		var p messagequeue.ExecutionRequestedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode execution request: %w", err)
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}

		runCtx := middleware.WithTenantID(context.WithoutCancel(msgCtx), p.TenantID)
		go func() {
			defer sem.Release(1)
			s.runQueued(runCtx, &p)
		}()
		return nil
	})
}

func (s *ExecutionService) runQueued(ctx context.Context, p *messagequeue.ExecutionRequestedPayload) {
	input := p.Input
	if string(input) == "null" {
		input = nil
	}
	_, err := s.Execute(ctx, p.OrchestrationID, ExecuteRequest{Input: input, ConversationID: p.ConversationID})
	var failed *ExecutionFailedError
	switch {
	case err == nil, errors.As(err, &failed):
		// Outcome is on the execution record.
	default:
		slog.ErrorContext(ctx, "queued execution rejected",
			"request_id", p.RequestID, "orchestration_id", p.OrchestrationID, "error", err)
	}
}

func (s *ExecutionService) countExecution(ctx context.Context, orch *orchestration.Orchestration, phase string) {
	if s.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("strategy", string(orch.Strategy)))
	switch phase {
	case "started":
		s.metrics.ExecutionsStarted.Add(ctx, 1, attrs)
	case "completed":
		s.metrics.ExecutionsCompleted.Add(ctx, 1, attrs)
	case "failed":
		s.metrics.ExecutionsFailed.Add(ctx, 1, attrs)
	}
}

// emit broadcasts the execution status and publishes the lifecycle event.
func (s *ExecutionService) emit(ctx context.Context, subject string, exec *execution.Execution) {
	s.hub.BroadcastEvent(ctx, broadcast.EventExecutionStatus, broadcast.ExecutionStatusEvent{
		ExecutionID:     exec.ID,
		OrchestrationID: exec.OrchestrationID,
		Status:          string(exec.Status),
		Error:           exec.Error,
	})
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(messagequeue.ExecutionEventPayload{
		ExecutionID:     exec.ID,
		OrchestrationID: exec.OrchestrationID,
		TenantID:        middleware.TenantIDFromContext(ctx),
		Status:          string(exec.Status),
		Output:          exec.Output,
		Error:           exec.Error,
		TokensUsed:      exec.TokensUsed,
		DurationMs:      exec.Duration().Milliseconds(),
	})
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.WarnContext(ctx, "publish execution event failed", "subject", subject, "error", err)
	}
}

// progressObserver records step progress on the execution row. Only
// sequential runs persist progress; concurrent strategies just broadcast.
type progressObserver struct {
	svc     *ExecutionService
	exec    *execution.Execution
	persist bool
	done    []execution.AgentResult
}

func (o *progressObserver) StepStarted(ctx context.Context, step orchestration.AgentStep) {
	o.broadcast(ctx, step, "started")
	if !o.persist {
		return
	}
	o.save(ctx, step.AgentID)
}

func (o *progressObserver) StepFinished(ctx context.Context, step orchestration.AgentStep, result execution.AgentResult) {
	if o.svc.metrics != nil {
		o.svc.metrics.StepsRun.Add(ctx, 1)
	}
	o.broadcast(ctx, step, "finished")
	if !o.persist {
		return
	}
	o.done = append(o.done, result)
	o.save(ctx, step.AgentID)
}

func (o *progressObserver) save(ctx context.Context, agentID string) {
	results := make([]execution.AgentResult, len(o.done))
	copy(results, o.done)
	patch := execution.Progress(agentID, results)
	if err := o.svc.store.UpdateExecution(ctx, o.exec.ID, patch); err != nil {
		slog.WarnContext(ctx, "persist step progress failed", "agent_id", agentID, "error", err)
		return
	}
	o.exec.CurrentAgentID = agentID
	o.exec.AgentResults = results
}

func (o *progressObserver) broadcast(ctx context.Context, step orchestration.AgentStep, phase string) {
	o.svc.hub.BroadcastEvent(ctx, broadcast.EventExecutionStep, broadcast.ExecutionStepEvent{
		ExecutionID:     o.exec.ID,
		OrchestrationID: o.exec.OrchestrationID,
		AgentID:         step.AgentID,
		Role:            step.Role,
		Phase:           phase,
	})
}
