package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/Sofia/internal/adapter/otel"
	"github.com/Strob0t/Sofia/internal/domain/dispatch"
	"github.com/Strob0t/Sofia/internal/domain/execution"
	"github.com/Strob0t/Sofia/internal/domain/orchestration"
	"github.com/Strob0t/Sofia/internal/port/messagequeue"
	"github.com/Strob0t/Sofia/internal/port/notifier"
)

// DefaultDispatchTimeout bounds a single channel attempt.
const DefaultDispatchTimeout = 15 * time.Second

// DispatchService fans a completed execution out to the orchestration's
// enabled output channels. Channel failures are isolated from each other
// and never propagate to the caller.
type DispatchService struct {
	registry *notifier.Registry
	timeout  time.Duration
	queue    messagequeue.Queue
	metrics  *cfotel.Metrics
	now      func() time.Time
}

// NewDispatchService creates a DispatchService. A non-positive timeout
// falls back to DefaultDispatchTimeout.
func NewDispatchService(registry *notifier.Registry, timeout time.Duration) *DispatchService {
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	return &DispatchService{registry: registry, timeout: timeout, now: time.Now}
}

// SetQueue publishes one dispatch.result message per record.
func (s *DispatchService) SetQueue(q messagequeue.Queue) { s.queue = q }

// SetMetrics records dispatch attempts by type and status.
func (s *DispatchService) SetMetrics(m *cfotel.Metrics) { s.metrics = m }

// Dispatch sends the completion of exec to every enabled output of orch
// concurrently and waits for all of them. The output configuration is read
// from orch on every call.
func (s *DispatchService) Dispatch(ctx context.Context, orch *orchestration.Orchestration, exec *execution.Execution) []dispatch.Record {
	outputs, errs := orch.EnabledOutputs()
	for _, err := range errs {
		slog.WarnContext(ctx, "skipping invalid output config",
			"orchestration_id", orch.ID, "execution_id", exec.ID, "error", err)
	}
	records := make([]dispatch.Record, len(outputs))
	if len(outputs) == 0 {
		return records
	}

	// Delivery outlives the caller's request but keeps its values.
	ctx = context.WithoutCancel(ctx)
	note := notifier.Notification{
		Event:             notifier.EventOrchestrationCompleted,
		OrchestrationID:   orch.ID,
		OrchestrationName: orch.Name,
		ExecutionID:       exec.ID,
		Duration:          exec.Duration(),
		TokensUsed:        exec.TokensUsed,
		Output:            exec.Output,
		Timestamp:         s.now().UTC(),
	}

	var wg sync.WaitGroup
	for i, out := range outputs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records[i] = s.send(ctx, out, note)
		}()
	}
	wg.Wait()

	counts := dispatch.Counts(records)
	slog.InfoContext(ctx, "outputs dispatched",
		"execution_id", exec.ID,
		"sent", counts[dispatch.StatusSent],
		"failed", counts[dispatch.StatusFailed],
		"skipped", counts[dispatch.StatusSkipped],
	)
	for i := range records {
		s.report(ctx, exec.ID, &records[i])
	}
	return records
}

func (s *DispatchService) send(ctx context.Context, out orchestration.Output, note notifier.Notification) (rec dispatch.Record) {
	rec = dispatch.Record{
		Type:        out.Type(),
		Destination: out.Destination(),
		SentAt:      s.now().UTC(),
	}
	defer func() {
		if r := recover(); r != nil {
			rec.Status = dispatch.StatusFailed
			rec.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	n, err := s.registry.Get(out.Type())
	if err != nil {
		rec.Status = dispatch.StatusFailed
		rec.Error = err.Error()
		return rec
	}

	ctx, span := cfotel.StartDispatchSpan(ctx, note.ExecutionID, string(out.Type()))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = n.Send(ctx, out, note)
	switch {
	case errors.Is(err, notifier.ErrNotConfigured):
		rec.Status = dispatch.StatusSkipped
		rec.Error = err.Error()
		slog.InfoContext(ctx, "output channel not configured, skipped",
			"type", out.Type(), "execution_id", note.ExecutionID)
	case err != nil:
		span.RecordError(err)
		rec.Status = dispatch.StatusFailed
		rec.Error = err.Error()
		slog.WarnContext(ctx, "output dispatch failed",
			"type", out.Type(), "destination", out.Destination(),
			"execution_id", note.ExecutionID, "error", err)
	default:
		rec.Status = dispatch.StatusSent
	}
	return rec
}

func (s *DispatchService) report(ctx context.Context, executionID string, rec *dispatch.Record) {
	if s.metrics != nil {
		s.metrics.DispatchAttempts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", string(rec.Type)),
			attribute.String("status", string(rec.Status)),
		))
	}
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(messagequeue.DispatchResultPayload{
		ExecutionID: executionID,
		Type:        string(rec.Type),
		Destination: rec.Destination,
		Status:      string(rec.Status),
		Error:       rec.Error,
	})
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectDispatchResult, data); err != nil {
		slog.WarnContext(ctx, "publish dispatch result failed", "execution_id", executionID, "error", err)
	}
}
