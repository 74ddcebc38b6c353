package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/Sofia/internal/domain/dispatch"
	"github.com/Strob0t/Sofia/internal/domain/execution"
	"github.com/Strob0t/Sofia/internal/domain/orchestration"
	"github.com/Strob0t/Sofia/internal/port/messagequeue"
	"github.com/Strob0t/Sofia/internal/port/notifier"
)

func completedExecution() *execution.Execution {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(1500 * time.Millisecond)
	return &execution.Execution{
		ID:              "e1",
		OrchestrationID: "o1",
		Status:          execution.StatusCompleted,
		Output:          json.RawMessage(`"done"`),
		TokensUsed:      42,
		StartedAt:       start,
		CompletedAt:     &end,
	}
}

func orchWithOutputs(outputs string) *orchestration.Orchestration {
	return &orchestration.Orchestration{
		ID:     "o1",
		Name:   "Daily report",
		Config: json.RawMessage(`{"outputWebhooks":` + outputs + `}`),
	}
}

func TestDispatchNoOutputs(t *testing.T) {
	svc := NewDispatchService(notifier.NewRegistry(), time.Second)

	for _, orch := range []*orchestration.Orchestration{
		{ID: "o1"},
		orchWithOutputs(`[]`),
		orchWithOutputs(`[{"type":"slack","webhookUrl":"https://hooks.slack.com/x","enabled":false}]`),
	} {
		records := svc.Dispatch(context.Background(), orch, completedExecution())
		if records == nil || len(records) != 0 {
			t.Errorf("expected empty non-nil records, got %#v", records)
		}
	}
}

func TestDispatchIsolatesChannelFailures(t *testing.T) {
	hook := &fakeNotifier{name: orchestration.OutputWebhook, err: errors.New("webhook returned 500")}
	slack := &fakeNotifier{name: orchestration.OutputSlack}
	email := &fakeNotifier{name: orchestration.OutputEmail, err: notifier.ErrNotConfigured}
	q := newFakeQueue()
	svc := NewDispatchService(notifier.NewRegistry(hook, slack, email), time.Second)
	svc.SetQueue(q)

	orch := orchWithOutputs(`[
		{"type":"webhook","url":"https://hooks.example.com/a","enabled":true},
		{"type":"bogus","enabled":true},
		{"type":"slack","webhookUrl":"https://hooks.slack.com/b","enabled":true},
		{"type":"email","to":"ops@example.com","enabled":true}
	]`)
	records := svc.Dispatch(context.Background(), orch, completedExecution())

	if len(records) != 3 {
		t.Fatalf("records = %d, want 3 (invalid entry skipped)", len(records))
	}
	want := []struct {
		typ    orchestration.OutputType
		status dispatch.Status
	}{
		{orchestration.OutputWebhook, dispatch.StatusFailed},
		{orchestration.OutputSlack, dispatch.StatusSent},
		{orchestration.OutputEmail, dispatch.StatusSkipped},
	}
	for i, w := range want {
		if records[i].Type != w.typ || records[i].Status != w.status {
			t.Errorf("record %d = %+v, want %s/%s", i, records[i], w.typ, w.status)
		}
		if records[i].SentAt.IsZero() {
			t.Errorf("record %d has no SentAt", i)
		}
	}
	if records[0].Error != "webhook returned 500" {
		t.Errorf("webhook error = %q", records[0].Error)
	}
	if records[1].Destination != "https://hooks.slack.com/b" {
		t.Errorf("slack destination = %q", records[1].Destination)
	}

	n := slack.sent[0]
	if n.Event != notifier.EventOrchestrationCompleted || n.OrchestrationName != "Daily report" || n.TokensUsed != 42 {
		t.Errorf("notification = %+v", n)
	}
	if n.Duration != 1500*time.Millisecond {
		t.Errorf("duration = %v", n.Duration)
	}
	if got := len(q.messages(messagequeue.SubjectDispatchResult)); got != 3 {
		t.Errorf("dispatch.result messages = %d, want 3", got)
	}
}

func TestDispatchTimeoutPerChannel(t *testing.T) {
	slow := &fakeNotifier{name: orchestration.OutputWebhook, delay: time.Second}
	fast := &fakeNotifier{name: orchestration.OutputSlack}
	svc := NewDispatchService(notifier.NewRegistry(slow, fast), 50*time.Millisecond)

	orch := orchWithOutputs(`[
		{"type":"webhook","url":"https://slow.example.com","enabled":true},
		{"type":"slack","webhookUrl":"https://hooks.slack.com/c","enabled":true}
	]`)

	start := time.Now()
	records := svc.Dispatch(context.Background(), orch, completedExecution())
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("dispatch took %v, per-channel timeout not applied", time.Since(start))
	}
	if records[0].Status != dispatch.StatusFailed || records[1].Status != dispatch.StatusSent {
		t.Errorf("records = %+v", records)
	}
}

func TestDispatchUnregisteredType(t *testing.T) {
	svc := NewDispatchService(notifier.NewRegistry(), time.Second)
	records := svc.Dispatch(context.Background(),
		orchWithOutputs(`[{"type":"email","to":"a@b.c","enabled":true}]`), completedExecution())
	if len(records) != 1 || records[0].Status != dispatch.StatusFailed {
		t.Fatalf("records = %+v", records)
	}
}

func TestDispatchSurvivesCancelledCaller(t *testing.T) {
	hook := &fakeNotifier{name: orchestration.OutputWebhook}
	svc := NewDispatchService(notifier.NewRegistry(hook), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	records := svc.Dispatch(ctx, orchWithOutputs(`[{"type":"webhook","url":"https://x.example.com","enabled":true}]`), completedExecution())
	if records[0].Status != dispatch.StatusSent {
		t.Errorf("status = %s, want sent", records[0].Status)
	}
}
