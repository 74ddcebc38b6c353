package nats

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/Sofia/internal/logger"
	"github.com/Strob0t/Sofia/internal/port/messagequeue"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

// uniqueSubject returns a subject under "executions.test." which the
// stream captures and the validator accepts as any valid JSON.
func uniqueSubject(t *testing.T) string {
	t.Helper()
	return "executions.test." + t.Name()
}

// dlqWatch consumes only new messages on subject+".dlq".
func dlqWatch(t *testing.T, q *Queue, subject string) <-chan []byte {
	t.Helper()
	ctx := context.Background()

	c, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject + dlqSuffix,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		t.Fatalf("create DLQ consumer: %v", err)
	}

	out := make(chan []byte, 1)
	var once sync.Once
	sub, err := c.Consume(func(msg jetstream.Msg) {
		once.Do(func() { out <- msg.Data() })
		_ = msg.Ack()
	})
	if err != nil {
		t.Fatalf("consume DLQ: %v", err)
	}
	t.Cleanup(sub.Stop)
	return out
}

func TestConsumerName(t *testing.T) {
	tests := []struct {
		subject string
		want    string
	}{
		{"executions.requested", "sofia-executions-requested"},
		{"dispatch.*", "sofia-dispatch-star"},
		{"executions.>", "sofia-executions-all"},
	}
	for _, tt := range tests {
		if got := consumerName(tt.subject); got != tt.want {
			t.Errorf("consumerName(%q) = %q, want %q", tt.subject, got, tt.want)
		}
	}
}

func TestQueue_PublishSubscribe(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)

	type payload struct {
		Msg string `json:"msg"`
	}
	data, err := json.Marshal(payload{Msg: "hello-nats"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got := make(chan payload, 1)
	var once sync.Once
	stop, err := q.Subscribe(context.Background(), subject, func(_ context.Context, _ string, d []byte) error {
		var p payload
		if err := json.Unmarshal(d, &p); err != nil {
			return err
		}
		once.Do(func() { got <- p })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case p := <-got:
		if p.Msg != "hello-nats" {
			t.Errorf("got %q, want %q", p.Msg, "hello-nats")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestQueue_RequestIDPropagation(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)

	got := make(chan string, 1)
	var once sync.Once
	stop, err := q.Subscribe(context.Background(), subject, func(ctx context.Context, _ string, _ []byte) error {
		once.Do(func() { got <- logger.RequestID(ctx) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	ctx := logger.WithRequestID(context.Background(), "req-abc-123")
	if err := q.Publish(ctx, subject, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case id := <-got:
		if id != "req-abc-123" {
			t.Errorf("request ID = %q, want %q", id, "req-abc-123")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestQueue_PublishRejectsInvalidPayload(t *testing.T) {
	q := testConnect(t)

	err := q.Publish(context.Background(), messagequeue.SubjectExecutionRequested, []byte(`{"tenant_id":"t"}`))
	if err == nil {
		t.Fatal("expected validation error for missing orchestration_id")
	}
}

func TestQueue_DLQ_InvalidMessage(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()
	subject := messagequeue.SubjectExecutionRequested
	dlq := dlqWatch(t, q, subject)

	stop, err := q.Subscribe(ctx, subject, func(_ context.Context, _ string, _ []byte) error { return nil })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	// Bypass publish-side validation to simulate a foreign producer.
	if err := q.publish(ctx, subject, []byte("not-json")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case data := <-dlq:
		if string(data) != "not-json" {
			t.Errorf("DLQ data = %q, want %q", data, "not-json")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for DLQ message")
	}
}

func TestQueue_DLQ_RetryExhaustion(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()
	subject := uniqueSubject(t)
	dlq := dlqWatch(t, q, subject)

	stop, err := q.Subscribe(ctx, subject, func(_ context.Context, _ string, _ []byte) error {
		return errors.New("handler always fails")
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(ctx, subject, []byte(`{"exhausted":true}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case data := <-dlq:
		if string(data) != `{"exhausted":true}` {
			t.Errorf("DLQ data = %q", data)
		}
	case <-time.After(20 * time.Second):
		t.Fatal("timed out waiting for DLQ message after retry exhaustion")
	}
}

func TestQueue_IsConnected(t *testing.T) {
	q := testConnect(t)
	if !q.IsConnected() {
		t.Error("IsConnected() = false after Connect, want true")
	}
}
