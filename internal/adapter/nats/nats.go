// Package nats implements the message queue port using NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/Sofia/internal/logger"
	"github.com/Strob0t/Sofia/internal/port/messagequeue"
)

const (
	streamName = "SOFIA"

	headerRequestID = "X-Request-ID"

	// maxDeliver is the number of delivery attempts before a message is
	// moved to its dead-letter subject.
	maxDeliver = 3

	dlqSuffix = ".dlq"
)

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
func Connect(ctx context.Context, url string) (*Queue, error) {
	nc, err := nats.Connect(url,
		nats.Name("sofia-orchestrator"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"executions.>", "dispatch.>"},
		MaxAge:   24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Queue{nc: nc, js: js}, nil
}

// JetStream exposes the JetStream context for key-value buckets.
func (q *Queue) JetStream() jetstream.JetStream { return q.js }

// Publish validates data against the subject schema and sends it. The
// request id carried by ctx travels as a message header.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := messagequeue.Validate(subject, data); err != nil {
		return err
	}
	return q.publish(ctx, subject, data)
}

func (q *Queue) publish(ctx context.Context, subject string, data []byte) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	if reqID := logger.RequestID(ctx); reqID != "" {
		msg.Header.Set(headerRequestID, reqID)
	}
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject.
// Messages failing schema validation, or failing the handler maxDeliver
// times, are republished to "<subject>.dlq" and acknowledged.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Durable:       consumerName(subject),
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    maxDeliver + 1,
		AckWait:       5 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		q.handle(msg, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

func (q *Queue) handle(msg jetstream.Msg, handler messagequeue.Handler) {
	ctx := context.Background()
	if h := msg.Headers(); h != nil {
		if reqID := h.Get(headerRequestID); reqID != "" {
			ctx = logger.WithRequestID(ctx, reqID)
		}
	}
	subject := msg.Subject()

	if err := messagequeue.Validate(subject, msg.Data()); err != nil {
		slog.Warn("invalid message, moving to dlq", "subject", subject, "error", err)
		q.deadLetter(ctx, msg)
		return
	}

	if err := handler(ctx, subject, msg.Data()); err != nil {
		attempts := 1
		if meta, metaErr := msg.Metadata(); metaErr == nil {
			attempts = int(meta.NumDelivered)
		}
		slog.Error("message handler failed", "subject", subject, "attempt", attempts, "error", err)
		if attempts >= maxDeliver {
			q.deadLetter(ctx, msg)
			return
		}
		if nakErr := msg.NakWithDelay(time.Duration(attempts) * time.Second); nakErr != nil {
			slog.Error("nats nak failed", "error", nakErr)
		}
		return
	}
	if ackErr := msg.Ack(); ackErr != nil {
		slog.Error("nats ack failed", "error", ackErr)
	}
}

func (q *Queue) deadLetter(ctx context.Context, msg jetstream.Msg) {
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := q.publish(pubCtx, msg.Subject()+dlqSuffix, msg.Data()); err != nil {
		slog.Error("dlq publish failed", "subject", msg.Subject(), "error", err)
		return
	}
	if err := msg.Ack(); err != nil {
		slog.Error("nats ack failed", "error", err)
	}
}

// consumerName derives a durable consumer name from a subject filter.
// Durable names may not contain '.', '*' or '>'.
func consumerName(subject string) string {
	r := strings.NewReplacer(".", "-", "*", "star", ">", "all")
	return "sofia-" + r.Replace(subject)
}

// IsConnected reports whether the underlying connection is up.
func (q *Queue) IsConnected() bool { return q.nc.IsConnected() }

// Close drains and shuts down the NATS connection.
func (q *Queue) Close() error {
	if err := q.nc.Drain(); err != nil {
		q.nc.Close()
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}
