// Package webhook implements a notifier.Notifier that POSTs a signed JSON
// completion payload to a user-configured URL.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Strob0t/Sofia/internal/domain/dispatch"
	"github.com/Strob0t/Sofia/internal/domain/orchestration"
	"github.com/Strob0t/Sofia/internal/port/notifier"
)

const maxErrorBody = 512

// Payload is the JSON body sent to webhook outputs.
type Payload struct {
	Event             string          `json:"event"`
	OrchestrationID   string          `json:"orchestrationId"`
	OrchestrationName string          `json:"orchestrationName"`
	ExecutionID       string          `json:"executionId"`
	DurationMs        int64           `json:"durationMs"`
	TokensUsed        int             `json:"tokensUsed"`
	Output            json.RawMessage `json:"output"`
	Timestamp         string          `json:"timestamp"`
}

// NewPayload builds the wire payload for n. The timestamp is ISO-8601 UTC
// with millisecond precision.
func NewPayload(n notifier.Notification) Payload {
	out := n.Output
	if len(out) == 0 {
		out = json.RawMessage("null")
	}
	return Payload{
		Event:             n.Event,
		OrchestrationID:   n.OrchestrationID,
		OrchestrationName: n.OrchestrationName,
		ExecutionID:       n.ExecutionID,
		DurationMs:        n.Duration.Milliseconds(),
		TokensUsed:        n.TokensUsed,
		Output:            out,
		Timestamp:         n.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// Notifier delivers webhook outputs.
type Notifier struct {
	defaultSecret func() string
	httpClient    *http.Client
}

var _ notifier.Notifier = (*Notifier)(nil)

// NewNotifier creates a webhook notifier. defaultSecret signs payloads for
// outputs that carry no secret of their own; empty disables the fallback.
func NewNotifier(defaultSecret string) *Notifier {
	return &Notifier{
		defaultSecret: func() string { return defaultSecret },
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SetSecretSource replaces the fallback secret with a getter that is
// consulted on every send.
func (n *Notifier) SetSecretSource(fn func() string) { n.defaultSecret = fn }

func (n *Notifier) Name() orchestration.OutputType { return orchestration.OutputWebhook }

// Send POSTs the payload. Any non-2xx response is an error.
func (n *Notifier) Send(ctx context.Context, target orchestration.Output, note notifier.Notification) error {
	out, ok := target.(orchestration.WebhookOutput)
	if !ok {
		return fmt.Errorf("webhook: unexpected output type %s", target.Type())
	}

	body, err := json.Marshal(NewPayload(note))
	if err != nil {
		return fmt.Errorf("webhook marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, out.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Sofia-Webhook/1.0")

	secret := out.Secret
	if secret == "" {
		secret = n.defaultSecret()
	}
	if secret != "" {
		req.Header.Set(dispatch.SignatureHeader, dispatch.Sign(secret, body))
	}

	resp, err := n.httpClient.Do(req) //nolint:gosec // URL is configured by the orchestration owner
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("webhook HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
