// Package slack implements a notifier.Notifier for Slack incoming webhooks.
package slack

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

// Notifier sends completion summaries to Slack.
type Notifier struct {
	httpClient *http.Client
}

var _ notifier.Notifier = (*Notifier)(nil)

// NewNotifier creates a Slack notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (n *Notifier) Name() orchestration.OutputType { return orchestration.OutputSlack }

// slackMessage is the Slack Block Kit message payload.
type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// buildMessage renders the two-block summary: a header line with name,
// duration and tokens, then the human-readable output.
func buildMessage(note notifier.Notification) slackMessage {
	header := fmt.Sprintf("✅ *%s* concluída em %.1fs · %d tokens",
		note.OrchestrationName, note.Duration.Seconds(), note.TokensUsed)
	text := dispatch.OutputText(note.Output)
	if text == "" {
		text = "_(sem saída)_"
	}

	return slackMessage{
		Text: fmt.Sprintf("Orquestração %s concluída", note.OrchestrationName),
		Blocks: []slackBlock{
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: header}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: text}},
		},
	}
}

// Send posts the summary to the output's webhook URL. Non-2xx is an error.
func (n *Notifier) Send(ctx context.Context, target orchestration.Output, note notifier.Notification) error {
	out, ok := target.(orchestration.SlackOutput)
	if !ok {
		return fmt.Errorf("slack: unexpected output type %s", target.Type())
	}

	body, err := json.Marshal(buildMessage(note))
	if err != nil {
		return fmt.Errorf("slack marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, out.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req) //nolint:gosec // webhook URL configured by the orchestration owner
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack API %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
