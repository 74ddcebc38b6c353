// Package email implements a notifier.Notifier on top of a transactional
// email provider's HTTP API (Resend-compatible POST /emails).
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Strob0t/Sofia/internal/domain/dispatch"
	"github.com/Strob0t/Sofia/internal/domain/orchestration"
	"github.com/Strob0t/Sofia/internal/port/notifier"
)

// Config holds the provider credentials. An empty APIKey disables sending.
type Config struct {
	APIKey string
	APIURL string
	From   string
}

// Notifier sends completion summaries by email.
type Notifier struct {
	cfg        Config
	httpClient *http.Client
}

var _ notifier.Notifier = (*Notifier)(nil)

// NewNotifier creates an email notifier.
func NewNotifier(cfg Config) *Notifier {
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &Notifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (n *Notifier) Name() orchestration.OutputType { return orchestration.OutputEmail }

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// DefaultSubject is used when the output does not override the subject.
func DefaultSubject(orchestrationName string) string {
	return `Orquestração "` + orchestrationName + `" concluída`
}

// renderHTML builds the message body. All user-provided text is escaped.
func renderHTML(note notifier.Notification) string {
	var b strings.Builder
	b.WriteString(`<div style="font-family:sans-serif">`)
	fmt.Fprintf(&b, "<h2>✅ %s</h2>", html.EscapeString(note.OrchestrationName))
	fmt.Fprintf(&b, "<p>Duração: %.1fs &middot; Tokens: %d</p>", note.Duration.Seconds(), note.TokensUsed)
	fmt.Fprintf(&b, `<pre style="white-space:pre-wrap">%s</pre>`, html.EscapeString(dispatch.OutputText(note.Output)))
	fmt.Fprintf(&b, `<p style="color:#888;font-size:12px">Execução %s</p>`, html.EscapeString(note.ExecutionID))
	b.WriteString("</div>")
	return b.String()
}

// Send delivers the summary. Without an API key it returns
// notifier.ErrNotConfigured and sends nothing.
func (n *Notifier) Send(ctx context.Context, target orchestration.Output, note notifier.Notification) error {
	if n.cfg.APIKey == "" {
		return notifier.ErrNotConfigured
	}
	out, ok := target.(orchestration.EmailOutput)
	if !ok {
		return fmt.Errorf("email: unexpected output type %s", target.Type())
	}

	subject := out.Subject
	if subject == "" {
		subject = DefaultSubject(note.OrchestrationName)
	}

	body, err := json.Marshal(sendRequest{
		From:    n.cfg.From,
		To:      out.Recipients(),
		Subject: subject,
		HTML:    renderHTML(note),
	})
	if err != nil {
		return fmt.Errorf("email marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.APIURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.cfg.APIKey)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("email provider %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
