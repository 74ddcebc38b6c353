package orchestration

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// OutputType discriminates the output channel variants.
type OutputType string

const (
	OutputWebhook OutputType = "webhook"
	OutputEmail   OutputType = "email"
	OutputSlack   OutputType = "slack"
)

var (
	ErrOutputUnknownType = errors.New("unknown output type")
	ErrOutputMissingURL  = errors.New("url is required")
	ErrOutputMissingTo   = errors.New("to is required")
	ErrOutputInvalidURL  = errors.New("url must be http or https")
)

// Output is a notification channel configured on an orchestration. The
// concrete types are WebhookOutput, EmailOutput and SlackOutput.
type Output interface {
	Type() OutputType
	IsEnabled() bool
	// Destination identifies where the notification goes (URL or address).
	Destination() string
	validate() error
}

// WebhookOutput posts a signed JSON payload to URL.
type WebhookOutput struct {
	URL     string `json:"url"`
	Secret  string `json:"secret,omitempty"` //nolint:gosec // G117: config field name
	Enabled bool   `json:"enabled"`
}

func (WebhookOutput) Type() OutputType      { return OutputWebhook }
func (w WebhookOutput) IsEnabled() bool     { return w.Enabled }
func (w WebhookOutput) Destination() string { return w.URL }
func (w WebhookOutput) validate() error     { return checkURL(w.URL) }

// EmailOutput sends an HTML summary to one or more comma-separated addresses.
type EmailOutput struct {
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Enabled bool   `json:"enabled"`
}

func (EmailOutput) Type() OutputType      { return OutputEmail }
func (e EmailOutput) IsEnabled() bool     { return e.Enabled }
func (e EmailOutput) Destination() string { return e.To }

func (e EmailOutput) validate() error {
	if strings.TrimSpace(e.To) == "" {
		return ErrOutputMissingTo
	}
	return nil
}

// Recipients splits To on commas and drops empty entries.
func (e EmailOutput) Recipients() []string {
	parts := strings.Split(e.To, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SlackOutput posts a Block Kit message to a Slack incoming webhook.
type SlackOutput struct {
	WebhookURL string `json:"webhookUrl"`
	Enabled    bool   `json:"enabled"`
}

func (SlackOutput) Type() OutputType      { return OutputSlack }
func (s SlackOutput) IsEnabled() bool     { return s.Enabled }
func (s SlackOutput) Destination() string { return s.WebhookURL }
func (s SlackOutput) validate() error     { return checkURL(s.WebhookURL) }

func checkURL(u string) error {
	switch {
	case u == "":
		return ErrOutputMissingURL
	case strings.HasPrefix(u, "http://"), strings.HasPrefix(u, "https://"):
		return nil
	default:
		return ErrOutputInvalidURL
	}
}

// outputsEnvelope is the shape of Orchestration.Config.
type outputsEnvelope struct {
	OutputWebhooks []json.RawMessage `json:"outputWebhooks"`
}

// DecodeOutput decodes a single output entry using its "type" discriminator.
func DecodeOutput(raw json.RawMessage) (Output, error) {
	var head struct {
		Type OutputType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode output: %w", err)
	}

	var (
		out Output
		err error
	)
	switch head.Type {
	case OutputWebhook:
		var w WebhookOutput
		err = json.Unmarshal(raw, &w)
		out = w
	case OutputEmail:
		var e EmailOutput
		err = json.Unmarshal(raw, &e)
		out = e
	case OutputSlack:
		var s SlackOutput
		err = json.Unmarshal(raw, &s)
		out = s
	default:
		return nil, fmt.Errorf("%w %q", ErrOutputUnknownType, head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s output: %w", head.Type, err)
	}
	if err := out.validate(); err != nil {
		return nil, fmt.Errorf("%s output: %w", head.Type, err)
	}
	return out, nil
}

// Outputs decodes config.outputWebhooks. Malformed entries are skipped and
// reported in the second return value, so one bad entry never hides the
// others. A missing or empty config yields no outputs.
func (o *Orchestration) Outputs() ([]Output, []error) {
	if len(o.Config) == 0 {
		return nil, nil
	}

	var env outputsEnvelope
	if err := json.Unmarshal(o.Config, &env); err != nil {
		return nil, []error{fmt.Errorf("decode config: %w", err)}
	}

	var (
		outputs []Output
		errs    []error
	)
	for i, raw := range env.OutputWebhooks {
		out, err := DecodeOutput(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("outputWebhooks[%d]: %w", i, err))
			continue
		}
		outputs = append(outputs, out)
	}
	return outputs, errs
}

// EnabledOutputs returns only the outputs with enabled=true.
func (o *Orchestration) EnabledOutputs() ([]Output, []error) {
	all, errs := o.Outputs()
	enabled := make([]Output, 0, len(all))
	for _, out := range all {
		if out.IsEnabled() {
			enabled = append(enabled, out)
		}
	}
	return enabled, errs
}
