// Package notifier defines the output notification port and the registry
// that maps output channel types to their senders.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Strob0t/Sofia/internal/domain/orchestration"
)

// ErrNotConfigured is returned when a notifier lacks the deployment-level
// credentials it needs. The dispatcher records it as a skip, not a failure.
var ErrNotConfigured = errors.New("notifier: not configured")

// EventOrchestrationCompleted is the only event currently dispatched.
const EventOrchestrationCompleted = "orchestration.completed"

// Notification is the completion payload handed to every channel.
type Notification struct {
	Event             string
	OrchestrationID   string
	OrchestrationName string
	ExecutionID       string
	Duration          time.Duration
	TokensUsed        int
	Output            json.RawMessage
	Timestamp         time.Time
}

// Notifier delivers a notification to one configured output.
type Notifier interface {
	// Name returns the output type this notifier serves (e.g. "slack").
	Name() orchestration.OutputType

	// Send delivers n to target. target's concrete type matches Name().
	Send(ctx context.Context, target orchestration.Output, n Notification) error
}
