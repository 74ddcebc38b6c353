// Package dispatch defines the per-channel outcome of an output notification
// and the rendering rules shared by the human-readable channels.
package dispatch

import (
	"time"

	"github.com/Strob0t/Sofia/internal/domain/orchestration"
)

// Status is the outcome of one dispatch attempt.
type Status string

const (
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped" // channel not configured on this deployment
)

// Record is the outcome of one attempt on one enabled output channel.
// SentAt is the time the attempt began.
type Record struct {
	Type        orchestration.OutputType `json:"type"`
	Destination string                   `json:"destination"`
	Status      Status                   `json:"status"`
	Error       string                   `json:"error,omitempty"`
	SentAt      time.Time                `json:"sentAt"`
}

// Counts tallies records by status.
func Counts(records []Record) map[Status]int {
	out := make(map[Status]int, 3)
	for i := range records {
		out[records[i].Status]++
	}
	return out
}
