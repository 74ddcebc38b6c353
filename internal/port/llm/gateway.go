// Package llm defines the LLM completion gateway port.
package llm

import (
	"context"
	"fmt"
)

// CompletionRequest is one single-turn chat completion.
type CompletionRequest struct {
	SystemPrompt    string
	UserMessage     string
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

// Completion is the gateway's answer.
type Completion struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// TotalTokens returns prompt plus completion tokens.
func (c Completion) TotalTokens() int {
	return c.TokensIn + c.TokensOut
}

// Gateway hides one or more LLM providers behind a single call.
type Gateway interface {
	// Complete returns the model's text. Failures are *ProviderError.
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// ProviderError wraps any failure of the underlying provider call,
// including timeouts.
type ProviderError struct {
	Model      string
	StatusCode int // 0 when the request never got an HTTP response
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm provider error (model %s, status %d): %v", e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm provider error (model %s): %v", e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
