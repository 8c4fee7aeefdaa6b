// Package llm is the sole path to the external language-model inference
// service. The resilient Client owns concurrency limiting, per-call
// timeouts, retry with backoff, and typed error classification; pluggable
// Providers own the wire protocol.
package llm

import "context"

// Message is a single conversational message.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request is a single completion request handed to a provider. The resilient
// Client fills defaults before dispatch.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSONOnly asks the provider to constrain output to a JSON object where
	// the backing API supports it.
	JSONOnly bool
}

// Response is a provider-level completion result.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider performs one completion attempt against a concrete inference
// backend. Implementations must return *ClientError for classified
// failures and must not retry internally.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
