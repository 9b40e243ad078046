package llm

import (
	"context"
	"time"
)

// Client is the provider-neutral completions interface used by the agent.
// Implementations return cumulative PartialResult snapshots, not deltas.
type Client interface {
	// RunStream starts a live completion and returns its event stream.
	RunStream(ctx context.Context, req *Request) (Stream, error)
	// RunDeferred submits the completion and returns a handle to poll.
	RunDeferred(ctx context.Context, req *Request) (Operation, error)
	Model() string
}

// Operation is a deferred completion handle.
type Operation interface {
	ID() string
	// Wait polls until the operation is done, the timeout elapses (ErrTimeout)
	// or ctx is cancelled.
	Wait(ctx context.Context, timeout, interval time.Duration) (*PartialResult, error)
}

// CompletionOptions mirrors the provider's configure(temperature, max_tokens, tools) builder.
type CompletionOptions struct {
	// Temperature is sent whenever it is set, zero included; nil leaves
	// sampling to the provider default.
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens"`
	Tools       []FunctionTool `json:"tools,omitempty"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Request is one completions call.
type Request struct {
	Messages []ProviderMessage `json:"messages"`
	Options  CompletionOptions `json:"options"`
}
