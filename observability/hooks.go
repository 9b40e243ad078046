package observability

import (
	"context"
	"time"
)

// Hooks provides optional callbacks for logging and tracing. All functions
// are optional and a nil *Hooks is valid.
type Hooks struct {
	// Logf logs a structured message with a severity level and key-value fields.
	Logf func(ctx context.Context, level string, msg string, fields map[string]any)

	// OnLLMRequest is called before a provider request is sent.
	OnLLMRequest func(ctx context.Context, provider string, model string, meta map[string]any)
	// OnLLMResponse is called after a provider response (or stream) completes.
	OnLLMResponse func(ctx context.Context, provider string, model string, latency time.Duration, meta map[string]any)
	// OnTruncated is called when the model stopped because of the token limit.
	OnTruncated func(ctx context.Context, text string)
	// OnTrace receives agent details (message lists, tool calls) for a turn.
	OnTrace func(ctx context.Context, event string, data map[string]any)
}

// SafeLog logs if Logf is configured.
func (h *Hooks) SafeLog(ctx context.Context, level string, msg string, fields map[string]any) {
	if h != nil && h.Logf != nil {
		h.Logf(ctx, level, msg, fields)
	}
}

// SafeLLMRequest invokes OnLLMRequest if configured.
func (h *Hooks) SafeLLMRequest(ctx context.Context, provider string, model string, meta map[string]any) {
	if h != nil && h.OnLLMRequest != nil {
		h.OnLLMRequest(ctx, provider, model, meta)
	}
}

// SafeLLMResponse invokes OnLLMResponse if configured.
func (h *Hooks) SafeLLMResponse(ctx context.Context, provider string, model string, latency time.Duration, meta map[string]any) {
	if h != nil && h.OnLLMResponse != nil {
		h.OnLLMResponse(ctx, provider, model, latency, meta)
	}
}

// SafeTruncated invokes OnTruncated if configured.
func (h *Hooks) SafeTruncated(ctx context.Context, text string) {
	if h != nil && h.OnTruncated != nil {
		h.OnTruncated(ctx, text)
	}
}

// SafeTrace invokes OnTrace if configured.
func (h *Hooks) SafeTrace(ctx context.Context, event string, data map[string]any) {
	if h != nil && h.OnTrace != nil {
		h.OnTrace(ctx, event, data)
	}
}
