package llm

import "encoding/json"

// Role of a message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status is the alternative status reported with every partial result.
type Status string

const (
	StatusUnspecified    Status = "ALTERNATIVE_STATUS_UNSPECIFIED"
	StatusPartial        Status = "ALTERNATIVE_STATUS_PARTIAL"
	StatusTruncatedFinal Status = "ALTERNATIVE_STATUS_TRUNCATED_FINAL"
	StatusFinal          Status = "ALTERNATIVE_STATUS_FINAL"
	StatusContentFilter  Status = "ALTERNATIVE_STATUS_CONTENT_FILTER"
	StatusToolCalls      Status = "ALTERNATIVE_STATUS_TOOL_CALLS"
)

// Terminal reports whether the status closes a turn.
func (s Status) Terminal() bool {
	return s == StatusFinal || s == StatusTruncatedFinal
}

// ToolCall is a model-initiated function call. Arguments are kept as the raw
// text the provider sent; they are not guaranteed to be valid JSON.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Alternative is one candidate answer. Text is cumulative.
type Alternative struct {
	Role      Role       `json:"role"`
	Text      string     `json:"text"`
	Status    Status     `json:"status"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// Raw is the provider-native message object, when the backend has one.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Usage contains token usage accounting when provided by the model.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// PartialResult is one provider stream event.
type PartialResult struct {
	Alternatives []Alternative `json:"alternatives"`
	Usage        *Usage        `json:"usage,omitempty"`
	ModelVersion string        `json:"model_version,omitempty"`
}

// First returns the first alternative, the only one consulted downstream.
func (r *PartialResult) First() (Alternative, bool) {
	if r == nil || len(r.Alternatives) == 0 {
		return Alternative{}, false
	}
	return r.Alternatives[0], true
}

// ToolResult is one function result sent back to the model.
type ToolResult struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	// CallID correlates the result with a call on backends that need it.
	CallID string `json:"call_id,omitempty"`
}

// ProviderMessage is one entry of the provider message list. Exactly one of
// Text, ToolResults or ToolCallEvent is meaningful.
type ProviderMessage struct {
	Role        Role         `json:"role"`
	Text        string       `json:"text,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	// ToolCallEvent is the retained provider event re-emitted verbatim.
	ToolCallEvent *PartialResult `json:"tool_call_event,omitempty"`
}

// IsToolResults reports whether the message carries function results.
func (m ProviderMessage) IsToolResults() bool { return m.ToolResults != nil }

// FunctionTool describes a function exposed to the model.
type FunctionTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}
