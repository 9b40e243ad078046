package conversation

import "github.com/black-roland/homeassistant-yandexgpt/llm"

// DeltaKind identifies a normalized stream event.
type DeltaKind int

const (
	RoleAnnounce DeltaKind = iota
	TextDelta
	ToolCallBatch
)

func (k DeltaKind) String() string {
	switch k {
	case RoleAnnounce:
		return "role"
	case TextDelta:
		return "content"
	case ToolCallBatch:
		return "tool_calls"
	default:
		return "unknown"
	}
}

// DeltaEvent is the unit the host consumes.
type DeltaEvent struct {
	Kind      DeltaKind
	Role      llm.Role
	Content   string
	ToolCalls []llm.ToolCall
}

// Map renders the event as the host delta dictionary.
func (e DeltaEvent) Map() map[string]any {
	switch e.Kind {
	case RoleAnnounce:
		return map[string]any{"role": string(e.Role)}
	case ToolCallBatch:
		return map[string]any{"tool_calls": e.ToolCalls}
	default:
		return map[string]any{"content": e.Content}
	}
}
