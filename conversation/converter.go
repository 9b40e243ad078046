package conversation

import (
	"encoding/json"
	"fmt"

	"github.com/black-roland/homeassistant-yandexgpt/llm"
	"github.com/black-roland/homeassistant-yandexgpt/tools"
)

// UnsupportedContentError reports a chat log entry with no provider mapping.
type UnsupportedContentError struct {
	Content Content
}

func (e *UnsupportedContentError) Error() string {
	return fmt.Sprintf("unexpected content type: %T", e.Content)
}

func (e *UnsupportedContentError) Unwrap() error { return llm.ErrUnsupportedContent }

// ConverterOptions configures a Converter.
type ConverterOptions struct {
	// Reconciler supplies the retained tool call event for assistant entries
	// with tool calls. Without it those entries are skipped.
	Reconciler *Reconciler
	// SystemPrompt, when set, replaces the text of system entries.
	SystemPrompt string
	// TypeSchemas is the custom serializer used by FormatTool.
	TypeSchemas tools.TypeSchemas
}

// Converter maps host chat log entries to provider messages.
type Converter struct {
	opts ConverterOptions
}

// NewConverter creates a converter for one round.
func NewConverter(opts ConverterOptions) *Converter {
	return &Converter{opts: opts}
}

// ToProvider converts entries in order. Adjacent tool results share one
// message.
func (c *Converter) ToProvider(entries []Content) ([]llm.ProviderMessage, error) {
	messages := make([]llm.ProviderMessage, 0, len(entries))
	for _, entry := range entries {
		switch v := entry.(type) {
		case ToolResultContent:
			payload, err := json.Marshal(v.ToolResult)
			if err != nil {
				return nil, fmt.Errorf("encode result of %s: %w", v.ToolName, err)
			}
			res := llm.ToolResult{Name: v.ToolName, Content: string(payload), CallID: v.ToolCallID}
			if n := len(messages); n > 0 && messages[n-1].IsToolResults() {
				messages[n-1].ToolResults = append(messages[n-1].ToolResults, res)
				continue
			}
			messages = append(messages, llm.ProviderMessage{
				Role:        llm.RoleAssistant,
				ToolResults: []llm.ToolResult{res},
			})

		case AssistantContent:
			if len(v.ToolCalls) > 0 {
				if c.opts.Reconciler == nil {
					continue
				}
				ev, err := c.opts.Reconciler.ToolCallEvent()
				if err != nil {
					return nil, err
				}
				messages = append(messages, llm.ProviderMessage{Role: llm.RoleAssistant, ToolCallEvent: ev})
				continue
			}
			if v.Content == "" {
				return nil, &UnsupportedContentError{Content: entry}
			}
			messages = append(messages, llm.ProviderMessage{Role: llm.RoleAssistant, Text: v.Content})

		case SystemContent:
			if c.opts.SystemPrompt != "" {
				messages = append(messages, llm.ProviderMessage{Role: llm.RoleSystem, Text: c.opts.SystemPrompt})
				continue
			}
			if v.Content == "" {
				return nil, &UnsupportedContentError{Content: entry}
			}
			messages = append(messages, llm.ProviderMessage{Role: llm.RoleSystem, Text: v.Content})

		case UserContent:
			if v.Content == "" {
				return nil, &UnsupportedContentError{Content: entry}
			}
			messages = append(messages, llm.ProviderMessage{Role: llm.RoleUser, Text: v.Content})

		default:
			return nil, &UnsupportedContentError{Content: entry}
		}
	}
	return messages, nil
}

// FromProvider maps plain text messages back to chat log entries. Tool
// messages cannot be reconstructed and yield ErrUnsupportedContent.
func FromProvider(messages []llm.ProviderMessage) ([]Content, error) {
	out := make([]Content, 0, len(messages))
	for _, m := range messages {
		if m.IsToolResults() || m.ToolCallEvent != nil {
			return nil, fmt.Errorf("tool message is not reversible: %w", llm.ErrUnsupportedContent)
		}
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, SystemContent{Content: m.Text})
		case llm.RoleUser:
			out = append(out, UserContent{Content: m.Text})
		case llm.RoleAssistant:
			out = append(out, AssistantContent{Content: m.Text})
		default:
			return nil, fmt.Errorf("role %q: %w", m.Role, llm.ErrUnsupportedContent)
		}
	}
	return out, nil
}

// FormatTool converts a capability to a provider function tool.
func (c *Converter) FormatTool(t tools.Tool) (llm.FunctionTool, error) {
	return tools.FormatTool(t, c.opts.TypeSchemas)
}
