// Package conversation maps between the host chat log and provider messages
// and turns cumulative provider streams into host delta events.
package conversation

import (
	"github.com/black-roland/homeassistant-yandexgpt/llm"
)

// Content is one entry of the host chat log.
type Content interface {
	ContentRole() llm.Role
}

// SystemContent holds the system instructions.
type SystemContent struct {
	Content string `json:"content"`
}

func (SystemContent) ContentRole() llm.Role { return llm.RoleSystem }

// UserContent is a user utterance.
type UserContent struct {
	Content string `json:"content"`
}

func (UserContent) ContentRole() llm.Role { return llm.RoleUser }

// AssistantContent is a model answer, optionally requesting tool calls.
type AssistantContent struct {
	AgentID   string         `json:"agent_id"`
	Content   string         `json:"content,omitempty"`
	ToolCalls []llm.ToolCall `json:"tool_calls,omitempty"`
}

func (AssistantContent) ContentRole() llm.Role { return llm.RoleAssistant }

// ToolResultContent is the result of executing one tool call.
type ToolResultContent struct {
	AgentID    string `json:"agent_id"`
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	ToolResult any    `json:"tool_result"`
}

// ContentRole of a tool result. The provider expects it under the assistant role.
func (ToolResultContent) ContentRole() llm.Role { return llm.RoleAssistant }
