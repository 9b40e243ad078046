package agent

import (
	"context"

	"github.com/black-roland/homeassistant-yandexgpt/conversation"
	"github.com/black-roland/homeassistant-yandexgpt/llm"
)

// DefaultMaxIterations bounds the tool loop of one turn.
const DefaultMaxIterations = 10

// Input is one user utterance addressed to the agent.
type Input struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
	Language       string `json:"language,omitempty"`
	// SystemPrompt is the assembled system entry for the chat log.
	SystemPrompt string `json:"-"`
	// SystemOverride replaces the system entry sent to the provider for this
	// turn only, taking precedence over AgentConfig.SystemPrompt.
	SystemOverride string `json:"-"`
}

// Result is the outcome of one turn.
type Result struct {
	Speech         string `json:"speech"`
	ConversationID string `json:"conversation_id"`
}

// Agent handles one conversation turn against a chat log.
type Agent interface {
	Process(ctx context.Context, log *conversation.ChatLog, input Input) (Result, error)
}

// AgentConfig controls agent execution.
type AgentConfig struct {
	MaxIterations int
	// SystemPrompt replaces the chat log system entry when set.
	SystemPrompt string
	// Temperature nil uses the provider default.
	Temperature *float64
	MaxTokens    int
	// Deferred selects submit-then-poll calls instead of streaming.
	Deferred bool
	Poll     llm.PollConfig
}

func (c AgentConfig) withDefaults() AgentConfig {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	def := llm.DefaultPollConfig()
	if c.Poll.Interval <= 0 {
		c.Poll.Interval = def.Interval
	}
	if c.Poll.Timeout <= 0 {
		c.Poll.Timeout = def.Timeout
	}
	return c
}

// Middleware allows hooks around key lifecycle events.
type Middleware interface {
	// BeforeModelCall may inspect or reject a provider call.
	BeforeModelCall(ctx context.Context, iteration int, req *llm.Request) error
	// AfterModelCall receives the provider messages produced by the call.
	AfterModelCall(ctx context.Context, iteration int, added []llm.ProviderMessage) error
	AfterRun(ctx context.Context, result Result) error
}

// BaseMiddleware implements Middleware with no-ops, for embedding.
type BaseMiddleware struct{}

func (BaseMiddleware) BeforeModelCall(context.Context, int, *llm.Request) error          { return nil }
func (BaseMiddleware) AfterModelCall(context.Context, int, []llm.ProviderMessage) error { return nil }
func (BaseMiddleware) AfterRun(context.Context, Result) error                             { return nil }
