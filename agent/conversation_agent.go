package agent

import (
	"context"
	"fmt"

	"github.com/black-roland/homeassistant-yandexgpt/conversation"
	"github.com/black-roland/homeassistant-yandexgpt/llm"
	"github.com/black-roland/homeassistant-yandexgpt/observability"
	"github.com/black-roland/homeassistant-yandexgpt/tools"
)

// ConversationAgent drives the bounded tool loop of one conversation turn.
type ConversationAgent struct {
	ID     string
	Model  llm.Client
	Config AgentConfig
	// API is the active tool set; nil disables tools.
	API *tools.API
	// TypeSchemas customizes tool schema serialization.
	TypeSchemas tools.TypeSchemas
	Hooks       *observability.Hooks
	middleware  []Middleware
}

// NewConversationAgent constructs a ConversationAgent.
func NewConversationAgent(id string, model llm.Client, cfg AgentConfig, api *tools.API) *ConversationAgent {
	return &ConversationAgent{ID: id, Model: model, Config: cfg, API: api}
}

// UseMiddleware adds middleware hooks.
func (a *ConversationAgent) UseMiddleware(m ...Middleware) { a.middleware = append(a.middleware, m...) }

// Process appends the user input to log, runs the turn and returns the speech.
func (a *ConversationAgent) Process(ctx context.Context, log *conversation.ChatLog, in Input) (Result, error) {
	if in.SystemPrompt != "" {
		log.ReplaceSystem(in.SystemPrompt)
	}
	log.Append(conversation.UserContent{Content: in.Text})

	run := a
	if in.SystemOverride != "" {
		turn := *a
		turn.Config.SystemPrompt = in.SystemOverride
		run = &turn
	}
	if _, err := run.Handle(ctx, log); err != nil {
		return Result{ConversationID: log.ConversationID}, err
	}
	res := Result{ConversationID: log.ConversationID}
	if last, ok := log.LastAssistant(); ok {
		res.Speech = last.Content
	}
	for _, m := range a.middleware {
		_ = m.AfterRun(ctx, res)
	}
	return res, nil
}

// Handle runs up to MaxIterations provider calls, stopping as soon as the
// log has no unanswered tool results. It returns the provider message list
// of the turn. Reaching the iteration limit is not an error.
func (a *ConversationAgent) Handle(ctx context.Context, log *conversation.ChatLog) ([]llm.ProviderMessage, error) {
	cfg := a.Config.withDefaults()

	messages, err := conversation.NewConverter(conversation.ConverterOptions{
		SystemPrompt: cfg.SystemPrompt,
	}).ToProvider(log.Content())
	if err != nil {
		return nil, err
	}

	opts := llm.CompletionOptions{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}
	if a.API != nil {
		opts.Tools, err = tools.FormatTools(a.API.Tools, a.TypeSchemas)
		if err != nil {
			return nil, err
		}
		log.SetExecutor(a.API)
	} else {
		log.SetExecutor(nil)
	}
	a.Hooks.SafeTrace(ctx, "agent detail", map[string]any{"messages": messages, "tools": opts.Tools})

	for i := 0; i < cfg.MaxIterations; i++ {
		req := &llm.Request{Messages: messages, Options: opts}
		for _, m := range a.middleware {
			if err := m.BeforeModelCall(ctx, i, req); err != nil {
				return messages, err
			}
		}

		stream, err := a.open(ctx, cfg, req)
		if err != nil {
			return messages, escalate(err)
		}
		rec := conversation.NewReconciler(stream, a.Hooks)
		added, err := log.AddDeltaStream(ctx, a.ID, rec.Deltas(ctx))
		if err != nil {
			return messages, escalate(err)
		}

		converted, err := conversation.NewConverter(conversation.ConverterOptions{Reconciler: rec}).ToProvider(added)
		if err != nil {
			return messages, err
		}
		messages = append(messages, converted...)
		for _, m := range a.middleware {
			if err := m.AfterModelCall(ctx, i, converted); err != nil {
				return messages, err
			}
		}

		if !log.UnrespondedToolResults() {
			return messages, nil
		}
	}
	a.Hooks.SafeLog(ctx, "info", "tool iteration limit reached", map[string]any{"limit": cfg.MaxIterations})
	return messages, nil
}

func (a *ConversationAgent) open(ctx context.Context, cfg AgentConfig, req *llm.Request) (llm.Stream, error) {
	if !cfg.Deferred {
		return a.Model.RunStream(ctx, req)
	}
	op, err := a.Model.RunDeferred(ctx, req)
	if err != nil {
		return nil, err
	}
	a.Hooks.SafeLog(ctx, "debug", "async operation started", map[string]any{"operation_id": op.ID()})
	res, err := op.Wait(ctx, cfg.Poll.Timeout, cfg.Poll.Interval)
	if err != nil {
		return nil, fmt.Errorf("operation %s: %w", op.ID(), err)
	}
	return llm.SingleResultStream(res), nil
}
