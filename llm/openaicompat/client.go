// Package openaicompat implements llm.Client over the OpenAI-compatible
// Yandex Cloud endpoint using the official OpenAI SDK.
package openaicompat

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	oa "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	base "github.com/black-roland/homeassistant-yandexgpt/llm"
	"github.com/black-roland/homeassistant-yandexgpt/observability"
)

const (
	DefaultBaseURL = "https://llm.api.cloud.yandex.net/v1"

	provider = "yandexgpt-openai"
)

// Client implements base.Client for the OpenAI-compatible API.
type Client struct {
	cfg Config

	newStream func(ctx context.Context, params oa.ChatCompletionNewParams) oaStreamCore
	create    func(ctx context.Context, params oa.ChatCompletionNewParams) (*oa.ChatCompletion, error)
}

// Config configures the client.
type Config struct {
	FolderID     string
	APIKey       string
	Model        string
	ModelVersion string
	BaseURL      string
	DataLogging  bool
	Timeout      time.Duration
	HTTPClient   *http.Client
	Hooks        *observability.Hooks
}

// NewClient creates a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.FolderID == "" {
		return nil, errors.New("openaicompat: folder id is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("openaicompat: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "yandexgpt-lite"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	opts := []option.RequestOption{
		option.WithHTTPClient(httpClient),
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
		option.WithHeader("Authorization", "Api-Key "+cfg.APIKey),
		option.WithHeader("OpenAI-Project", cfg.FolderID),
		option.WithHeader("x-data-logging-enabled", strconv.FormatBool(cfg.DataLogging)),
		option.WithMaxRetries(0),
	}
	oc := oa.NewClient(opts...)
	c := &Client{cfg: cfg}
	c.newStream = func(ctx context.Context, p oa.ChatCompletionNewParams) oaStreamCore {
		return oc.Chat.Completions.NewStreaming(ctx, p)
	}
	c.create = func(ctx context.Context, p oa.ChatCompletionNewParams) (*oa.ChatCompletion, error) {
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		return oc.Chat.Completions.New(ctx, p)
	}
	return c, nil
}

// Model returns the model URI.
func (c *Client) Model() string {
	return base.ModelURI(c.cfg.FolderID, c.cfg.Model, c.cfg.ModelVersion)
}

// RunStream starts a streaming chat completion. Chunks are accumulated into
// cumulative snapshots.
func (c *Client) RunStream(ctx context.Context, req *base.Request) (base.Stream, error) {
	params, err := c.params(req)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	c.cfg.Hooks.SafeLLMRequest(ctx, provider, c.Model(), map[string]any{"operation": "stream", "messages": len(req.Messages)})
	s := c.newStream(ctx, params)
	return &chunkStream{
		inner: s,
		model: c.Model(),
		calls: map[int64]*base.ToolCall{},
		onDone: func(err error) {
			c.cfg.Hooks.SafeLLMResponse(ctx, provider, c.Model(), time.Since(start), map[string]any{"operation": "stream", "error": err != nil})
		},
	}, nil
}

// RunDeferred runs a non-streaming completion and presents the response as
// an operation that is already done.
func (c *Client) RunDeferred(ctx context.Context, req *base.Request) (base.Operation, error) {
	params, err := c.params(req)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	c.cfg.Hooks.SafeLLMRequest(ctx, provider, c.Model(), map[string]any{"operation": "deferred", "messages": len(req.Messages)})
	resp, err := c.create(ctx, params)
	c.cfg.Hooks.SafeLLMResponse(ctx, provider, c.Model(), time.Since(start), map[string]any{"operation": "deferred", "error": err != nil})
	if err != nil {
		return nil, transportError("chat.completions", err)
	}
	return &doneOperation{id: resp.ID, res: fromCompletion(resp)}, nil
}

func (c *Client) params(req *base.Request) (oa.ChatCompletionNewParams, error) {
	msgs, err := toOAMessages(req.Messages)
	if err != nil {
		return oa.ChatCompletionNewParams{}, err
	}
	params := oa.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.Model()),
		Messages: msgs,
	}
	if req.Options.MaxTokens > 0 {
		params.MaxTokens = oa.Int(int64(req.Options.MaxTokens))
	}
	if t := req.Options.Temperature; t != nil {
		params.Temperature = oa.Float(*t)
	}
	if len(req.Options.Tools) > 0 {
		params.Tools = toOATools(req.Options.Tools)
	}
	return params, nil
}

type doneOperation struct {
	id  string
	res *base.PartialResult
}

func (o *doneOperation) ID() string { return o.id }

func (o *doneOperation) Wait(ctx context.Context, _, _ time.Duration) (*base.PartialResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return o.res, nil
}

func transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *oa.Error
	if errors.As(err, &apiErr) {
		return &base.TransportError{Op: op, StatusCode: apiErr.StatusCode, Details: apiErr.Message, Err: err}
	}
	return &base.TransportError{Op: op, Err: err}
}

func finishStatus(reason string) base.Status {
	switch reason {
	case "stop":
		return base.StatusFinal
	case "length":
		return base.StatusTruncatedFinal
	case "content_filter":
		return base.StatusContentFilter
	case "tool_calls", "function_call":
		return base.StatusToolCalls
	default:
		return base.StatusFinal
	}
}

func fromCompletion(r *oa.ChatCompletion) *base.PartialResult {
	res := &base.PartialResult{
		ModelVersion: r.Model,
		Usage: &base.Usage{
			InputTokens:  int(r.Usage.PromptTokens),
			OutputTokens: int(r.Usage.CompletionTokens),
			TotalTokens:  int(r.Usage.TotalTokens),
		},
	}
	if len(r.Choices) == 0 {
		return res
	}
	choice := r.Choices[0]
	alt := base.Alternative{
		Role:   base.RoleAssistant,
		Text:   choice.Message.Content,
		Status: finishStatus(string(choice.FinishReason)),
	}
	for _, tc := range choice.Message.ToolCalls {
		alt.ToolCalls = append(alt.ToolCalls, base.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	if len(alt.ToolCalls) > 0 {
		alt.Status = base.StatusToolCalls
	}
	res.Alternatives = []base.Alternative{alt}
	return res
}
