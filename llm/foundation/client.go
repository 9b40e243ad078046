// Package foundation implements llm.Client over the Yandex Cloud Foundation
// Models REST API.
package foundation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	base "github.com/black-roland/homeassistant-yandexgpt/llm"
	"github.com/black-roland/homeassistant-yandexgpt/observability"
)

const (
	DefaultBaseURL = "https://llm.api.cloud.yandex.net"

	completionPath      = "/foundationModels/v1/completion"
	completionAsyncPath = "/foundationModels/v1/completionAsync"
	operationsPath      = "/operations/"

	provider = "yandexgpt"
)

// Client implements base.Client for the native REST API.
type Client struct {
	http *http.Client
	cfg  Config
}

// Config configures the client. Exactly one of APIKey or IAMToken is needed.
type Config struct {
	FolderID     string
	APIKey       string
	IAMToken     string
	Model        string
	ModelVersion string
	BaseURL      string
	// DataLogging allows the provider to log requests.
	DataLogging bool
	// Timeout applies to unary requests. Streams rely on ctx.
	Timeout time.Duration
	HTTPClient *http.Client
	Hooks      *observability.Hooks
}

// NewClient creates a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.FolderID == "" {
		return nil, errors.New("foundation: folder id is required")
	}
	if cfg.APIKey == "" && cfg.IAMToken == "" {
		return nil, errors.New("foundation: api key or iam token is required")
	}
	if cfg.Model == "" {
		cfg.Model = "yandexgpt-lite"
	}
	if cfg.ModelVersion == "" {
		cfg.ModelVersion = "latest"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{http: hc, cfg: cfg}, nil
}

// Model returns the model URI.
func (c *Client) Model() string {
	return base.ModelURI(c.cfg.FolderID, c.cfg.Model, c.cfg.ModelVersion)
}

// FolderID returns the configured folder.
func (c *Client) FolderID() string { return c.cfg.FolderID }

// RunStream starts a streaming completion.
func (c *Client) RunStream(ctx context.Context, req *base.Request) (base.Stream, error) {
	body, err := c.buildRequest(req, true)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	c.cfg.Hooks.SafeLLMRequest(ctx, provider, c.Model(), map[string]any{"operation": "stream", "messages": len(req.Messages)})

	httpReq, err := c.newRequest(ctx, http.MethodPost, completionPath, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &base.TransportError{Op: "completion", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError("completion", resp)
	}
	return newStream(resp.Body, func(err error) {
		c.cfg.Hooks.SafeLLMResponse(ctx, provider, c.Model(), time.Since(start), map[string]any{"operation": "stream", "error": err != nil})
	}), nil
}

// RunDeferred submits an asynchronous completion.
func (c *Client) RunDeferred(ctx context.Context, req *base.Request) (base.Operation, error) {
	body, err := c.buildRequest(req, false)
	if err != nil {
		return nil, err
	}
	c.cfg.Hooks.SafeLLMRequest(ctx, provider, c.Model(), map[string]any{"operation": "deferred", "messages": len(req.Messages)})
	var op OperationStatus
	if err := c.Do(ctx, http.MethodPost, completionAsyncPath, body, &op); err != nil {
		return nil, err
	}
	if op.ID == "" {
		return nil, &base.TransportError{Op: "completionAsync", Details: "empty operation id"}
	}
	return &deferredOperation{client: c, id: op.ID, started: time.Now()}, nil
}

// Do sends a unary JSON request relative to the base URL and decodes the
// response into out. in may be nil, []byte or any JSON-marshalable value.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	switch v := in.(type) {
	case nil:
	case []byte:
		body = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		body = b
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &base.TransportError{Op: opName(path), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(opName(path), resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &base.TransportError{Op: opName(path), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// Operation fetches the status of an asynchronous operation.
func (c *Client) Operation(ctx context.Context, id string) (*OperationStatus, error) {
	var op OperationStatus
	if err := c.Do(ctx, http.MethodGet, operationsPath+id, nil, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

func (c *Client) buildRequest(req *base.Request, stream bool) ([]byte, error) {
	msgs, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	opts := completionOptions{Stream: stream}
	if t := req.Options.Temperature; t != nil {
		opts.Temperature = base.Float(*t)
	}
	if req.Options.MaxTokens > 0 {
		opts.MaxTokens = strconv.Itoa(req.Options.MaxTokens)
	}
	return json.Marshal(completionRequest{
		ModelURI:          c.Model(),
		CompletionOptions: opts,
		Messages:          msgs,
		Tools:             encodeTools(req.Options.Tools),
	})
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.IAMToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.IAMToken)
	} else {
		req.Header.Set("Authorization", "Api-Key "+c.cfg.APIKey)
	}
	req.Header.Set("x-folder-id", c.cfg.FolderID)
	req.Header.Set("x-data-logging-enabled", strconv.FormatBool(c.cfg.DataLogging))
	return req, nil
}

func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	details := strings.TrimSpace(string(b))
	var wrapped struct {
		Error *rpcError `json:"error"`
	}
	var flat rpcError
	switch {
	case json.Unmarshal(b, &wrapped) == nil && wrapped.Error != nil && wrapped.Error.Message != "":
		details = wrapped.Error.Message
	case json.Unmarshal(b, &flat) == nil && flat.Message != "":
		details = flat.Message
	}
	return &base.TransportError{Op: op, StatusCode: resp.StatusCode, Details: details}
}

func opName(path string) string {
	switch {
	case strings.HasPrefix(path, operationsPath):
		return "operation"
	default:
		return strings.TrimPrefix(path[strings.LastIndex(path, "/"):], "/")
	}
}
