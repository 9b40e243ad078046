package foundation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	base "github.com/black-roland/homeassistant-yandexgpt/llm"
)

// OperationStatus is the long-running operation resource.
type OperationStatus struct {
	ID       string          `json:"id"`
	Done     bool            `json:"done"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    *rpcError       `json:"error,omitempty"`
}

// Err converts a failed operation into a transport error.
func (o *OperationStatus) Err() error {
	if o.Error == nil {
		return nil
	}
	return &base.TransportError{Op: "operation", StatusCode: o.Error.HTTPCode, Details: fmt.Sprintf("%s (code %d)", o.Error.Message, o.Error.Code)}
}

// Poll waits for operation id to finish and returns the final status.
func (c *Client) Poll(ctx context.Context, id string, cfg base.PollConfig) (*OperationStatus, error) {
	var last *OperationStatus
	err := base.NewPoller(cfg).Do(ctx, func(ctx context.Context) (bool, error) {
		op, err := c.Operation(ctx, id)
		if err != nil {
			return false, err
		}
		last = op
		return op.Done, nil
	})
	if err != nil {
		return nil, err
	}
	if err := last.Err(); err != nil {
		return nil, err
	}
	return last, nil
}

type deferredOperation struct {
	client  *Client
	id      string
	started time.Time
}

func (o *deferredOperation) ID() string { return o.id }

func (o *deferredOperation) Wait(ctx context.Context, timeout, interval time.Duration) (*base.PartialResult, error) {
	op, err := o.client.Poll(ctx, o.id, base.PollConfig{Interval: interval, Timeout: timeout})
	o.client.cfg.Hooks.SafeLLMResponse(ctx, provider, o.client.Model(), time.Since(o.started), map[string]any{
		"operation": "deferred", "operation_id": o.id, "error": err != nil,
	})
	if err != nil {
		return nil, err
	}
	var res completionResult
	if err := json.Unmarshal(op.Response, &res); err != nil {
		return nil, &base.TransportError{Op: "operation", Err: fmt.Errorf("decode response: %w", err)}
	}
	return decodeResult(&res)
}
