package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ServiceCallArgs are the arguments of the hass_call_service tool.
type ServiceCallArgs struct {
	Domain  string         `json:"domain" jsonschema:"service domain, e.g. light"`
	Service string         `json:"service" jsonschema:"service name, e.g. turn_on"`
	Data    map[string]any `json:"data,omitempty" jsonschema:"service data such as entity_id"`
}

// HassClient calls services through the host REST API.
type HassClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHassClient creates a REST client. A zero timeout means 30s.
func NewHassClient(baseURL, token string, timeout time.Duration) *HassClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HassClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// CallService posts data to /api/services/<domain>/<service> and returns the
// decoded list of changed states.
func (c *HassClient) CallService(ctx context.Context, in ServiceCallArgs) (any, error) {
	if in.Data == nil {
		in.Data = map[string]any{}
	}
	body, err := json.Marshal(in.Data)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/api/services/%s/%s", c.baseURL, in.Domain, in.Service)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("service %s.%s: status %d: %s", in.Domain, in.Service, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out any
	if len(bytes.TrimSpace(b)) > 0 {
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, fmt.Errorf("decode service response: %w", err)
		}
	}
	return map[string]any{"success": true, "changed": out}, nil
}

// NewServiceCallTool exposes CallService to the model.
func NewServiceCallTool(c *HassClient) Tool {
	return MustTool("hass_call_service", "Call a Home Assistant service to control devices.", c.CallService)
}
