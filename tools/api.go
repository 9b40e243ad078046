package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// NoAPI is the llm_hass_api value that disables tools.
const NoAPI = "none"

// API is a named tool set with the instructions that go with it.
type API struct {
	ID     string
	Name   string
	Prompt string
	Tools  Registry
}

// CallTool executes one model tool call. Tool failures are returned to the
// model as an error object rather than aborting the turn.
func (a *API) CallTool(ctx context.Context, name string, args json.RawMessage) any {
	res, err := a.Tools.Call(ctx, name, args)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return res
}

// APIRegistry holds the tool sets selectable by the llm_hass_api option.
type APIRegistry struct {
	mu   sync.RWMutex
	apis map[string]*API
}

// NewAPIRegistry creates an empty registry.
func NewAPIRegistry() *APIRegistry {
	return &APIRegistry{apis: make(map[string]*API)}
}

// Register adds api by ID.
func (r *APIRegistry) Register(api *API) error {
	if api == nil || api.ID == "" || api.ID == NoAPI {
		return fmt.Errorf("invalid API id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.apis[api.ID]; ok {
		return fmt.Errorf("API %s already registered", api.ID)
	}
	r.apis[api.ID] = api
	return nil
}

// Get returns the API for id. An empty id or NoAPI returns (nil, nil).
func (r *APIRegistry) Get(id string) (*API, error) {
	if id == "" || id == NoAPI {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	api, ok := r.apis[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAPI, id)
	}
	return api, nil
}

// IDs lists registered API ids.
func (r *APIRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.apis))
	for id := range r.apis {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AssistConfig configures the built-in assist API.
type AssistConfig struct {
	HassURL   string
	HassToken string
	TimeZone  string
}

const assistPrompt = `Use the provided tools to look up the time, to do arithmetic ` +
	`and to control smart home devices. To control a device call hass_call_service ` +
	`with its domain, service and entity_id.`

// NewAssistAPI builds the "assist" tool set. The service-call tool is only
// included when a host URL is configured.
func NewAssistAPI(cfg AssistConfig) (*API, error) {
	ts := []Tool{NewCalculator(), NewClock(nil, cfg.TimeZone)}
	if cfg.HassURL != "" {
		ts = append(ts, NewServiceCallTool(NewHassClient(cfg.HassURL, cfg.HassToken, 0)))
	}
	reg, err := NewRegistry(ts...)
	if err != nil {
		return nil, err
	}
	return &API{ID: "assist", Name: "Assist", Prompt: assistPrompt, Tools: reg}, nil
}
