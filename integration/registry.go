package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/black-roland/homeassistant-yandexgpt/agent"
	"github.com/black-roland/homeassistant-yandexgpt/conversation"
	"github.com/black-roland/homeassistant-yandexgpt/llm"
	"github.com/black-roland/homeassistant-yandexgpt/llm/foundation"
	"github.com/black-roland/homeassistant-yandexgpt/llm/openaicompat"
	"github.com/black-roland/homeassistant-yandexgpt/observability"
	"github.com/black-roland/homeassistant-yandexgpt/tools"
)

var (
	ErrAlreadyLoaded = errors.New("integration: entry already loaded")
	ErrNotLoaded     = errors.New("integration: entry not loaded")
)

// Runtime is a loaded entry.
type Runtime struct {
	Entry Entry
	// Client is the completion backend selected by api_mode.
	Client llm.Client
	// Foundation is always the native client; image generation needs it.
	Foundation *foundation.Client
	API        *tools.API
	Agent      *agent.ConversationAgent

	tz  *time.Location
	now func() time.Time
}

// Converse runs one turn for in against log, assembling prompts first.
func (r *Runtime) Converse(ctx context.Context, log *conversation.ChatLog, in agent.Input) (agent.Result, error) {
	agentID := in.AgentID
	if agentID == "" {
		agentID = r.Entry.ID
	}
	p, err := BuildPrompts(r.Entry.Options, r.API, r.now(), r.tz, agentID)
	if err != nil {
		return agent.Result{ConversationID: log.ConversationID}, err
	}
	in.SystemPrompt = p.System
	in.SystemOverride = p.Override
	return r.Agent.Process(ctx, log, in)
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	APIs       *tools.APIRegistry
	TimeZone   string
	HTTPClient *http.Client
	Logger     *zap.Logger
	// BaseURL overrides the provider endpoint; tests point it at a fake.
	BaseURL string
	Now     func() time.Time
}

// Registry holds loaded entries keyed by id.
type Registry struct {
	cfg    RegistryConfig
	hooks  *observability.Hooks
	tz     *time.Location
	mu     sync.RWMutex
	loaded map[string]*Runtime
}

func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.APIs == nil {
		cfg.APIs = tools.NewAPIRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	tz := time.UTC
	if cfg.TimeZone != "" {
		loc, err := time.LoadLocation(cfg.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("integration: time zone: %w", err)
		}
		tz = loc
	}
	return &Registry{
		cfg:    cfg,
		hooks:  observability.NewZapHooks(cfg.Logger),
		tz:     tz,
		loaded: make(map[string]*Runtime),
	}, nil
}

// Setup validates e and builds its runtime.
func (r *Registry) Setup(_ context.Context, e Entry) (*Runtime, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.loaded[e.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyLoaded, e.ID)
	}

	api, err := r.cfg.APIs.Get(e.Options.LLMHassAPI)
	if err != nil {
		return nil, fmt.Errorf("entry %q: %w", e.ID, err)
	}
	eff := e.Options.Effective()
	fc, err := foundation.NewClient(foundation.Config{
		FolderID:     e.FolderID,
		APIKey:       e.APIKey,
		Model:        eff.ChatModel,
		ModelVersion: eff.ModelVersion,
		BaseURL:      r.cfg.BaseURL,
		DataLogging:  eff.EnableServerDataLogging,
		HTTPClient:   r.cfg.HTTPClient,
		Hooks:        r.hooks,
	})
	if err != nil {
		return nil, err
	}
	var client llm.Client = fc
	if e.APIMode == APIModeOpenAI {
		oc, err := openaicompat.NewClient(openaicompat.Config{
			FolderID:     e.FolderID,
			APIKey:       e.APIKey,
			Model:        eff.ChatModel,
			ModelVersion: eff.ModelVersion,
			BaseURL:      openAIBaseURL(r.cfg.BaseURL),
			DataLogging:  eff.EnableServerDataLogging,
			HTTPClient:   r.cfg.HTTPClient,
			Hooks:        r.hooks,
		})
		if err != nil {
			return nil, err
		}
		client = oc
	}

	ag := agent.NewConversationAgent(e.ID, client, e.Options.AgentConfig(), api)
	ag.Hooks = r.hooks
	rt := &Runtime{Entry: e, Client: client, Foundation: fc, API: api, Agent: ag, tz: r.tz, now: r.cfg.Now}
	r.loaded[e.ID] = rt
	r.cfg.Logger.Info("entry loaded",
		zap.String("entry", e.ID), zap.String("model", client.Model()), zap.String("api_mode", string(e.APIMode)))
	return rt, nil
}

func openAIBaseURL(base string) string {
	if base == "" {
		return ""
	}
	return base + "/v1"
}

func (r *Registry) Get(id string) (*Runtime, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.loaded[id]
	return rt, ok
}

func (r *Registry) Unload(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.loaded[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, id)
	}
	delete(r.loaded, id)
	r.cfg.Logger.Info("entry unloaded", zap.String("entry", id))
	return nil
}

// IDs lists loaded entry ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.loaded))
	for id := range r.loaded {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
