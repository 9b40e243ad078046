// Package sensor implements a polled entity whose attribute holds a model
// completion for a templated prompt.
package sensor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/black-roland/homeassistant-yandexgpt/cache"
	"github.com/black-roland/homeassistant-yandexgpt/llm"
)

const (
	DefaultName = "YandexGpt completion"

	maxTokens      = 180
	requestTimeout = 30 * time.Second
	pollInterval   = 500 * time.Millisecond
)

// Config configures a Sensor.
type Config struct {
	Name         string
	SystemPrompt string
	// UserPrompt is a text/template rendered on every update.
	UserPrompt string
	Client     llm.Client
	// Cache defaults to an in-memory LRU.
	Cache cache.Cache
	// Running reports whether the host finished starting. Updates are
	// skipped while it returns false. Nil means always running.
	Running func() bool
	Logger  *zap.Logger
	Now     func() time.Time
}

// State is the externally visible sensor state.
type State struct {
	Name string `json:"name"`
	// Value is the last update time in ISO-8601, empty before the first
	// completion.
	Value      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// Sensor caches completions by (system prompt, rendered user prompt).
type Sensor struct {
	cfg  Config
	tmpl *template.Template

	mu          sync.RWMutex
	completion  string
	lastUpdated string
}

func New(cfg Config) (*Sensor, error) {
	if cfg.Client == nil {
		return nil, errors.New("sensor: client is required")
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewLRU(cache.DefaultSize)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	tmpl, err := template.New(cfg.Name).Funcs(template.FuncMap{
		"now": func() time.Time { return cfg.Now() },
	}).Parse(cfg.UserPrompt)
	if err != nil {
		return nil, fmt.Errorf("sensor: parse user prompt: %w", err)
	}
	return &Sensor{cfg: cfg, tmpl: tmpl}, nil
}

// Update refreshes the completion unless the rendered prompt is cached.
func (s *Sensor) Update(ctx context.Context) error {
	if s.cfg.Running != nil && !s.cfg.Running() {
		s.cfg.Logger.Debug("host not running, skipping update", zap.String("sensor", s.cfg.Name))
		return nil
	}
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, nil); err != nil {
		return fmt.Errorf("sensor: render user prompt: %w", err)
	}
	key := cache.Key{System: s.cfg.SystemPrompt, User: buf.String()}

	completion, ok, err := s.cfg.Cache.Get(ctx, key)
	if err != nil {
		s.cfg.Logger.Warn("completion cache lookup failed", zap.Error(err))
	}
	if ok {
		s.mu.Lock()
		s.completion = completion
		s.mu.Unlock()
		return nil
	}

	completion, err = s.complete(ctx, key)
	if err != nil {
		return err
	}
	if err := s.cfg.Cache.Set(ctx, key, completion); err != nil {
		s.cfg.Logger.Warn("completion cache store failed", zap.Error(err))
	}
	s.mu.Lock()
	s.completion = completion
	s.lastUpdated = s.cfg.Now().UTC().Format(time.RFC3339Nano)
	s.mu.Unlock()
	return nil
}

func (s *Sensor) complete(ctx context.Context, key cache.Key) (string, error) {
	s.cfg.Logger.Debug("sending completion request",
		zap.String("system_prompt", key.System), zap.String("user_prompt", key.User))
	op, err := s.cfg.Client.RunDeferred(ctx, &llm.Request{
		Messages: []llm.ProviderMessage{
			{Role: llm.RoleSystem, Text: key.System},
			{Role: llm.RoleUser, Text: key.User},
		},
		Options: llm.CompletionOptions{MaxTokens: maxTokens},
	})
	if err != nil {
		return "", err
	}
	res, err := op.Wait(ctx, requestTimeout, pollInterval)
	if err != nil {
		return "", fmt.Errorf("operation %s: %w", op.ID(), err)
	}
	alt, ok := res.First()
	if !ok {
		return "", fmt.Errorf("operation %s: empty result", op.ID())
	}
	if alt.Status == llm.StatusContentFilter {
		return "", llm.ErrEthicsFilter
	}
	return alt.Text, nil
}

// State returns a snapshot of the sensor.
func (s *Sensor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Name:       s.cfg.Name,
		Value:      s.lastUpdated,
		Attributes: map[string]any{"completion": s.completion},
	}
}

// Run updates immediately and then every interval until ctx is done.
// Update failures are logged and do not stop the loop.
func (s *Sensor) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("sensor: interval must be positive")
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := s.Update(ctx); err != nil && ctx.Err() == nil {
			s.cfg.Logger.Error("sensor update failed", zap.String("sensor", s.cfg.Name), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
