// Package integration turns configuration entries into ready-to-use
// conversation runtimes.
package integration

import (
	"errors"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/black-roland/homeassistant-yandexgpt/agent"
	"github.com/black-roland/homeassistant-yandexgpt/llm"
	"github.com/black-roland/homeassistant-yandexgpt/tools"
)

const (
	DefaultChatModel         = "yandexgpt-lite"
	DefaultModelVersion      = "latest"
	DefaultTemperature       = 0.3
	DefaultMaxTokens         = 1024
	DefaultMaxToolIterations = agent.DefaultMaxIterations

	DefaultPromptRU = `Ты голосовой ассистент умного дома Home Assistant. ` +
		`Отвечай коротко и по существу, простыми предложениями без разметки и эмодзи. ` +
		`Отвечай на том языке, на котором к тебе обратились.`
)

var modelVersions = []string{"latest", "rc", "deprecated"}

// Options are the per-entry settings.
type Options struct {
	Prompt                  string  `yaml:"prompt" json:"prompt"`
	ChatModel               string  `yaml:"chat_model" json:"chat_model"`
	ModelVersion            string  `yaml:"model_version" json:"model_version"`
	Temperature             float64 `yaml:"temperature" json:"temperature"`
	MaxTokens               int     `yaml:"max_tokens" json:"max_tokens"`
	AsynchronousMode        bool    `yaml:"asynchronous_mode" json:"asynchronous_mode"`
	MaxToolIterations       int     `yaml:"max_tool_iterations" json:"max_tool_iterations"`
	LLMHassAPI              string  `yaml:"llm_hass_api" json:"llm_hass_api"`
	EnableServerDataLogging bool    `yaml:"enable_server_data_logging" json:"enable_server_data_logging"`
	NoHADefaultPrompt       bool    `yaml:"no_ha_default_prompt" json:"no_ha_default_prompt"`
	// Recommended pins model version, sampling and mode to the defaults.
	Recommended bool `yaml:"recommended" json:"recommended"`
}

func DefaultOptions() Options {
	return Options{
		Prompt:            DefaultPromptRU,
		ChatModel:         DefaultChatModel,
		ModelVersion:      DefaultModelVersion,
		Temperature:       DefaultTemperature,
		MaxTokens:         DefaultMaxTokens,
		MaxToolIterations: DefaultMaxToolIterations,
		LLMHassAPI:        tools.NoAPI,
		Recommended:       true,
	}
}

// UnmarshalYAML fills keys missing from the document with defaults.
func (o *Options) UnmarshalYAML(value *yaml.Node) error {
	type plain Options
	p := plain(DefaultOptions())
	if err := value.Decode(&p); err != nil {
		return err
	}
	*o = Options(p)
	return nil
}

// Effective returns the options actually used for requests.
func (o Options) Effective() Options {
	if !o.Recommended {
		return o
	}
	def := DefaultOptions()
	o.ModelVersion = def.ModelVersion
	o.Temperature = def.Temperature
	o.MaxTokens = def.MaxTokens
	o.AsynchronousMode = false
	return o
}

func (o Options) Validate() error {
	var errs []error
	if o.ChatModel == "" {
		errs = append(errs, errors.New("chat_model is required"))
	}
	if !slices.Contains(modelVersions, o.ModelVersion) {
		errs = append(errs, fmt.Errorf("model_version %q is not one of %v", o.ModelVersion, modelVersions))
	}
	if o.Temperature < 0 || o.Temperature > 1 {
		errs = append(errs, fmt.Errorf("temperature %v out of range [0, 1]", o.Temperature))
	}
	if o.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be positive, got %d", o.MaxTokens))
	}
	if o.MaxToolIterations <= 0 {
		errs = append(errs, fmt.Errorf("max_tool_iterations must be positive, got %d", o.MaxToolIterations))
	}
	return errors.Join(errs...)
}

// AgentConfig maps the effective options onto the orchestrator settings.
func (o Options) AgentConfig() agent.AgentConfig {
	e := o.Effective()
	return agent.AgentConfig{
		MaxIterations: e.MaxToolIterations,
		Temperature:   llm.Float(e.Temperature),
		MaxTokens:     e.MaxTokens,
		Deferred:      e.AsynchronousMode,
	}
}
