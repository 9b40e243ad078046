package integration

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/black-roland/homeassistant-yandexgpt/tools"
)

const hostPrompt = `Current time is {{ .now.Format "15:04:05" }}. Today's date is {{ .now.Format "2006-01-02" }}.`

const noToolsPrompt = `Only if the user wants to control a device, tell them to expose ` +
	`entities to their voice assistant in Home Assistant.`

// Prompts is the outcome of prompt assembly for one turn.
type Prompts struct {
	// System is the chat log system entry.
	System string
	// Override, when set, replaces the system entry sent to the provider.
	Override string
}

// RenderPrompt executes tmpl with the variables now, tz and agent.
func RenderPrompt(tmpl string, now time.Time, tz *time.Location, agentID string) (string, error) {
	t, err := template.New("prompt").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse prompt: %w", err)
	}
	var buf bytes.Buffer
	err = t.Execute(&buf, map[string]any{
		"now":   now.In(tz),
		"tz":    tz.String(),
		"agent": agentID,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// BuildPrompts assembles the prompts for one turn. With no_ha_default_prompt
// the rendered prompt alone replaces the host's assembly.
func BuildPrompts(opts Options, api *tools.API, now time.Time, tz *time.Location, agentID string) (Prompts, error) {
	user, err := RenderPrompt(opts.Prompt, now, tz, agentID)
	if err != nil {
		return Prompts{}, err
	}
	host, err := RenderPrompt(hostPrompt, now, tz, agentID)
	if err != nil {
		return Prompts{}, err
	}
	parts := []string{host}
	if api == nil {
		parts = append(parts, noToolsPrompt)
	}
	if user != "" {
		parts = append(parts, user)
	}
	if api != nil && api.Prompt != "" {
		parts = append(parts, api.Prompt)
	}
	p := Prompts{System: strings.Join(parts, "\n")}
	if opts.NoHADefaultPrompt {
		p.Override = user
	}
	return p, nil
}
