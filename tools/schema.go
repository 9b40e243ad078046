package tools

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/black-roland/homeassistant-yandexgpt/llm"
)

// TypeSchemas overrides the inferred schema of specific Go types, e.g. to
// describe an entity id as a pattern-constrained string.
type TypeSchemas map[reflect.Type]*jsonschema.Schema

// typed is implemented by tools whose arguments are a Go type, so the schema
// can be inferred again with caller-supplied TypeSchemas.
type typed interface {
	ArgsType() reflect.Type
}

// FormatTool converts a tool into the provider function descriptor. Schema
// conversion errors are returned unchanged apart from the tool name.
func FormatTool(t Tool, custom TypeSchemas) (llm.FunctionTool, error) {
	schema := t.Parameters()
	if tt, ok := t.(typed); ok && len(custom) > 0 {
		s, err := jsonschema.ForType(tt.ArgsType(), &jsonschema.ForOptions{TypeSchemas: custom})
		if err != nil {
			return llm.FunctionTool{}, fmt.Errorf("tool %s: %w", t.Name(), err)
		}
		schema = s
	}
	params, err := SchemaToMap(schema)
	if err != nil {
		return llm.FunctionTool{}, fmt.Errorf("tool %s: %w", t.Name(), err)
	}
	return llm.FunctionTool{Name: t.Name(), Description: t.Description(), Parameters: params}, nil
}

// FormatTools formats every tool of a registry, in registry order.
func FormatTools(reg Registry, custom TypeSchemas) ([]llm.FunctionTool, error) {
	if reg == nil {
		return nil, nil
	}
	names := reg.List()
	out := make([]llm.FunctionTool, 0, len(names))
	for _, n := range names {
		t, ok := reg.Get(n)
		if !ok {
			continue
		}
		ft, err := FormatTool(t, custom)
		if err != nil {
			return nil, err
		}
		out = append(out, ft)
	}
	return out, nil
}

// SchemaToMap renders a schema as a plain JSON object. Keys the provider
// rejects ($schema, $id) are dropped.
func SchemaToMap(s *jsonschema.Schema) (map[string]any, error) {
	if s == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}
