package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/jsonschema-go/jsonschema"
)

// FuncTool adapts a typed Go function to the Tool interface. Arguments are
// validated against the schema inferred from T before fn runs.
type FuncTool[T, R any] struct {
	name        string
	description string
	schema      *jsonschema.Schema
	resolved    *jsonschema.Resolved
	fn          func(context.Context, T) (R, error)
}

// NewTool builds a FuncTool. custom may be nil.
func NewTool[T, R any](name, description string, fn func(context.Context, T) (R, error), custom TypeSchemas) (*FuncTool[T, R], error) {
	schema, err := jsonschema.For[T](&jsonschema.ForOptions{TypeSchemas: custom})
	if err != nil {
		return nil, fmt.Errorf("tool %s: infer schema: %w", name, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("tool %s: resolve schema: %w", name, err)
	}
	return &FuncTool[T, R]{
		name:        name,
		description: description,
		schema:      schema,
		resolved:    resolved,
		fn:          fn,
	}, nil
}

// MustTool is NewTool for package-level tool definitions.
func MustTool[T, R any](name, description string, fn func(context.Context, T) (R, error)) *FuncTool[T, R] {
	t, err := NewTool(name, description, fn, nil)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *FuncTool[T, R]) Name() string                   { return t.name }
func (t *FuncTool[T, R]) Description() string            { return t.description }
func (t *FuncTool[T, R]) Parameters() *jsonschema.Schema { return t.schema }
func (t *FuncTool[T, R]) ArgsType() reflect.Type         { return reflect.TypeFor[T]() }

// Call validates and decodes args, then runs the function.
func (t *FuncTool[T, R]) Call(ctx context.Context, args json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}
	var instance map[string]any
	if err := json.Unmarshal(args, &instance); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, t.name, err)
	}
	if err := t.resolved.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, t.name, err)
	}
	var in T
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, t.name, err)
	}
	return t.fn(ctx, in)
}
