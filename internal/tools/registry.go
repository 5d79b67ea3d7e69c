package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Registry is an ordered catalog of tools keyed by name.
type Registry struct {
	order []string
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool. Names must be unique and usable as function names by
// the model providers.
func (r *Registry) Register(t Tool) error {
	if !nameRe.MatchString(t.Name) {
		return fmt.Errorf("invalid tool name %q", t.Name)
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}
	if t.Parameters != nil {
		if _, err := t.Parameters.Map(); err != nil {
			return fmt.Errorf("tool %q has an unusable parameter schema: %w", t.Name, err)
		}
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// MustRegister is Register for static catalogs; it panics on a bad definition.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions lists tool definitions in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Invoke runs the named tool with JSON-encoded arguments and returns the
// JSON-encoded result. Unknown names fail before anything runs.
func (r *Registry) Invoke(ctx context.Context, name string, rawArgs string) (string, error) {
	tool, ok := r.tools[name]
	if !ok {
		return "", &ToolNotFoundError{Name: name}
	}

	args := json.RawMessage(bytes.TrimSpace([]byte(rawArgs)))
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	var object map[string]json.RawMessage
	if err := json.Unmarshal(args, &object); err != nil {
		return "", &ToolExecutionError{Name: name, Err: fmt.Errorf("%w: %v", errArgsNotObject, err)}
	}
	if object == nil {
		return "", &ToolExecutionError{Name: name, Err: errArgsNotObject}
	}

	result, err := tool.Handler(ctx, args)
	if err != nil {
		return "", &ToolExecutionError{Name: name, Err: err}
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return "", &ToolExecutionError{Name: name, Err: fmt.Errorf("failed to encode result: %w", err)}
	}
	return string(encoded), nil
}
