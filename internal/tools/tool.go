// Package tools holds the catalog of operations the language model may call
// and dispatches model-requested invocations to them by name.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// Schema is the JSON-Schema subset used to describe tool parameters.
type Schema struct {
	Type                 string             `json:"type"`
	Description          string             `json:"description,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Enum                 []string           `json:"enum,omitempty"`
	AdditionalProperties *bool              `json:"additionalProperties,omitempty"`
}

// Object builds a closed object schema (no additional properties).
func Object(description string, properties map[string]*Schema, required ...string) *Schema {
	closed := false
	return &Schema{
		Type:                 "object",
		Description:          description,
		Properties:           properties,
		Required:             required,
		AdditionalProperties: &closed,
	}
}

func String(description string) *Schema {
	return &Schema{Type: "string", Description: description}
}

func Integer(description string) *Schema {
	return &Schema{Type: "integer", Description: description}
}

func Enum(description string, values ...string) *Schema {
	return &Schema{Type: "string", Description: description, Enum: values}
}

// Map renders the schema as a generic JSON object.
func (s *Schema) Map() (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	if out == nil {
		return nil, errors.New("schema is not a JSON object")
	}
	return out, nil
}

// Definition describes a tool's interface to the model.
type Definition struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters"`
}

// Handler executes a tool. args is the raw JSON object sent by the model; the
// returned value is serialised to JSON and fed back to the model.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool is a registered operation.
type Tool struct {
	Definition
	Handler Handler
}

// DecodeArgs decodes a tool's JSON arguments into dst, rejecting keys the
// tool does not declare.
func DecodeArgs(args json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// ToolNotFoundError is returned when the model asks for a tool that is not
// registered.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %q not found", e.Name)
}

// ToolExecutionError is returned when a tool's arguments cannot be parsed or
// its handler fails.
type ToolExecutionError struct {
	Name string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Name, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

var (
	nameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

	errArgsNotObject = errors.New("arguments must be a JSON object")
)
