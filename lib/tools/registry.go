// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/majordomo-home/majordomo/lib/llm"
)

// Tool is one callable capability offered to the model.
type Tool interface {
	// Definition returns the model-facing definition: name,
	// description, and JSON-schema argument spec.
	Definition() llm.ToolDefinition

	// Call executes the tool with the model-supplied JSON arguments.
	// A tool-level failure is reported with isError=true and the
	// description in output; a non-nil error is an infrastructure
	// failure (notably a cancelled context) that the caller must not
	// feed back to the model.
	Call(ctx context.Context, arguments json.RawMessage) (output string, isError bool, err error)
}

// Registry holds one agent's tools in registration order. It is built
// once at agent construction and read-only afterwards; Register is
// not safe to call concurrently with Call or Definitions.
type Registry struct {
	order       []string
	tools       map[string]Tool
	definitions []llm.ToolDefinition
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(registryTools ...Tool) (*Registry, error) {
	registry := &Registry{tools: make(map[string]Tool)}
	for _, tool := range registryTools {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Register adds a tool. Duplicate names are an error: the model
// addresses tools by name, so a collision would make dispatch
// ambiguous.
func (registry *Registry) Register(tool Tool) error {
	definition := tool.Definition()
	if definition.Name == "" {
		return fmt.Errorf("tools: tool has empty name")
	}
	if _, exists := registry.tools[definition.Name]; exists {
		return fmt.Errorf("tools: duplicate tool name %q", definition.Name)
	}
	registry.order = append(registry.order, definition.Name)
	registry.tools[definition.Name] = tool
	registry.definitions = append(registry.definitions, definition)
	return nil
}

// Definitions returns the model-facing definitions in registration
// order. The slice is shared; callers must not modify it.
func (registry *Registry) Definitions() []llm.ToolDefinition {
	return registry.definitions
}

// Names returns the tool names in registration order.
func (registry *Registry) Names() []string {
	return registry.order
}

// Call dispatches to the named tool. An unknown name is an
// infrastructure error — the model was never offered it, so the
// caller decides how to report the mismatch.
func (registry *Registry) Call(ctx context.Context, name string, arguments json.RawMessage) (string, bool, error) {
	tool, ok := registry.tools[name]
	if !ok {
		return "", false, fmt.Errorf("tools: unknown tool %q", name)
	}
	return tool.Call(ctx, arguments)
}
