// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/majordomo-home/majordomo/lib/llm"
)

// staticTool returns a fixed output and records the arguments it was
// called with.
type staticTool struct {
	name      string
	output    string
	arguments json.RawMessage
}

func (tool *staticTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        tool.name,
		Description: "test tool " + tool.name,
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}
}

func (tool *staticTool) Call(ctx context.Context, arguments json.RawMessage) (string, bool, error) {
	tool.arguments = arguments
	return tool.output, false, nil
}

func TestRegistryDefinitionsOrder(t *testing.T) {
	t.Parallel()

	registry, err := NewRegistry(
		&staticTool{name: "charlie"},
		&staticTool{name: "alpha"},
		&staticTool{name: "bravo"},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	// Registration order, not sorted order: the model sees tools in
	// the order the operator configured them.
	want := []string{"charlie", "alpha", "bravo"}
	definitions := registry.Definitions()
	if length := len(definitions); length != len(want) {
		t.Fatalf("definitions = %d, want %d", length, len(want))
	}
	for i, definition := range definitions {
		if definition.Name != want[i] {
			t.Errorf("definitions[%d].Name = %q, want %q", i, definition.Name, want[i])
		}
	}

	names := registry.Names()
	for i, name := range names {
		if name != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, name, want[i])
		}
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(
		&staticTool{name: "call_device_service"},
		&staticTool{name: "call_device_service"},
	)
	if err == nil {
		t.Fatal("duplicate tool name accepted")
	}
	if !strings.Contains(err.Error(), "duplicate tool name") {
		t.Errorf("err = %v", err)
	}
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(&staticTool{name: ""})
	if err == nil {
		t.Fatal("empty tool name accepted")
	}
}

func TestRegistryCallDispatch(t *testing.T) {
	t.Parallel()

	first := &staticTool{name: "first", output: "first output"}
	second := &staticTool{name: "second", output: "second output"}
	registry, err := NewRegistry(first, second)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	arguments := json.RawMessage(`{"key": "value"}`)
	output, isError, err := registry.Call(context.Background(), "second", arguments)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if isError {
		t.Fatal("isError = true")
	}
	if output != "second output" {
		t.Errorf("output = %q, want %q", output, "second output")
	}
	if string(second.arguments) != string(arguments) {
		t.Errorf("arguments = %s, want %s", second.arguments, arguments)
	}
	if first.arguments != nil {
		t.Error("dispatch reached the wrong tool")
	}
}

func TestRegistryCallUnknown(t *testing.T) {
	t.Parallel()

	registry, err := NewRegistry(&staticTool{name: "known"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	_, _, err = registry.Call(context.Background(), "unknown", nil)
	if err == nil {
		t.Fatal("unknown tool name accepted")
	}
	if !strings.Contains(err.Error(), "unknown tool") {
		t.Errorf("err = %v", err)
	}
}
