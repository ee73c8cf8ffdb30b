// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sceneDeclaration = `{
	// Activates a pre-configured scene.
	"name": "activate_scene",
	"description": "Activates a scene by its entity id.",
	"input_schema": {
		"type": "object",
		"properties": {
			"scene_id": {"type": "string"},
			"transition": {"type": "number"},
		},
		"required": ["scene_id"],
	},
	"service": "scene.turn_on",
	"target_parameter": "scene_id",
	"data_parameters": ["transition"],
}`

func TestParseDeclaration(t *testing.T) {
	t.Parallel()

	// Comments and trailing commas are accepted.
	declaration, err := ParseDeclaration([]byte(sceneDeclaration))
	if err != nil {
		t.Fatalf("ParseDeclaration: %v", err)
	}
	if declaration.Name != "activate_scene" {
		t.Errorf("Name = %q", declaration.Name)
	}
	if declaration.Service != "scene.turn_on" {
		t.Errorf("Service = %q", declaration.Service)
	}
	if declaration.TargetParameter != "scene_id" {
		t.Errorf("TargetParameter = %q", declaration.TargetParameter)
	}
	if !json.Valid(declaration.InputSchema) {
		t.Error("InputSchema not normalized to valid JSON")
	}
}

func TestParseDeclarationInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		wantIssue string
	}{
		{
			"missing name",
			`{"description": "d", "input_schema": {}, "service": "scene.turn_on", "target_parameter": "id"}`,
			"name is required",
		},
		{
			"uppercase name",
			`{"name": "ActivateScene", "description": "d", "input_schema": {}, "service": "scene.turn_on", "target_parameter": "id"}`,
			"lowercase identifier",
		},
		{
			"missing schema",
			`{"name": "activate_scene", "description": "d", "service": "scene.turn_on", "target_parameter": "id"}`,
			"input_schema is required",
		},
		{
			"malformed service",
			`{"name": "activate_scene", "description": "d", "input_schema": {}, "service": "sceneturnon", "target_parameter": "id"}`,
			`"domain.service" format`,
		},
		{
			"missing target parameter",
			`{"name": "activate_scene", "description": "d", "input_schema": {}, "service": "scene.turn_on"}`,
			"target_parameter is required",
		},
		{
			"target repeated in data parameters",
			`{"name": "activate_scene", "description": "d", "input_schema": {}, "service": "scene.turn_on", "target_parameter": "id", "data_parameters": ["id"]}`,
			"must not repeat target_parameter",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseDeclaration([]byte(test.input))
			if err == nil {
				t.Fatal("invalid declaration accepted")
			}
			if !strings.Contains(err.Error(), test.wantIssue) {
				t.Errorf("err = %v, want substring %q", err, test.wantIssue)
			}
		})
	}
}

func TestLoadDeclarationDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	vacuum := `{
		"name": "start_vacuum",
		"description": "Starts the vacuum cleaner.",
		"input_schema": {"type": "object", "properties": {"vacuum_id": {"type": "string"}}},
		"service": "vacuum.start",
		"target_parameter": "vacuum_id"
	}`
	for name, content := range map[string]string{
		"20-vacuum.jsonc": vacuum,
		"10-scene.jsonc":  sceneDeclaration,
		"notes.txt":       "not a declaration",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir.jsonc"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	declarations, err := LoadDeclarationDir(dir)
	if err != nil {
		t.Fatalf("LoadDeclarationDir: %v", err)
	}
	if length := len(declarations); length != 2 {
		t.Fatalf("declarations = %d, want 2", length)
	}
	// Sorted by file name, not declaration name.
	if declarations[0].Name != "activate_scene" || declarations[1].Name != "start_vacuum" {
		t.Errorf("order = [%s, %s]", declarations[0].Name, declarations[1].Name)
	}
}

func TestLoadDeclarationDirMissing(t *testing.T) {
	t.Parallel()

	declarations, err := LoadDeclarationDir(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("missing directory reported as error: %v", err)
	}
	if declarations != nil {
		t.Errorf("declarations = %v, want nil", declarations)
	}
}

func TestLoadDeclarationDirInvalidFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.jsonc"), []byte(`{"name": ""}`), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	_, err := LoadDeclarationDir(dir)
	if err == nil {
		t.Fatal("invalid declaration file accepted")
	}
	if !strings.Contains(err.Error(), "broken.jsonc") {
		t.Errorf("err = %v, want file name in message", err)
	}
}

func TestDeclaredToolCall(t *testing.T) {
	t.Parallel()

	declaration, err := ParseDeclaration([]byte(sceneDeclaration))
	if err != nil {
		t.Fatalf("ParseDeclaration: %v", err)
	}
	plane := &fakePlane{snapshot: testSnapshot()}
	tool := NewDeclaredTool(declaration, plane, nil)

	if name := tool.Definition().Name; name != "activate_scene" {
		t.Errorf("Definition().Name = %q", name)
	}

	output, isError, err := tool.Call(context.Background(), json.RawMessage(`{
		"scene_id": "scene.movie_night",
		"transition": 2,
		"surprise": "dropped"
	}`))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if isError {
		t.Fatalf("isError = true, output: %s", output)
	}

	if length := len(plane.calls); length != 1 {
		t.Fatalf("service calls = %d, want 1", length)
	}
	call := plane.calls[0]
	if call.Domain != "scene" || call.Service != "turn_on" {
		t.Errorf("call = %s.%s, want scene.turn_on", call.Domain, call.Service)
	}
	if call.EntityID != "scene.movie_night" {
		t.Errorf("EntityID = %q", call.EntityID)
	}
	if transition, ok := call.Data["transition"].(float64); !ok || transition != 2 {
		t.Errorf("transition = %v, want 2", call.Data["transition"])
	}
	// Only declared data parameters pass through.
	if _, ok := call.Data["surprise"]; ok {
		t.Error("undeclared parameter forwarded to the hub")
	}
}

func TestDeclaredToolMissingTarget(t *testing.T) {
	t.Parallel()

	declaration, err := ParseDeclaration([]byte(sceneDeclaration))
	if err != nil {
		t.Fatalf("ParseDeclaration: %v", err)
	}
	tool := NewDeclaredTool(declaration, &fakePlane{snapshot: testSnapshot()}, nil)

	output, isError, err := tool.Call(context.Background(), json.RawMessage(`{"transition": 2}`))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !isError {
		t.Fatal("missing target accepted")
	}
	result := decodeResult(t, output)
	if description, _ := result["error"].(string); !strings.Contains(description, `"scene_id"`) {
		t.Errorf("error = %q, want parameter name", description)
	}
}

func TestDeclaredToolUnexposedTarget(t *testing.T) {
	t.Parallel()

	declaration, err := ParseDeclaration([]byte(sceneDeclaration))
	if err != nil {
		t.Fatalf("ParseDeclaration: %v", err)
	}
	plane := &fakePlane{snapshot: testSnapshot()}
	tool := NewDeclaredTool(declaration, plane, nil)

	_, isError, err := tool.Call(context.Background(), json.RawMessage(`{"scene_id": "scene.secret"}`))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !isError {
		t.Fatal("unexposed target accepted")
	}
	if len(plane.calls) != 0 {
		t.Error("rejected call reached the hub")
	}
}
