// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/majordomo-home/majordomo/lib/hub"
	"github.com/majordomo-home/majordomo/lib/llm"
)

// toolNamePattern matches valid tool names: lowercase identifiers, the
// shape every model family accepts for function names.
var toolNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Declaration is an operator-authored tool definition, loaded from a
// JSONC file (JSON extended with comments and trailing commas). It
// binds a model-facing name, description, and argument schema to a
// fixed hub service, so operators can expose curated capabilities
// ("activate_scene", "start_vacuum") without writing code.
type Declaration struct {
	// Name is the model-facing tool name.
	Name string `json:"name"`

	// Description tells the model when to use the tool.
	Description string `json:"description"`

	// InputSchema is the JSON-schema argument spec sent to the model.
	InputSchema json.RawMessage `json:"input_schema"`

	// Service is the hub service the tool invokes, in
	// "domain.service" format.
	Service string `json:"service"`

	// TargetParameter names the schema parameter that carries the
	// target entity id.
	TargetParameter string `json:"target_parameter"`

	// DataParameters lists the schema parameters forwarded as service
	// data. Arguments outside this list are dropped.
	DataParameters []string `json:"data_parameters,omitempty"`
}

// Validate checks a Declaration for structural issues. Returns a list
// of human-readable issue descriptions; empty means valid.
func (declaration *Declaration) Validate() []string {
	var issues []string

	if declaration.Name == "" {
		issues = append(issues, "name is required")
	} else if !toolNamePattern.MatchString(declaration.Name) {
		issues = append(issues, fmt.Sprintf("name %q must be a lowercase identifier ([a-z][a-z0-9_]*)", declaration.Name))
	}

	if declaration.Description == "" {
		issues = append(issues, "description is required")
	}

	if len(declaration.InputSchema) == 0 || string(declaration.InputSchema) == "null" {
		issues = append(issues, "input_schema is required")
	} else if !json.Valid(declaration.InputSchema) {
		issues = append(issues, "input_schema is not valid JSON")
	}

	if declaration.Service == "" {
		issues = append(issues, "service is required")
	} else if _, _, ok := splitService(declaration.Service); !ok {
		issues = append(issues, fmt.Sprintf("service %q must be in \"domain.service\" format", declaration.Service))
	}

	if declaration.TargetParameter == "" {
		issues = append(issues, "target_parameter is required")
	}

	for _, parameter := range declaration.DataParameters {
		if parameter == "" {
			issues = append(issues, "data_parameters entries must be non-empty")
		}
		if parameter == declaration.TargetParameter {
			issues = append(issues, fmt.Sprintf("data_parameters must not repeat target_parameter %q", parameter))
		}
	}

	return issues
}

// ParseDeclaration strips JSONC comments and trailing commas from
// data, unmarshals the result, and validates it.
func ParseDeclaration(data []byte) (*Declaration, error) {
	stripped := jsonc.ToJSON(data)

	var declaration Declaration
	if err := json.Unmarshal(stripped, &declaration); err != nil {
		return nil, fmt.Errorf("parsing tool declaration: %w", err)
	}

	if issues := declaration.Validate(); len(issues) > 0 {
		return nil, fmt.Errorf("invalid tool declaration: %s", strings.Join(issues, "; "))
	}
	return &declaration, nil
}

// ReadDeclarationFile reads a JSONC tool declaration from disk.
func ReadDeclarationFile(path string) (*Declaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	declaration, err := ParseDeclaration(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return declaration, nil
}

// LoadDeclarationDir loads every *.jsonc file in dir, sorted by file
// name for deterministic registration order. A missing directory is
// not an error — declared tools are optional.
func LoadDeclarationDir(dir string) ([]*Declaration, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading tool directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonc" {
			continue
		}
		names = append(names, entry.Name())
	}
	slices.Sort(names)

	declarations := make([]*Declaration, 0, len(names))
	for _, name := range names {
		declaration, err := ReadDeclarationFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		declarations = append(declarations, declaration)
	}
	return declarations, nil
}

// DeclaredTool executes a Declaration against the hub. The same
// exposure and domain rules as the built-in device command apply; the
// declaration only narrows what the model can express.
type DeclaredTool struct {
	declaration *Declaration
	plane       ControlPlane
	logger      *slog.Logger
}

// NewDeclaredTool binds a declaration to the hub. logger may be nil.
func NewDeclaredTool(declaration *Declaration, plane ControlPlane, logger *slog.Logger) *DeclaredTool {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DeclaredTool{declaration: declaration, plane: plane, logger: logger}
}

// Definition returns the model-facing definition from the declaration.
func (tool *DeclaredTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        tool.declaration.Name,
		Description: tool.declaration.Description,
		InputSchema: tool.declaration.InputSchema,
	}
}

// Call resolves the target parameter, applies the exposure and domain
// checks, and invokes the declared service with the declared data
// parameters.
func (tool *DeclaredTool) Call(ctx context.Context, arguments json.RawMessage) (string, bool, error) {
	var args map[string]any
	if err := json.Unmarshal(arguments, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err))
	}

	target, _ := args[tool.declaration.TargetParameter].(string)
	if target == "" {
		return errorResult(fmt.Sprintf("missing required parameter %q", tool.declaration.TargetParameter))
	}

	domain, serviceName, _ := splitService(tool.declaration.Service)

	snapshot, err := tool.plane.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return errorResult(fmt.Sprintf("cannot verify device %q: %v", target, err))
	}
	if message := validateTarget(snapshot, target, domain); message != "" {
		tool.logger.Debug("declared tool rejected", "tool", tool.declaration.Name, "target", target, "reason", message)
		return errorResult(message)
	}

	data := make(map[string]any)
	for _, parameter := range tool.declaration.DataParameters {
		if value, ok := args[parameter]; ok {
			data[parameter] = value
		}
	}

	changed, err := tool.plane.CallService(ctx, hub.ServiceCall{
		Domain:   domain,
		Service:  serviceName,
		EntityID: target,
		Data:     data,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		tool.logger.Warn("declared tool failed", "tool", tool.declaration.Name, "target", target, "error", err)
		return errorResult(fmt.Sprintf("error calling service %s: %v", tool.declaration.Service, err))
	}

	tool.logger.Info("declared tool executed", "tool", tool.declaration.Name, "target", target, "changed", len(changed))
	return successResult(map[string]any{
		"result":  "success",
		"service": tool.declaration.Service,
		"target":  target,
		"changed": len(changed),
	})
}
