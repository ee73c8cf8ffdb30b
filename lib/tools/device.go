// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/majordomo-home/majordomo/lib/hub"
	"github.com/majordomo-home/majordomo/lib/llm"
)

// DeviceCommandToolName is the name under which the built-in device
// command tool is offered to the model.
const DeviceCommandToolName = "call_device_service"

// masterDomain services apply to entities of any domain (for example
// homeassistant.turn_off works on lights, switches, and media
// players alike).
const masterDomain = "homeassistant"

// allowedServiceArguments is the closed set of service-data arguments
// the model may pass through to the hub. Everything else the model
// invents is silently dropped rather than forwarded.
var allowedServiceArguments = []string{
	"brightness",
	"brightness_pct",
	"rgb_color",
	"temperature",
	"hvac_mode",
	"target_temp_high",
	"target_temp_low",
	"fan_mode",
	"preset_mode",
	"humidity",
	"position",
	"tilt_position",
	"volume_level",
	"media_content_id",
	"media_content_type",
	"value",
}

// deviceCommandSchema is deliberately open beyond the two required
// parameters: the model attaches service data (brightness, color,
// temperature) ad hoc, and the allow-list filters it.
var deviceCommandSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"service": {
			"type": "string",
			"description": "The service to call, in 'domain.service' format, for example 'light.turn_on'."
		},
		"target_device": {
			"type": "string",
			"description": "The entity id of the device to control, exactly as listed in the system prompt."
		}
	},
	"required": ["service", "target_device"],
	"additionalProperties": true
}`)

// ControlPlane is the hub surface the tools need: command execution
// and the exposed-entity snapshot for target validation. *hub.Client
// implements it.
type ControlPlane interface {
	CallService(ctx context.Context, call hub.ServiceCall) ([]hub.EntityState, error)
	Snapshot(ctx context.Context) (*hub.Snapshot, error)
}

// DeviceCommand is the built-in tool for controlling devices: it
// validates the model's requested service against the exposed-entity
// snapshot, filters the service data, and executes the call.
type DeviceCommand struct {
	plane  ControlPlane
	logger *slog.Logger
}

// NewDeviceCommand creates the device command tool. logger may be nil.
func NewDeviceCommand(plane ControlPlane, logger *slog.Logger) *DeviceCommand {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DeviceCommand{plane: plane, logger: logger}
}

// Definition returns the model-facing definition.
func (tool *DeviceCommand) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name: DeviceCommandToolName,
		Description: "Calls a hub service to control a specific device. " +
			"You MUST provide the exact entity id from the device list in the system prompt. " +
			"Use this tool after identifying the correct device from the user's natural language request. " +
			"For example: if the user says 'turn on the lamp', find the entity id containing 'lamp' in the device list, " +
			"then call this tool with service='light.turn_on' and target_device='light.lamp_entity_id'.",
		InputSchema: deviceCommandSchema,
	}
}

// Call validates and executes one device command. Validation failures
// are tool-level errors fed back to the model; only a cancelled
// context propagates as an error.
func (tool *DeviceCommand) Call(ctx context.Context, arguments json.RawMessage) (string, bool, error) {
	var args map[string]any
	if err := json.Unmarshal(arguments, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err))
	}

	service, _ := args["service"].(string)
	target, _ := args["target_device"].(string)
	if service == "" || target == "" {
		return errorResult("missing required parameters: service and target_device")
	}

	domain, serviceName, ok := splitService(service)
	if !ok {
		return errorResult(fmt.Sprintf("invalid service format %q: expected \"domain.service\"", service))
	}

	snapshot, err := tool.plane.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return errorResult(fmt.Sprintf("cannot verify device %q: %v", target, err))
	}
	if message := validateTarget(snapshot, target, domain); message != "" {
		tool.logger.Debug("device command rejected", "service", service, "target", target, "reason", message)
		return errorResult(message)
	}

	data := make(map[string]any)
	for key, value := range args {
		if slices.Contains(allowedServiceArguments, key) {
			data[key] = value
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
		tool.logger.Warn("device command failed", "service", service, "target", target, "error", err)
		return errorResult(fmt.Sprintf("error calling service %s: %v", service, err))
	}

	tool.logger.Info("device command executed", "service", service, "target", target, "changed", len(changed))
	return successResult(map[string]any{
		"result":  "success",
		"service": service,
		"target":  target,
		"changed": len(changed),
	})
}

// splitService splits "domain.service" into its parts.
func splitService(service string) (domain, name string, ok bool) {
	domain, name, found := strings.Cut(service, ".")
	if !found || domain == "" || name == "" {
		return "", "", false
	}
	return domain, name, true
}

// validateTarget checks that the target is exposed and the service
// domain applies to it. Returns a tool-level error description, empty
// when valid.
func validateTarget(snapshot *hub.Snapshot, targetID, serviceDomain string) string {
	entity, ok := snapshot.Entity(targetID)
	if !ok {
		return fmt.Sprintf("device %q is not exposed to the assistant", targetID)
	}
	if serviceDomain != masterDomain && serviceDomain != entity.Domain {
		return fmt.Sprintf("service domain %q does not match device domain %q", serviceDomain, entity.Domain)
	}
	return ""
}

// errorResult encodes a tool-level failure payload.
func errorResult(message string) (string, bool, error) {
	encoded, err := json.Marshal(map[string]string{"result": "error", "error": message})
	if err != nil {
		return fmt.Sprintf(`{"result":"error","error":%q}`, message), true, nil
	}
	return string(encoded), true, nil
}

// successResult encodes a success payload.
func successResult(fields map[string]any) (string, bool, error) {
	encoded, err := json.Marshal(fields)
	if err != nil {
		return "", false, fmt.Errorf("tools: encoding result: %w", err)
	}
	return string(encoded), false, nil
}
