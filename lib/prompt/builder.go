// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

// Package prompt renders the system prompt: operator persona, current
// time, and the exposed-device listing grouped by area. Renders are
// deterministic for a fixed snapshot and persona, so a BLAKE3 context
// fingerprint decides when a cached render can be reused.
package prompt

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/majordomo-home/majordomo/lib/hub"
)

// DefaultPersona is used when an agent's configuration does not
// provide one.
const DefaultPersona = "You are a voice assistant for a smart home. " +
	"Answer briefly and precisely. When asked to control or query a " +
	"device, use the tools provided rather than guessing."

// DefaultAttributes is the attribute subset shown for every exposed
// entity. Per-agent extra attributes are appended after these.
var DefaultAttributes = []string{
	"brightness",
	"color_temp",
	"rgb_color",
	"temperature",
	"current_temperature",
	"target_temp_high",
	"target_temp_low",
	"hvac_mode",
	"fan_mode",
	"preset_mode",
	"humidity",
	"position",
	"tilt_position",
	"volume_level",
	"media_title",
	"media_content_type",
}

// DefaultTemplate is the built-in system prompt layout. Operators can
// replace it; the data model it binds to is [Data].
const DefaultTemplate = `{{.Persona}}

Current time: {{.Time}}.

{{if .Areas -}}
Devices are listed by area as "entity_id (name): state [attributes]".
Find the entity id for the device the user means in this list and use
that exact id in tool calls. Never ask the user for an entity id.
{{range .Areas}}
{{.Name}}:
{{range .Entities -}}
- {{.ID}}{{with .Name}} ({{.}}){{end}}: {{.State}}{{with .Attributes}} [{{.}}]{{end}}
{{end -}}
{{end -}}
{{else -}}
No devices are currently exposed.
{{end -}}
`

// Data is the root template context.
type Data struct {
	Persona string
	Time    string
	Areas   []AreaData
}

// AreaData is one area and its entities, in snapshot order.
type AreaData struct {
	Name     string
	Entities []EntityData
}

// EntityData is one entity line. Name is empty when the friendly name
// adds nothing over the id; Attributes is the preformatted
// "key: value, key: value" subset, empty when none apply.
type EntityData struct {
	ID         string
	Name       string
	State      string
	Attributes string
}

// RenderError reports a template fault. Callers fall back to a prior
// cached prompt when one exists; the fault never aborts the process.
type RenderError struct {
	Err error
}

func (renderError *RenderError) Error() string {
	return "rendering system prompt: " + renderError.Err.Error()
}

func (renderError *RenderError) Unwrap() error { return renderError.Err }

// Builder renders system prompts with a fixed template and attribute
// subset. Construct once per agent; Build and Fingerprint are safe
// for concurrent use.
type Builder struct {
	template   *template.Template
	attributes []string
}

// NewBuilder creates a builder using the default template. Extra
// attributes are appended to the default subset, sorted and
// deduplicated so the effective set is order-independent.
func NewBuilder(extraAttributes []string) (*Builder, error) {
	return NewBuilderWithTemplate(DefaultTemplate, extraAttributes)
}

// NewBuilderWithTemplate creates a builder with an operator-supplied
// template. Parse errors are reported here, at configuration time,
// not at first render.
func NewBuilderWithTemplate(templateText string, extraAttributes []string) (*Builder, error) {
	parsed, err := template.New("system").Parse(templateText)
	if err != nil {
		return nil, fmt.Errorf("parsing prompt template: %w", err)
	}

	attributes := slices.Clone(DefaultAttributes)
	extras := slices.Clone(extraAttributes)
	slices.Sort(extras)
	extras = slices.Compact(extras)
	for _, extra := range extras {
		if extra != "" && !slices.Contains(attributes, extra) {
			attributes = append(attributes, extra)
		}
	}

	return &Builder{template: parsed, attributes: attributes}, nil
}

// Attributes returns the effective attribute subset: the defaults
// followed by the configured extras. The slice is shared; callers
// must not modify it.
func (builder *Builder) Attributes() []string {
	return builder.attributes
}

// Build renders the system prompt. Identical snapshot, persona, and
// now yield byte-identical output.
func (builder *Builder) Build(snapshot *hub.Snapshot, persona string, now time.Time) (string, error) {
	data := Data{
		Persona: strings.TrimSpace(persona),
		Time:    now.Format(timeLayout),
		Areas:   builder.areas(snapshot),
	}

	var buffer bytes.Buffer
	if err := builder.template.Execute(&buffer, data); err != nil {
		return "", &RenderError{Err: err}
	}
	return buffer.String(), nil
}

// timeLayout favors the spoken-language fields a voice assistant is
// asked about (day of week, date, time) over machine precision.
const timeLayout = "Monday, 2 January 2006, 15:04"

func (builder *Builder) areas(snapshot *hub.Snapshot) []AreaData {
	areas := make([]AreaData, 0, len(snapshot.Areas))
	for _, area := range snapshot.Areas {
		areaName := area.Name
		if areaName == "" {
			areaName = "Unassigned"
		}

		entities := make([]EntityData, 0, len(area.Entities))
		for _, entity := range area.Entities {
			entityName := entity.Name
			if entityName == entity.ID {
				entityName = ""
			}
			entities = append(entities, EntityData{
				ID:         entity.ID,
				Name:       entityName,
				State:      entity.State,
				Attributes: builder.formatAttributes(entity.Attributes),
			})
		}
		areas = append(areas, AreaData{Name: areaName, Entities: entities})
	}
	return areas
}

// formatAttributes renders the configured subset of an entity's
// attributes in builder order. Absent and null attributes are
// skipped.
func (builder *Builder) formatAttributes(attributes map[string]any) string {
	var parts []string
	for _, key := range builder.attributes {
		value, ok := attributes[key]
		if !ok || value == nil {
			continue
		}
		parts = append(parts, key+": "+formatValue(value))
	}
	return strings.Join(parts, ", ")
}

// formatValue renders one attribute value. Floats use the shortest
// exact representation so JSON integers round-trip without a decimal
// point.
func formatValue(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'g', -1, 64)
	case int:
		return strconv.Itoa(typed)
	case []any:
		parts := make([]string, len(typed))
		for i, element := range typed {
			parts[i] = formatValue(element)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", typed)
	}
}
