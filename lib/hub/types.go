// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"slices"
	"strings"
	"time"
)

// EntityState is one entry of the hub's state dump, as the hub
// serializes it.
type EntityState struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// FriendlyName returns the attribute-provided display name, falling
// back to the entity id.
func (state EntityState) FriendlyName() string {
	if name, ok := state.Attributes["friendly_name"].(string); ok && name != "" {
		return name
	}
	return state.EntityID
}

// EntityDomain returns the domain portion of an entity id
// ("light.kitchen" → "light"). An id without a dot is its own domain.
func EntityDomain(entityID string) string {
	if index := strings.IndexByte(entityID, '.'); index >= 0 {
		return entityID[:index]
	}
	return entityID
}

// Entity is an exposed entity as the conversation service sees it:
// identity, display name, area assignment, current state, and the raw
// attribute map for prompt rendering.
type Entity struct {
	ID         string         `json:"id"`
	Domain     string         `json:"domain"`
	Name       string         `json:"name"`
	Area       string         `json:"area,omitempty"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Area groups the exposed entities assigned to one area. Entities
// without an area assignment collect under the empty name.
type Area struct {
	Name     string   `json:"name"`
	Entities []Entity `json:"entities"`
}

// Snapshot is a point-in-time view of the exposed entities, grouped by
// area. Areas are sorted by name with the unassigned group last;
// entities within an area are sorted by id. The ordering is part of
// the contract: prompt rendering must be deterministic.
type Snapshot struct {
	Areas []Area    `json:"areas"`
	Taken time.Time `json:"taken"`
}

// Entity looks up an exposed entity by id. The second return is false
// when the id is not in the snapshot.
func (snapshot *Snapshot) Entity(entityID string) (Entity, bool) {
	for _, area := range snapshot.Areas {
		for _, entity := range area.Entities {
			if entity.ID == entityID {
				return entity, true
			}
		}
	}
	return Entity{}, false
}

// EntityCount returns the total number of exposed entities.
func (snapshot *Snapshot) EntityCount() int {
	count := 0
	for _, area := range snapshot.Areas {
		count += len(area.Entities)
	}
	return count
}

// ExposeFilter selects which hub entities the assistant may see and
// control. An entity is exposed when its id is in Entities, or its
// domain is in Domains — unless the id is in Exclude, which always
// wins.
type ExposeFilter struct {
	// Domains lists entity domains exposed wholesale ("light",
	// "switch", "climate").
	Domains []string `json:"domains,omitempty" yaml:"domains"`

	// Entities lists individual entity ids exposed regardless of
	// domain.
	Entities []string `json:"entities,omitempty" yaml:"entities"`

	// Exclude lists entity ids never exposed, overriding both lists.
	Exclude []string `json:"exclude,omitempty" yaml:"exclude"`
}

// Exposed reports whether the filter exposes the given entity id.
func (filter ExposeFilter) Exposed(entityID string) bool {
	if slices.Contains(filter.Exclude, entityID) {
		return false
	}
	if slices.Contains(filter.Entities, entityID) {
		return true
	}
	return slices.Contains(filter.Domains, EntityDomain(entityID))
}

// ServiceCall is one device command: a hub service invocation targeted
// at an entity, with optional service data.
type ServiceCall struct {
	Domain   string
	Service  string
	EntityID string
	Data     map[string]any
}

// groupByArea assembles sorted areas from a flat entity list.
func groupByArea(entities []Entity) []Area {
	byArea := make(map[string][]Entity)
	for _, entity := range entities {
		byArea[entity.Area] = append(byArea[entity.Area], entity)
	}

	names := make([]string, 0, len(byArea))
	for name := range byArea {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		// Unassigned entities sort after every named area.
		if a == "" && b != "" {
			return 1
		}
		if b == "" && a != "" {
			return -1
		}
		return strings.Compare(a, b)
	})

	areas := make([]Area, 0, len(names))
	for _, name := range names {
		areaEntities := byArea[name]
		slices.SortFunc(areaEntities, func(a, b Entity) int {
			return strings.Compare(a.ID, b.ID)
		})
		areas = append(areas, Area{Name: name, Entities: areaEntities})
	}
	return areas
}
