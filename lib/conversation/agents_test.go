// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"strings"
	"testing"
)

func testAgent(t *testing.T, name string) *Agent {
	t.Helper()
	fixture := newAgentFixture(t, func(config *AgentConfig) {
		config.Name = name
	})
	return fixture.agent
}

func TestRegistryAttach(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	kitchen := testAgent(t, "kitchen")
	if err := registry.Attach(kitchen); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := registry.Attach(testAgent(t, "kitchen")); err == nil {
		t.Fatal("duplicate name attached")
	}

	got, ok := registry.Get("kitchen")
	if !ok || got != kitchen {
		t.Errorf("Get returned %v, %v", got, ok)
	}
	if _, ok := registry.Get("absent"); ok {
		t.Error("Get found an absent agent")
	}
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	if _, err := registry.Resolve(""); err == nil {
		t.Fatal("empty registry resolved an agent")
	}

	kitchen := testAgent(t, "kitchen")
	if err := registry.Attach(kitchen); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	// A sole agent resolves without a name.
	got, err := registry.Resolve("")
	if err != nil || got != kitchen {
		t.Fatalf("Resolve(\"\") = %v, %v", got, err)
	}
	if _, err := registry.Resolve("absent"); err == nil {
		t.Fatal("unknown name resolved")
	}

	if err := registry.Attach(testAgent(t, "living")); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	_, err = registry.Resolve("")
	if err == nil {
		t.Fatal("ambiguous resolve succeeded with two agents")
	}
	if !strings.Contains(err.Error(), "2 agents") {
		t.Errorf("ambiguity error = %q", err)
	}
	if got, err := registry.Resolve("living"); err != nil || got.Name() != "living" {
		t.Errorf("Resolve(living) = %v, %v", got, err)
	}
}

func TestRegistryNamesAndAll(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	for _, name := range []string{"living", "bedroom", "kitchen"} {
		if err := registry.Attach(testAgent(t, name)); err != nil {
			t.Fatalf("Attach(%s): %v", name, err)
		}
	}

	names := registry.Names()
	want := []string{"bedroom", "kitchen", "living"}
	if len(names) != len(want) {
		t.Fatalf("Names = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names = %v, want %v", names, want)
		}
	}

	all := registry.All()
	for i, agent := range all {
		if agent.Name() != want[i] {
			t.Errorf("All[%d] = %q, want %q", i, agent.Name(), want[i])
		}
	}

	registry.Detach("kitchen")
	registry.Detach("absent")
	if names := registry.Names(); len(names) != 2 {
		t.Errorf("Names after detach = %v", names)
	}
}
