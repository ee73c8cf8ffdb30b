// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/majordomo-home/majordomo/lib/service"
)

// fakeBackend records calls and returns canned replies.
type fakeBackend struct {
	turnReply *service.TurnReply
	turnErr   error
	entities  []service.EntityReply
	resetErr  error

	turnSession  string
	turnText     string
	resetSession string
}

func (backend *fakeBackend) Turn(_ context.Context, sessionID, text string) (*service.TurnReply, error) {
	backend.turnSession = sessionID
	backend.turnText = text
	return backend.turnReply, backend.turnErr
}

func (backend *fakeBackend) Entities(context.Context) ([]service.EntityReply, error) {
	return backend.entities, nil
}

func (backend *fakeBackend) Reset(_ context.Context, sessionID string) error {
	backend.resetSession = sessionID
	return backend.resetErr
}

// sizedModel creates a model and delivers the initial window size.
func sizedModel(backend Backend) Model {
	model := NewModel(backend, "butler", "", DefaultTheme)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(Model)
}

func typeText(model Model, text string) Model {
	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return updated.(Model)
}

func pressKey(model Model, key tea.KeyType) (Model, tea.Cmd) {
	updated, cmd := model.Update(tea.KeyMsg{Type: key})
	return updated.(Model), cmd
}

func TestModelSubmitTurn(t *testing.T) {
	backend := &fakeBackend{
		turnReply: &service.TurnReply{
			SessionID: "session-1",
			Text:      "The light is now on.",
			State:     "done",
		},
	}
	model := sizedModel(backend)
	model = typeText(model, "turn on the light")

	model, cmd := pressKey(model, tea.KeyEnter)
	if cmd == nil {
		t.Fatal("expected a command from enter")
	}
	if !model.waiting {
		t.Error("model should be waiting after submit")
	}
	if len(model.entries) != 1 || model.entries[0].kind != entryUser {
		t.Fatalf("expected one user entry, got %+v", model.entries)
	}
	if model.entries[0].text != "turn on the light" {
		t.Errorf("user entry text = %q", model.entries[0].text)
	}
	if model.input.Value() != "" {
		t.Error("input should be cleared after submit")
	}

	// Run the turn command directly and feed its result back.
	result := model.startTurn("turn on the light")()
	updated, _ := model.Update(result)
	model = updated.(Model)

	if model.waiting {
		t.Error("model should not be waiting after the result arrives")
	}
	if model.sessionID != "session-1" {
		t.Errorf("model should adopt the minted session, got %q", model.sessionID)
	}
	if len(model.entries) != 2 || model.entries[1].kind != entryAssistant {
		t.Fatalf("expected assistant entry appended, got %+v", model.entries)
	}
	if backend.turnText != "turn on the light" {
		t.Errorf("backend saw text %q", backend.turnText)
	}
}

func TestModelSubmitEmptyInputIgnored(t *testing.T) {
	model := sizedModel(&fakeBackend{})
	model = typeText(model, "   ")

	model, cmd := pressKey(model, tea.KeyEnter)
	if cmd != nil {
		t.Error("whitespace-only input should not produce a command")
	}
	if model.waiting || len(model.entries) != 0 {
		t.Error("whitespace-only input should not change state")
	}
}

func TestModelSubmitWhileWaitingIgnored(t *testing.T) {
	model := sizedModel(&fakeBackend{turnReply: &service.TurnReply{SessionID: "s"}})
	model = typeText(model, "first")
	model, _ = pressKey(model, tea.KeyEnter)

	model = typeText(model, "second")
	model, cmd := pressKey(model, tea.KeyEnter)
	if cmd != nil {
		t.Error("submit while waiting should be ignored")
	}
	if len(model.entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(model.entries))
	}
}

func TestModelTurnError(t *testing.T) {
	backend := &fakeBackend{
		turnErr: &service.CallError{Action: "turn", Message: "session busy"},
	}
	model := sizedModel(backend)

	result := model.startTurn("hello")()
	updated, _ := model.Update(result)
	model = updated.(Model)

	if model.waiting {
		t.Error("waiting should clear on error")
	}
	if len(model.entries) != 1 || model.entries[0].kind != entryNotice {
		t.Fatalf("expected a notice entry, got %+v", model.entries)
	}
	if !strings.Contains(model.entries[0].text, "session busy") {
		t.Errorf("notice should carry the service message, got %q", model.entries[0].text)
	}
}

func TestModelFailedTurnRenderedAsNotice(t *testing.T) {
	// A turn that the service completed but marked failed renders the
	// explanation styled as a notice, not as assistant markdown.
	backend := &fakeBackend{
		turnReply: &service.TurnReply{
			SessionID: "s",
			Text:      "The model provider is unreachable.",
			State:     "failed",
		},
	}
	model := sizedModel(backend)

	result := model.startTurn("hello")()
	updated, _ := model.Update(result)
	model = updated.(Model)

	if len(model.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(model.entries))
	}
	entry := model.entries[0]
	if entry.kind != entryAssistant || entry.state != "failed" {
		t.Errorf("expected assistant entry with failed state, got %+v", entry)
	}
	view := ansi.Strip(model.View())
	if !strings.Contains(view, "The model provider is unreachable.") {
		t.Error("failed turn text should appear in the view")
	}
}

func TestModelToolCallsRendered(t *testing.T) {
	model := sizedModel(&fakeBackend{})
	updated, _ := model.Update(turnResultMsg{reply: &service.TurnReply{
		SessionID: "s",
		Text:      "Done.",
		State:     "done",
		ToolCalls: []service.ToolCallReply{
			{Name: "call_device_service", Output: "ok"},
			{Name: "call_device_service", IsError: true, Output: "no such entity"},
		},
	}})
	model = updated.(Model)

	transcript := ansi.Strip(model.renderTranscript())
	if strings.Count(transcript, "call_device_service") != 2 {
		t.Errorf("expected both tool lines, got:\n%s", transcript)
	}
	if !strings.Contains(transcript, "→ error") {
		t.Errorf("expected error outcome, got:\n%s", transcript)
	}
	if !strings.Contains(transcript, "→ ok") {
		t.Errorf("expected ok outcome, got:\n%s", transcript)
	}
}

func TestModelReset(t *testing.T) {
	backend := &fakeBackend{}
	model := sizedModel(backend)
	model.sessionID = "session-9"

	_, cmd := pressKey(model, tea.KeyCtrlR)
	if cmd == nil {
		t.Fatal("expected a reset command")
	}
	result := cmd()
	if backend.resetSession != "session-9" {
		t.Errorf("backend saw session %q", backend.resetSession)
	}

	updated, _ := model.Update(result)
	model = updated.(Model)
	if len(model.entries) != 1 || model.entries[0].kind != entryNotice {
		t.Fatalf("expected reset notice, got %+v", model.entries)
	}
}

func TestModelResetWithoutSessionIgnored(t *testing.T) {
	model := sizedModel(&fakeBackend{})
	_, cmd := pressKey(model, tea.KeyCtrlR)
	if cmd != nil {
		t.Error("reset with no session should be a no-op")
	}
}

func TestModelResetError(t *testing.T) {
	model := sizedModel(&fakeBackend{})
	updated, _ := model.Update(resetResultMsg{err: errors.New("no such session")})
	model = updated.(Model)
	if model.status == "" || !strings.Contains(model.status, "no such session") {
		t.Errorf("expected error in status, got %q", model.status)
	}
}

func TestModelEntityOverlay(t *testing.T) {
	backend := &fakeBackend{entities: []service.EntityReply{
		{ID: "light.kitchen", Domain: "light", Name: "Kitchen Light", State: "off"},
		{ID: "light.porch", Domain: "light", Name: "Porch Light", State: "on"},
	}}
	model := sizedModel(backend)
	model = typeText(model, "turn off")

	_, cmd := pressKey(model, tea.KeyCtrlE)
	if cmd == nil {
		t.Fatal("expected an entities command")
	}
	updated, _ := model.Update(cmd())
	model = updated.(Model)
	if model.overlay == nil {
		t.Fatal("overlay should be open")
	}

	// Filter down to the porch light and select it.
	model = typeText(model, "porch")
	model, _ = pressKey(model, tea.KeyEnter)
	if model.overlay != nil {
		t.Fatal("overlay should close on selection")
	}
	if !strings.Contains(model.input.Value(), "Porch Light") {
		t.Errorf("selection should land in the input, got %q", model.input.Value())
	}
	if !strings.HasPrefix(model.input.Value(), "turn off") {
		t.Errorf("existing input should be preserved, got %q", model.input.Value())
	}
}

func TestModelEntityOverlayEscape(t *testing.T) {
	model := sizedModel(&fakeBackend{})
	model.overlay = newEntityOverlay([]service.EntityReply{
		{ID: "light.kitchen", Name: "Kitchen Light"},
	}, model.theme)

	model, _ = pressKey(model, tea.KeyEsc)
	if model.overlay != nil {
		t.Error("escape should close the overlay")
	}
	if model.input.Value() != "" {
		t.Errorf("escape should not insert anything, got %q", model.input.Value())
	}
}

func TestModelLogRecordStatus(t *testing.T) {
	model := sizedModel(&fakeBackend{})
	updated, cmd := model.Update(logRecordMsg{Summary: "hub reconnected", Level: slog.LevelInfo})
	model = updated.(Model)
	if model.status != "hub reconnected" {
		t.Errorf("status = %q", model.status)
	}
	if cmd == nil {
		t.Fatal("expected a fade command")
	}

	updated, _ = model.Update(logRecordFadeMsg{})
	model = updated.(Model)
	if model.status != "" {
		t.Errorf("status should fade, got %q", model.status)
	}
}

func TestModelViewContainsHelp(t *testing.T) {
	model := sizedModel(&fakeBackend{})
	view := ansi.Strip(model.View())
	if !strings.Contains(view, "ctrl+e entities") {
		t.Errorf("expected key help in the view, got:\n%s", view)
	}
	if !strings.Contains(view, "butler") {
		t.Errorf("expected agent name in the header, got:\n%s", view)
	}
}

func TestModelQuit(t *testing.T) {
	model := sizedModel(&fakeBackend{})
	_, cmd := pressKey(model, tea.KeyCtrlC)
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if msg := cmd(); msg != tea.Quit() {
		t.Errorf("expected tea.Quit, got %T", msg)
	}
}
