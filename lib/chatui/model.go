// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/majordomo-home/majordomo/lib/service"
)

// Backend is the chat model's view of the conversation service. The
// socket client satisfies it through a thin adapter in the chat
// binary; tests use a fake.
type Backend interface {
	// Turn processes one utterance and returns the turn's outcome.
	Turn(ctx context.Context, sessionID, text string) (*service.TurnReply, error)

	// Entities returns the current exposed-entity snapshot.
	Entities(ctx context.Context) ([]service.EntityReply, error)

	// Reset clears the session's history.
	Reset(ctx context.Context, sessionID string) error
}

// entryKind classifies transcript entries for rendering.
type entryKind int

const (
	entryUser entryKind = iota
	entryAssistant
	entryNotice
)

// chatEntry is one transcript item. Assistant entries carry the tool
// calls that produced them.
type chatEntry struct {
	kind  entryKind
	text  string
	state string
	tools []service.ToolCallReply
}

// turnResultMsg delivers the backend's turn outcome.
type turnResultMsg struct {
	reply *service.TurnReply
	err   error
}

// entitiesMsg delivers the snapshot for the entity overlay.
type entitiesMsg struct {
	entities []service.EntityReply
	err      error
}

// resetResultMsg delivers the outcome of a session reset.
type resetResultMsg struct {
	err error
}

// Model is the bubbletea model for the chat session. It is a value
// type, as bubbletea expects; Update returns the evolved copy.
type Model struct {
	backend   Backend
	agent     string
	sessionID string
	theme     Theme

	input    textarea.Model
	history  viewport.Model
	spin     spinner.Model
	overlay  *entityOverlay
	entries  []chatEntry
	waiting  bool
	width    int
	height   int
	sized    bool
	status   string
	statusAt slog.Level
}

// NewModel creates the chat model. sessionID may be empty; the
// service mints one on the first turn and the model adopts it.
func NewModel(backend Backend, agent, sessionID string, theme Theme) Model {
	input := textarea.New()
	input.Placeholder = "Ask about or command your home..."
	input.ShowLineNumbers = false
	input.SetHeight(2)
	input.CharLimit = 0
	input.KeyMap.InsertNewline.SetEnabled(false)
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(theme.SpinnerColor)

	return Model{
		backend:   backend,
		agent:     agent,
		sessionID: sessionID,
		theme:     theme,
		input:     input,
		spin:      spin,
	}
}

// SessionID returns the session the model is talking in; empty until
// the first completed turn when none was supplied.
func (model Model) SessionID() string { return model.sessionID }

// Init starts the cursor blink.
func (model Model) Init() tea.Cmd {
	return textarea.Blink
}

// chromeHeight is the vertical space around the history viewport:
// header, divider, input, status line.
const chromeHeight = 5

// Update is the bubbletea state transition.
func (model Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		model.width = typed.Width
		model.height = typed.Height
		model.input.SetWidth(typed.Width - 2)
		if !model.sized {
			model.history = viewport.New(typed.Width, max(typed.Height-chromeHeight, 3))
			model.sized = true
		} else {
			model.history.Width = typed.Width
			model.history.Height = max(typed.Height-chromeHeight, 3)
		}
		model.refreshHistory(true)
		return model, nil

	case tea.KeyMsg:
		return model.updateKey(typed)

	case turnResultMsg:
		model.waiting = false
		model.appendTurnResult(typed)
		model.refreshHistory(true)
		return model, nil

	case entitiesMsg:
		if typed.err != nil {
			return model.showStatus(fmt.Sprintf("loading entities: %v", typed.err), slog.LevelError)
		}
		model.overlay = newEntityOverlay(typed.entities, model.theme)
		return model, nil

	case resetResultMsg:
		if typed.err != nil {
			return model.showStatus(fmt.Sprintf("reset failed: %v", typed.err), slog.LevelError)
		}
		model.entries = append(model.entries, chatEntry{
			kind: entryNotice,
			text: "Session reset. The assistant has forgotten this conversation.",
		})
		model.refreshHistory(true)
		return model, nil

	case logRecordMsg:
		return model.showStatus(typed.Summary, typed.Level)

	case logRecordFadeMsg:
		model.status = ""
		return model, nil

	case spinner.TickMsg:
		if !model.waiting {
			return model, nil
		}
		var cmd tea.Cmd
		model.spin, cmd = model.spin.Update(typed)
		return model, cmd
	}

	var cmd tea.Cmd
	model.input, cmd = model.input.Update(msg)
	return model, cmd
}

// updateKey routes one key press.
func (model Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if model.overlay != nil {
		done, selected := model.overlay.Update(msg)
		if done {
			model.overlay = nil
			if selected != nil {
				model.input.SetValue(strings.TrimRight(model.input.Value()+" "+selected.Name, " "))
				model.input.CursorEnd()
			}
		}
		return model, nil
	}

	switch msg.Type {
	case tea.KeyCtrlC:
		return model, tea.Quit

	case tea.KeyEnter:
		if model.waiting {
			return model, nil
		}
		text := strings.TrimSpace(model.input.Value())
		if text == "" {
			return model, nil
		}
		model.input.Reset()
		model.entries = append(model.entries, chatEntry{kind: entryUser, text: text})
		model.waiting = true
		model.refreshHistory(true)
		return model, tea.Batch(model.startTurn(text), model.spin.Tick)

	case tea.KeyCtrlE:
		if model.waiting {
			return model, nil
		}
		return model, model.loadEntities()

	case tea.KeyCtrlR:
		if model.waiting || model.sessionID == "" {
			return model, nil
		}
		return model, model.startReset()

	case tea.KeyPgUp:
		model.history.HalfViewUp()
		return model, nil

	case tea.KeyPgDown:
		model.history.HalfViewDown()
		return model, nil
	}

	var cmd tea.Cmd
	model.input, cmd = model.input.Update(msg)
	return model, cmd
}

// startTurn sends the utterance to the service. The command runs off
// the Update loop; its context is independent of the TUI's because a
// turn in flight should finish even while the display churns.
func (model Model) startTurn(text string) tea.Cmd {
	backend := model.backend
	sessionID := model.sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), service.TurnCallTimeout)
		defer cancel()
		reply, err := backend.Turn(ctx, sessionID, text)
		return turnResultMsg{reply: reply, err: err}
	}
}

func (model Model) loadEntities() tea.Cmd {
	backend := model.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), service.DefaultCallTimeout)
		defer cancel()
		entities, err := backend.Entities(ctx)
		return entitiesMsg{entities: entities, err: err}
	}
}

func (model Model) startReset() tea.Cmd {
	backend := model.backend
	sessionID := model.sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), service.DefaultCallTimeout)
		defer cancel()
		return resetResultMsg{err: backend.Reset(ctx, sessionID)}
	}
}

// appendTurnResult converts a turn outcome into transcript entries.
// Failures degrade to a notice entry; the conversation display stays
// consistent either way.
func (model *Model) appendTurnResult(result turnResultMsg) {
	if result.err != nil {
		var callError *service.CallError
		text := fmt.Sprintf("The conversation service reported an error: %v", result.err)
		if errors.As(result.err, &callError) {
			text = "The conversation service refused the turn: " + callError.Message
		}
		model.entries = append(model.entries, chatEntry{kind: entryNotice, text: text})
		return
	}

	reply := result.reply
	model.sessionID = reply.SessionID
	model.entries = append(model.entries, chatEntry{
		kind:  entryAssistant,
		text:  reply.Text,
		state: reply.State,
		tools: reply.ToolCalls,
	})
}

// showStatus puts a line in the status bar and schedules its fade.
func (model Model) showStatus(text string, level slog.Level) (tea.Model, tea.Cmd) {
	model.status = text
	model.statusAt = level
	return model, tea.Tick(logRecordFadeDelay, func(time.Time) tea.Msg {
		return logRecordFadeMsg{}
	})
}

// refreshHistory re-renders the transcript into the viewport.
func (model *Model) refreshHistory(toBottom bool) {
	if !model.sized {
		return
	}
	model.history.SetContent(model.renderTranscript())
	if toBottom {
		model.history.GotoBottom()
	}
}

// renderTranscript renders all entries at the current width.
func (model *Model) renderTranscript() string {
	width := max(model.width-2, 20)

	userLabel := lipgloss.NewStyle().Foreground(model.theme.UserLabel).Bold(true)
	assistantLabel := lipgloss.NewStyle().Foreground(model.theme.AssistantLabel).Bold(true)
	notice := lipgloss.NewStyle().Foreground(model.theme.ErrorText).Italic(true)
	plain := lipgloss.NewStyle().Foreground(model.theme.NormalText)

	var transcript strings.Builder
	for index, entry := range model.entries {
		if index > 0 {
			transcript.WriteString("\n")
		}
		switch entry.kind {
		case entryUser:
			transcript.WriteString(userLabel.Render("you") + "\n")
			transcript.WriteString(plain.Width(width).Render(entry.text) + "\n")
		case entryAssistant:
			transcript.WriteString(assistantLabel.Render(model.agent) + "\n")
			for _, tool := range entry.tools {
				transcript.WriteString(model.renderToolCall(tool, width) + "\n")
			}
			switch entry.state {
			case "done", "":
				transcript.WriteString(RenderMarkdown(entry.text, model.theme, width) + "\n")
			default:
				transcript.WriteString(notice.Width(width).Render(entry.text) + "\n")
			}
		case entryNotice:
			transcript.WriteString(notice.Width(width).Render(entry.text) + "\n")
		}
	}
	return transcript.String()
}

// renderToolCall renders one "⚙ name target → outcome" line.
func (model *Model) renderToolCall(tool service.ToolCallReply, width int) string {
	style := lipgloss.NewStyle().Foreground(model.theme.ToolText)
	outcome := "ok"
	if tool.IsError {
		style = lipgloss.NewStyle().Foreground(model.theme.ToolErrText)
		outcome = "error"
	}
	line := fmt.Sprintf("⚙ %s → %s", tool.Name, outcome)
	return style.Width(width).Render(line)
}

// View assembles the full screen.
func (model Model) View() string {
	if !model.sized {
		return "starting..."
	}

	header := lipgloss.NewStyle().
		Foreground(model.theme.HeaderForeground).
		Bold(true).
		Render("majordomo — " + model.agent + model.sessionSuffix())

	divider := lipgloss.NewStyle().
		Foreground(model.theme.BorderColor).
		Render(strings.Repeat("─", max(model.width, 1)))

	body := model.history.View()
	if model.overlay != nil {
		body = lipgloss.Place(model.width, model.history.Height,
			lipgloss.Center, lipgloss.Center, model.overlay.View(model.width))
	}

	status := model.statusLine()

	return header + "\n" + body + "\n" + divider + "\n" + model.input.View() + "\n" + status
}

func (model Model) sessionSuffix() string {
	if model.sessionID == "" {
		return ""
	}
	short := model.sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return "  [" + short + "]"
}

// statusLine shows, in priority order: a recent log record, the
// waiting spinner, or the key help.
func (model Model) statusLine() string {
	if model.status != "" {
		color := model.theme.FaintText
		if model.statusAt >= slog.LevelError {
			color = model.theme.ErrorText
		}
		return lipgloss.NewStyle().Foreground(color).Render(model.status)
	}
	if model.waiting {
		return model.spin.View() + lipgloss.NewStyle().
			Foreground(model.theme.FaintText).
			Render(" thinking...")
	}
	return lipgloss.NewStyle().
		Foreground(model.theme.HelpText).
		Render("enter send  ctrl+e entities  ctrl+r reset  pgup/pgdn scroll  ctrl+c quit")
}
