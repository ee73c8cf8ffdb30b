// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/majordomo-home/majordomo/lib/clock"
	"github.com/majordomo-home/majordomo/lib/hub"
	"github.com/majordomo-home/majordomo/lib/llm"
	"github.com/majordomo-home/majordomo/lib/prompt"
	"github.com/majordomo-home/majordomo/lib/tools"
)

// ErrSessionBusy is returned when a turn arrives for a session that
// already has one in flight.
var ErrSessionBusy = errors.New("conversation: session busy")

// SnapshotProvider supplies the exposed-entity view for prompt
// rendering. *hub.Client implements it.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*hub.Snapshot, error)
}

// requestOverheadTokens is the fixed allowance subtracted from the
// context window for tool definitions and protocol framing, which the
// character estimator does not see.
const requestOverheadTokens = 4096

// AgentConfig wires one conversation agent.
type AgentConfig struct {
	// Name identifies the agent in logs, status output, and the
	// service protocol.
	Name string

	// Conversation is the per-agent tuning.
	Conversation Config

	// Provider invokes the model.
	Provider llm.Provider

	// Tools is the agent's tool registry.
	Tools *tools.Registry

	// Prompts renders the system prompt.
	Prompts *prompt.Builder

	// Snapshots supplies the exposed-entity context.
	Snapshots SnapshotProvider

	// Store persists history. Defaults to an in-memory store.
	Store HistoryStore

	// ContextWindow overrides the model's context window in tokens.
	// Zero selects the known window for the configured model.
	ContextWindow int

	// Logger defaults to discard; Clock defaults to the real clock.
	Logger *slog.Logger
	Clock  clock.Clock
}

func (config *AgentConfig) validate() error {
	var problems []error
	if config.Name == "" {
		problems = append(problems, errors.New("agent name is required"))
	}
	if config.Provider == nil {
		problems = append(problems, errors.New("provider is required"))
	}
	if config.Tools == nil {
		problems = append(problems, errors.New("tool registry is required"))
	}
	if config.Prompts == nil {
		problems = append(problems, errors.New("prompt builder is required"))
	}
	if config.Snapshots == nil {
		problems = append(problems, errors.New("snapshot provider is required"))
	}
	for _, issue := range config.Conversation.Validate() {
		problems = append(problems, errors.New(issue))
	}
	return errors.Join(problems...)
}

// Agent owns the sessions of one configured assistant and processes
// their turns. Safe for concurrent use; turns within one session are
// serialized.
type Agent struct {
	name      string
	config    Config
	provider  llm.Provider
	tools     *tools.Registry
	prompts   *prompt.Builder
	snapshots SnapshotProvider
	store     HistoryStore
	logger    *slog.Logger
	clock     clock.Clock
	window    int
	estimator *CharEstimator

	mutex    sync.Mutex
	sessions map[string]*session
	usage    UsageTotals
}

// NewAgent validates the configuration and builds the agent.
func NewAgent(config AgentConfig) (*Agent, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("conversation: invalid agent %q: %w", config.Name, err)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	agentClock := config.Clock
	if agentClock == nil {
		agentClock = clock.Real()
	}
	store := config.Store
	if store == nil {
		store = NewMemoryStore()
	}
	window := config.ContextWindow
	if window == 0 {
		window = llm.ContextWindowForModel(config.Conversation.Model)
	}
	return &Agent{
		name:      config.Name,
		config:    config.Conversation,
		provider:  config.Provider,
		tools:     config.Tools,
		prompts:   config.Prompts,
		snapshots: config.Snapshots,
		store:     store,
		logger:    logger.With("agent", config.Name),
		clock:     agentClock,
		window:    window,
		estimator: NewCharEstimator(),
		sessions:  make(map[string]*session),
	}, nil
}

// Name returns the agent's configured name.
func (agent *Agent) Name() string { return agent.name }

// Model returns the configured model identifier.
func (agent *Agent) Model() string { return agent.config.Model }

// ProcessTurn runs one conversation turn: trim history, refresh or
// reuse the system prompt, iterate model and tools, commit. The
// returned result always carries user-presentable text, whatever the
// terminal state. Errors are reserved for a busy session
// ([ErrSessionBusy]), an empty utterance, a history load failure, and
// cancellation — every model, tool, and prompt fault is absorbed into
// the result.
//
// An empty sessionID starts a new session under a fresh UUID,
// reported back in the result.
func (agent *Agent) ProcessTurn(ctx context.Context, sessionID, userText string) (*TurnResult, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return nil, errors.New("conversation: empty utterance")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	turnSession := agent.session(sessionID)
	if !turnSession.turnMutex.TryLock() {
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, sessionID)
	}
	defer turnSession.turnMutex.Unlock()

	now := agent.clock.Now()
	turnSession.touch(now)
	logger := agent.logger.With("session", sessionID)
	logger.Info("turn started", "chars", len(userText))

	userMessage := llm.UserMessage(userText)

	systemPrompt, promptFault := agent.systemPrompt(ctx, turnSession, now, logger)
	if promptFault != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("turn failed before invocation", "error", promptFault)
		result := &TurnResult{
			SessionID: sessionID,
			Text: "I could not prepare the device context for this " +
				"request. Please try again.",
			State: TurnFailed,
		}
		agent.commit(ctx, turnSession, []llm.Message{userMessage}, logger)
		agent.recordTurn(turnSession, result)
		return result, nil
	}

	working, err := agent.workingList(ctx, turnSession, systemPrompt, userMessage, logger)
	if err != nil {
		return nil, err
	}

	outcome := agent.runLoop(ctx, logger, systemPrompt, working)
	if outcome.err != nil {
		return nil, outcome.err
	}

	result := &TurnResult{
		SessionID:  sessionID,
		Text:       outcome.text,
		State:      outcome.state,
		ToolCalls:  outcome.toolCalls,
		Usage:      outcome.usage,
		ModelCalls: outcome.modelCalls,
	}

	// Done commits the whole exchange; failed and exhausted turns
	// commit only the user message, so history never contains a
	// dangling tool round-trip.
	if outcome.state == TurnDone {
		committed := make([]llm.Message, 0, len(outcome.newMessages)+1)
		committed = append(committed, userMessage)
		committed = append(committed, outcome.newMessages...)
		agent.commit(ctx, turnSession, committed, logger)
	} else {
		agent.commit(ctx, turnSession, []llm.Message{userMessage}, logger)
	}
	agent.recordTurn(turnSession, result)
	logger.Info("turn finished",
		"state", result.State,
		"model_calls", result.ModelCalls,
		"tool_calls", len(result.ToolCalls),
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens)
	return result, nil
}

// session returns the named session, creating it on first use.
func (agent *Agent) session(sessionID string) *session {
	agent.mutex.Lock()
	defer agent.mutex.Unlock()
	if existing, ok := agent.sessions[sessionID]; ok {
		return existing
	}
	created := &session{id: sessionID}
	agent.sessions[sessionID] = created
	return created
}

// systemPrompt returns the prompt for this turn: the cached render
// when policy allows, otherwise a render keyed by the context
// fingerprint so an unchanged context skips the re-render. Snapshot
// and render faults degrade to the cached render when one exists; the
// returned error means no prompt is available at all.
func (agent *Agent) systemPrompt(ctx context.Context, turnSession *session, now time.Time, logger *slog.Logger) (string, error) {
	cached, cachedFingerprint, hasCached := turnSession.promptCache()

	if !agent.config.RefreshPromptEachTurn && hasCached {
		return cached, nil
	}

	snapshot, err := agent.snapshots.Snapshot(ctx)
	if err != nil {
		if hasCached {
			logger.Warn("device snapshot failed, reusing cached prompt", "error", err)
			return cached, nil
		}
		return "", fmt.Errorf("loading device snapshot: %w", err)
	}

	fingerprint := agent.prompts.Fingerprint(snapshot, agent.config.Persona)
	if hasCached && fingerprint == cachedFingerprint {
		return cached, nil
	}

	rendered, err := agent.prompts.Build(snapshot, agent.config.Persona, now)
	if err != nil {
		if hasCached {
			logger.Warn("prompt render failed, reusing cached prompt", "error", err)
			return cached, nil
		}
		return "", err
	}
	turnSession.setPromptCache(rendered, fingerprint)
	logger.Debug("system prompt rendered",
		"chars", len(rendered), "entities", snapshot.EntityCount())
	return rendered, nil
}

// workingList builds the message list for the loop: the retained
// interaction groups plus the new user message, trimmed to the token
// budget. With conversation memory off the list is just the user
// message.
func (agent *Agent) workingList(ctx context.Context, turnSession *session, systemPrompt string, userMessage llm.Message, logger *slog.Logger) ([]llm.Message, error) {
	if !agent.config.RememberConversation {
		return []llm.Message{userMessage}, nil
	}

	stored, err := agent.store.Load(ctx, turnSession.id)
	if err != nil {
		return nil, fmt.Errorf("loading history for session %s: %w", turnSession.id, err)
	}

	kept := recentGroups(stored, agent.config.RememberInteractions)
	working := make([]llm.Message, 0, len(kept)+1)
	working = append(working, kept...)
	working = append(working, userMessage)

	budget := agent.window - agent.config.MaxTokens - requestOverheadTokens
	working, droppedGroups := fitBudget(llm.SystemMessage(systemPrompt), working, agent.estimator, budget)
	if droppedGroups > 0 {
		logger.Debug("history trimmed to token budget",
			"groups_dropped", droppedGroups, "budget_tokens", budget)
	}
	return working, nil
}

// commit appends messages to durable history. Append is atomic, so a
// failure keeps prior history intact; the turn result is returned
// regardless, so the failure is logged rather than surfaced. The
// commit is decoupled from the turn's context: a turn that reached a
// terminal state records its history even when the caller has since
// gone away.
func (agent *Agent) commit(ctx context.Context, turnSession *session, messages []llm.Message, logger *slog.Logger) {
	if err := agent.store.Append(context.WithoutCancel(ctx), turnSession.id, messages); err != nil {
		logger.Error("history commit failed", "messages", len(messages), "error", err)
	}
}

func (agent *Agent) recordTurn(turnSession *session, result *TurnResult) {
	turnSession.bumpTurns()
	agent.mutex.Lock()
	defer agent.mutex.Unlock()
	agent.usage.Turns++
	agent.usage.ModelCalls += int64(result.ModelCalls)
	agent.usage.ToolCalls += int64(len(result.ToolCalls))
	agent.usage.InputTokens += result.Usage.InputTokens
	agent.usage.OutputTokens += result.Usage.OutputTokens
}

// History returns a session's stored messages, oldest first.
func (agent *Agent) History(ctx context.Context, sessionID string) ([]llm.Message, error) {
	return agent.store.Load(ctx, sessionID)
}

// RenderPrompt renders the system prompt from a fresh device
// snapshot. This serves the inspection surface; per-session prompt
// caches are untouched.
func (agent *Agent) RenderPrompt(ctx context.Context) (string, error) {
	snapshot, err := agent.snapshots.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("loading device snapshot: %w", err)
	}
	return agent.prompts.Build(snapshot, agent.config.Persona, agent.clock.Now())
}

// Reset clears a session: stored history and in-memory prompt cache.
// The id remains valid for future turns. A session with a turn in
// flight is not reset; ErrSessionBusy is returned instead.
func (agent *Agent) Reset(ctx context.Context, sessionID string) error {
	agent.mutex.Lock()
	existing, ok := agent.sessions[sessionID]
	agent.mutex.Unlock()
	if ok {
		if !existing.turnMutex.TryLock() {
			return fmt.Errorf("%w: %s", ErrSessionBusy, sessionID)
		}
		defer existing.turnMutex.Unlock()
	}
	agent.mutex.Lock()
	delete(agent.sessions, sessionID)
	agent.mutex.Unlock()
	if err := agent.store.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("clearing history for session %s: %w", sessionID, err)
	}
	return nil
}

// Sessions lists the agent's sessions, most recently active first.
func (agent *Agent) Sessions() []SessionInfo {
	agent.mutex.Lock()
	defer agent.mutex.Unlock()
	infos := make([]SessionInfo, 0, len(agent.sessions))
	for _, active := range agent.sessions {
		infos = append(infos, active.summary())
	}
	slices.SortFunc(infos, func(a, b SessionInfo) int {
		if !a.LastActivity.Equal(b.LastActivity) {
			if a.LastActivity.After(b.LastActivity) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	return infos
}

// ExpireIdle removes sessions idle for at least maxIdle and clears
// their history, returning the expired ids sorted. Sessions with a
// turn in flight are skipped and picked up by a later sweep.
func (agent *Agent) ExpireIdle(ctx context.Context, maxIdle time.Duration) []string {
	now := agent.clock.Now()

	agent.mutex.Lock()
	candidates := make([]*session, 0, len(agent.sessions))
	for _, candidate := range agent.sessions {
		candidates = append(candidates, candidate)
	}
	agent.mutex.Unlock()

	var expired []string
	for _, candidate := range candidates {
		if now.Sub(candidate.summary().LastActivity) < maxIdle {
			continue
		}
		if !candidate.turnMutex.TryLock() {
			continue
		}
		// A turn may have touched the session between the check and
		// the lock.
		if now.Sub(candidate.summary().LastActivity) < maxIdle {
			candidate.turnMutex.Unlock()
			continue
		}
		agent.mutex.Lock()
		delete(agent.sessions, candidate.id)
		agent.mutex.Unlock()
		if err := agent.store.Clear(ctx, candidate.id); err != nil {
			agent.logger.Warn("clearing expired session history",
				"session", candidate.id, "error", err)
		}
		candidate.turnMutex.Unlock()
		expired = append(expired, candidate.id)
		agent.logger.Info("session expired", "session", candidate.id)
	}
	slices.Sort(expired)
	return expired
}

// Status reports the agent's aggregate state.
func (agent *Agent) Status() AgentStatus {
	agent.mutex.Lock()
	defer agent.mutex.Unlock()
	return AgentStatus{
		Name:           agent.name,
		Model:          agent.config.Model,
		ActiveSessions: len(agent.sessions),
		Usage:          agent.usage,
		CharsPerToken:  agent.estimator.Ratio(),
	}
}
