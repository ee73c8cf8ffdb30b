// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/majordomo-home/majordomo/lib/clock"
	"github.com/majordomo-home/majordomo/lib/codec"
	"github.com/majordomo-home/majordomo/lib/conversation"
	"github.com/majordomo-home/majordomo/lib/hub"
	"github.com/majordomo-home/majordomo/lib/llm"
	"github.com/majordomo-home/majordomo/lib/service"
	"github.com/majordomo-home/majordomo/lib/transcript"
	"github.com/majordomo-home/majordomo/lib/version"
)

// ConversationService is the daemon's action surface: the attached
// agents, the hub, and the per-agent transcript recorders.
type ConversationService struct {
	agents    *conversation.Registry
	hub       *hub.Client
	recorders map[string]*transcript.Recorder
	clock     clock.Clock
	logger    *slog.Logger
	startedAt time.Time

	// recorderMu serializes transcript writes per turn result. The
	// recorders themselves are concurrency-safe; the mutex keeps a
	// record and the archive of the same session ordered.
	recorderMu sync.Mutex
}

// registerActions registers the service's socket actions.
func (daemon *ConversationService) registerActions(server *service.SocketServer) {
	server.Handle(service.ActionTurn, daemon.handleTurn)
	server.Handle(service.ActionHistory, daemon.handleHistory)
	server.Handle(service.ActionReset, daemon.handleReset)
	server.Handle(service.ActionSessions, daemon.handleSessions)
	server.Handle(service.ActionEntities, daemon.handleEntities)
	server.Handle(service.ActionPrompt, daemon.handlePrompt)
	server.Handle(service.ActionStatus, daemon.handleStatus)
}

// detachAgents unregisters every attached agent. Runs during shutdown
// after the socket server has drained.
func (daemon *ConversationService) detachAgents() {
	for _, name := range daemon.agents.Names() {
		daemon.agents.Detach(name)
	}
}

func (daemon *ConversationService) handleTurn(ctx context.Context, raw []byte) (any, error) {
	var request service.TurnRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding turn request: %w", err)
	}
	if strings.TrimSpace(request.Text) == "" {
		return nil, fmt.Errorf("turn request has no text")
	}
	agent, err := daemon.agents.Resolve(request.Agent)
	if err != nil {
		return nil, err
	}

	result, err := agent.ProcessTurn(ctx, request.SessionID, request.Text)
	if err != nil {
		return nil, err
	}
	daemon.recordTurn(agent.Name(), request.Text, result)
	return turnReply(result), nil
}

// turnReply maps a turn result onto the wire shape.
func turnReply(result *conversation.TurnResult) service.TurnReply {
	reply := service.TurnReply{
		SessionID:    result.SessionID,
		Text:         result.Text,
		State:        string(result.State),
		ModelCalls:   result.ModelCalls,
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
	}
	for _, call := range result.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, service.ToolCallReply{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: call.Arguments,
			Output:    call.Output,
			IsError:   call.IsError,
		})
	}
	return reply
}

// recordTurn appends the turn to the agent's transcript if recording
// is enabled. Recording failures are logged, never surfaced: the turn
// already happened.
func (daemon *ConversationService) recordTurn(agentName, userText string, result *conversation.TurnResult) {
	recorder, ok := daemon.recorders[agentName]
	if !ok {
		return
	}
	daemon.recorderMu.Lock()
	defer daemon.recorderMu.Unlock()
	record := transcript.TurnRecord{
		SessionID:    result.SessionID,
		UserText:     userText,
		State:        result.State,
		Text:         result.Text,
		ModelCalls:   result.ModelCalls,
		ToolCalls:    result.ToolCalls,
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
	}
	if err := recorder.Record(record); err != nil {
		daemon.logger.Warn("transcript record failed",
			"agent", agentName, "session", result.SessionID, "error", err)
	}
}

func (daemon *ConversationService) handleHistory(ctx context.Context, raw []byte) (any, error) {
	var request service.TurnRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding history request: %w", err)
	}
	if request.SessionID == "" {
		return nil, fmt.Errorf("history request has no session_id")
	}
	agent, err := daemon.agents.Resolve(request.Agent)
	if err != nil {
		return nil, err
	}
	messages, err := agent.History(ctx, request.SessionID)
	if err != nil {
		return nil, err
	}
	reply := service.HistoryReply{SessionID: request.SessionID}
	for _, message := range messages {
		reply.Messages = append(reply.Messages, messageReply(message))
	}
	return reply, nil
}

// messageReply flattens one stored message for display: text blocks
// joined, tool activity reduced to names and outcome summaries.
func messageReply(message llm.Message) service.MessageReply {
	reply := service.MessageReply{Role: string(message.Role)}
	var texts []string
	for _, block := range message.Content {
		switch block.Type {
		case llm.ContentText:
			if block.Text != "" {
				texts = append(texts, block.Text)
			}
		case llm.ContentToolUse:
			reply.Tools = append(reply.Tools, block.ToolUse.Name)
		case llm.ContentToolResult:
			summary := block.ToolResult.Content
			if block.ToolResult.IsError {
				summary = "error: " + summary
			}
			reply.Results = append(reply.Results, summary)
		}
	}
	reply.Text = strings.Join(texts, "\n")
	return reply
}

func (daemon *ConversationService) handleReset(ctx context.Context, raw []byte) (any, error) {
	var request service.TurnRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding reset request: %w", err)
	}
	if request.SessionID == "" {
		return nil, fmt.Errorf("reset request has no session_id")
	}
	agent, err := daemon.agents.Resolve(request.Agent)
	if err != nil {
		return nil, err
	}
	if err := agent.Reset(ctx, request.SessionID); err != nil {
		return nil, err
	}
	daemon.archiveTranscript(agent.Name(), request.SessionID)
	return nil, nil
}

// archiveTranscript finalizes the session's transcript after a reset
// or expiry. Archive failures are logged; the session is already gone.
func (daemon *ConversationService) archiveTranscript(agentName, sessionID string) {
	recorder, ok := daemon.recorders[agentName]
	if !ok {
		return
	}
	daemon.recorderMu.Lock()
	defer daemon.recorderMu.Unlock()
	if err := recorder.Archive(sessionID); err != nil {
		daemon.logger.Warn("transcript archive failed",
			"agent", agentName, "session", sessionID, "error", err)
	}
}

func (daemon *ConversationService) handleSessions(_ context.Context, raw []byte) (any, error) {
	var request service.TurnRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding sessions request: %w", err)
	}
	agent, err := daemon.agents.Resolve(request.Agent)
	if err != nil {
		return nil, err
	}
	sessions := agent.Sessions()
	replies := make([]service.SessionReply, 0, len(sessions))
	for _, info := range sessions {
		replies = append(replies, service.SessionReply{
			ID:           info.ID,
			Turns:        int(info.Turns),
			LastActivity: info.LastActivity,
		})
	}
	return replies, nil
}

func (daemon *ConversationService) handleEntities(ctx context.Context, _ []byte) (any, error) {
	snapshot, err := daemon.hub.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading device snapshot: %w", err)
	}
	var replies []service.EntityReply
	for _, area := range snapshot.Areas {
		for _, entity := range area.Entities {
			replies = append(replies, service.EntityReply{
				ID:     entity.ID,
				Domain: entity.Domain,
				Name:   entity.Name,
				Area:   entity.Area,
				State:  entity.State,
			})
		}
	}
	return replies, nil
}

func (daemon *ConversationService) handlePrompt(ctx context.Context, raw []byte) (any, error) {
	var request service.TurnRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding prompt request: %w", err)
	}
	agent, err := daemon.agents.Resolve(request.Agent)
	if err != nil {
		return nil, err
	}
	rendered, err := agent.RenderPrompt(ctx)
	if err != nil {
		return nil, err
	}
	return service.PromptReply{Agent: agent.Name(), Prompt: rendered}, nil
}

func (daemon *ConversationService) handleStatus(context.Context, []byte) (any, error) {
	reply := service.StatusReply{
		Version:       version.Version,
		UptimeSeconds: daemon.clock.Now().Sub(daemon.startedAt).Seconds(),
	}
	for _, agent := range daemon.agents.All() {
		status := agent.Status()
		reply.Agents = append(reply.Agents, service.AgentStatusReply{
			Name:           status.Name,
			Model:          status.Model,
			ActiveSessions: status.ActiveSessions,
			Turns:          status.Usage.Turns,
			ModelCalls:     status.Usage.ModelCalls,
			ToolCalls:      status.Usage.ToolCalls,
			InputTokens:    status.Usage.InputTokens,
			OutputTokens:   status.Usage.OutputTokens,
			CharsPerToken:  status.CharsPerToken,
		})
	}
	return reply, nil
}

// expireIdleSessions runs one expiry sweep across all agents and
// archives the transcripts of what expired.
func (daemon *ConversationService) expireIdleSessions(ctx context.Context, maxIdle time.Duration) {
	for _, agent := range daemon.agents.All() {
		for _, sessionID := range agent.ExpireIdle(ctx, maxIdle) {
			daemon.archiveTranscript(agent.Name(), sessionID)
		}
	}
}
