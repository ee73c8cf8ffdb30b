// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/majordomo-home/majordomo/lib/service"
)

// socketBackend adapts the socket client to the chat model's Backend
// interface.
type socketBackend struct {
	client *service.Client
	agent  string
	logger *slog.Logger
}

func (backend *socketBackend) Turn(ctx context.Context, sessionID, text string) (*service.TurnReply, error) {
	var reply service.TurnReply
	err := backend.client.Call(ctx, service.ActionTurn, map[string]any{
		"agent":      backend.agent,
		"session_id": sessionID,
		"text":       text,
	}, &reply)
	if err != nil {
		backend.logger.Warn("turn failed", "error", err)
		return nil, err
	}
	return &reply, nil
}

func (backend *socketBackend) Entities(ctx context.Context) ([]service.EntityReply, error) {
	var entities []service.EntityReply
	if err := backend.client.Call(ctx, service.ActionEntities, nil, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

func (backend *socketBackend) Reset(ctx context.Context, sessionID string) error {
	return backend.client.Call(ctx, service.ActionReset, map[string]any{
		"agent":      backend.agent,
		"session_id": sessionID,
	}, nil)
}

// resolveAgentName asks the daemon which agent this chat talks to:
// the --agent flag when given, otherwise the sole configured agent.
func (backend *socketBackend) resolveAgentName(ctx context.Context) (string, error) {
	var status service.StatusReply
	if err := backend.client.Call(ctx, service.ActionStatus, nil, &status); err != nil {
		return "", err
	}
	if backend.agent != "" {
		for _, agent := range status.Agents {
			if agent.Name == backend.agent {
				return agent.Name, nil
			}
		}
		return "", fmt.Errorf("agent %q is not configured", backend.agent)
	}
	if len(status.Agents) == 1 {
		return status.Agents[0].Name, nil
	}
	names := make([]string, 0, len(status.Agents))
	for _, agent := range status.Agents {
		names = append(names, agent.Name)
	}
	return "", fmt.Errorf("--agent required, configured agents: %v", names)
}
