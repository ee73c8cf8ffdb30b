// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"context"
	"slices"
	"sync"

	"github.com/majordomo-home/majordomo/lib/llm"
)

// HistoryStore persists per-session message history. Append is
// all-or-nothing: a failure leaves the prior history intact.
// Implementations must be safe for concurrent use across sessions.
//
// Stored history holds user, assistant, and tool messages only; the
// system prompt is derived per turn and never stored.
type HistoryStore interface {
	// Load returns a session's messages, oldest first. A session with
	// no history returns an empty slice, not an error.
	Load(ctx context.Context, sessionID string) ([]llm.Message, error)

	// Append atomically adds messages to the end of a session's
	// history.
	Append(ctx context.Context, sessionID string, messages []llm.Message) error

	// Clear removes a session's history.
	Clear(ctx context.Context, sessionID string) error
}

// MemoryStore is the in-memory [HistoryStore], used when no durable
// store is configured and throughout the tests. History does not
// survive a restart.
type MemoryStore struct {
	mutex    sync.Mutex
	sessions map[string][]llm.Message
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]llm.Message)}
}

func (store *MemoryStore) Load(_ context.Context, sessionID string) ([]llm.Message, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return slices.Clone(store.sessions[sessionID]), nil
}

func (store *MemoryStore) Append(_ context.Context, sessionID string, messages []llm.Message) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.sessions[sessionID] = append(store.sessions[sessionID], messages...)
	return nil
}

func (store *MemoryStore) Clear(_ context.Context, sessionID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	delete(store.sessions, sessionID)
	return nil
}

// interactionGroup is a contiguous message span kept or dropped as a
// unit when trimming. A group starts at a user message containing
// text and runs through every assistant and tool message until the
// next such user message, so a tool round-trip never separates from
// the exchange that produced it.
type interactionGroup struct {
	start, end int // [start, end) into the message slice
}

// identifyGroups partitions messages into interaction groups.
// Messages before the first user text message (possible after a
// partial clear) belong to no group and are treated as older than the
// oldest group.
func identifyGroups(messages []llm.Message) []interactionGroup {
	var groups []interactionGroup
	start := -1
	for i, message := range messages {
		if message.Role == llm.RoleUser && hasText(message) {
			if start >= 0 {
				groups = append(groups, interactionGroup{start: start, end: i})
			}
			start = i
		}
	}
	if start >= 0 {
		groups = append(groups, interactionGroup{start: start, end: len(messages)})
	}
	return groups
}

func hasText(message llm.Message) bool {
	for _, block := range message.Content {
		if block.Type == llm.ContentText {
			return true
		}
	}
	return false
}

// recentGroups returns the messages of the newest keep groups in
// order. keep <= 0 returns nil.
func recentGroups(messages []llm.Message, keep int) []llm.Message {
	if keep <= 0 {
		return nil
	}
	groups := identifyGroups(messages)
	if len(groups) == 0 {
		return nil
	}
	first := groups[0]
	if len(groups) > keep {
		first = groups[len(groups)-keep]
	}
	return messages[first.start:]
}

// fitBudget drops the oldest groups from messages until the estimate
// for system plus messages fits the token budget. The final group
// (the current exchange) is never dropped, even when it alone
// overflows: the provider enforces its own hard limit. Returns the
// surviving messages and the number of groups dropped.
func fitBudget(system llm.Message, messages []llm.Message, estimator *CharEstimator, budget int) ([]llm.Message, int) {
	dropped := 0
	for {
		estimateList := append([]llm.Message{system}, messages...)
		if estimator.EstimateTokens(estimateList) <= budget {
			return messages, dropped
		}
		groups := identifyGroups(messages)
		if len(groups) <= 1 {
			return messages, dropped
		}
		messages = messages[groups[1].start:]
		dropped++
	}
}
