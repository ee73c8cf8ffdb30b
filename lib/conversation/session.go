// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"sync"
	"time"

	"github.com/majordomo-home/majordomo/lib/prompt"
)

// session is the in-memory per-session state. Message history lives
// in the HistoryStore; this holds only the prompt cache and activity
// accounting. turnMutex is held for the duration of one turn —
// TryLock failure is the busy rejection.
type session struct {
	id        string
	turnMutex sync.Mutex

	stateMutex     sync.Mutex
	cachedPrompt   string
	fingerprint    prompt.Fingerprint
	hasFingerprint bool
	turns          int64
	lastActivity   time.Time
}

// SessionInfo is the externally visible session summary.
type SessionInfo struct {
	ID           string    `json:"id"`
	Turns        int64     `json:"turns"`
	LastActivity time.Time `json:"last_activity"`
}

func (active *session) touch(now time.Time) {
	active.stateMutex.Lock()
	defer active.stateMutex.Unlock()
	active.lastActivity = now
}

func (active *session) bumpTurns() {
	active.stateMutex.Lock()
	defer active.stateMutex.Unlock()
	active.turns++
}

func (active *session) summary() SessionInfo {
	active.stateMutex.Lock()
	defer active.stateMutex.Unlock()
	return SessionInfo{ID: active.id, Turns: active.turns, LastActivity: active.lastActivity}
}

// promptCache returns the cached render and the fingerprint of the
// context it was rendered from. ok is false before the first
// successful render.
func (active *session) promptCache() (cached string, fingerprint prompt.Fingerprint, ok bool) {
	active.stateMutex.Lock()
	defer active.stateMutex.Unlock()
	return active.cachedPrompt, active.fingerprint, active.hasFingerprint
}

func (active *session) setPromptCache(rendered string, fingerprint prompt.Fingerprint) {
	active.stateMutex.Lock()
	defer active.stateMutex.Unlock()
	active.cachedPrompt = rendered
	active.fingerprint = fingerprint
	active.hasFingerprint = true
}
