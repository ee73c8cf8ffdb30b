// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

// Package conversation orchestrates turns between user utterances and
// a tool-calling model.
//
// An [Agent] owns the sessions of one configured assistant: per turn
// it trims history to the configured memory and token budget,
// refreshes or reuses the system prompt, runs the model/tool
// iteration loop, and commits the exchange to the [HistoryStore]
// atomically. Faults degrade to natural-language answers; only
// cancellation and a busy session reach the caller as Go errors.
//
// Turns within a session never interleave: a second concurrent turn
// is rejected with [ErrSessionBusy]. Distinct sessions and distinct
// agents are independent.
package conversation
