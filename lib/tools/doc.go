// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

// Package tools defines the tool surface offered to the model: the
// Tool interface, the per-agent Registry, the built-in device command
// tool, and operator-declared tools loaded from JSONC files.
//
// The failure contract splits two layers. A tool-level failure
// (unknown device, rejected arguments, hub refusal) is reported
// through the isError return and fed back to the model, which decides
// how to phrase the failure to the user. A non-nil error return is an
// infrastructure failure — an unknown tool name or a cancelled
// context — and is the turn loop's problem, not the model's.
package tools
