// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for Majordomo
// binaries: fatal error reporting to stderr for errors surfaced from
// run() before the structured logger exists, and process exit after
// an unrecoverable error in main().
package process
