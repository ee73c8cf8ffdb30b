// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm provides the conversation message model and the client
// for the model invocation backend.
//
// The package defines provider-neutral types — [Message], [ContentBlock],
// [ToolUse], [ToolResult], [Request], [Response] — and the [Provider]
// interface that sends a request and returns the model's reply. The one
// production implementation is [Bedrock], which speaks the AWS Bedrock
// Converse API. Translation between the internal types and the Converse
// wire format lives entirely inside the provider; nothing outside this
// package sees wire JSON.
//
// Request signing is deliberately not handled here. The caller supplies
// an *http.Client whose transport attaches credentials (a SigV4 signing
// round-tripper, or nothing when a bearer API key is configured on the
// provider). This keeps the package free of AWS SDK machinery and makes
// every code path testable against httptest servers.
package llm
