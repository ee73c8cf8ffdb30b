// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides bounded HTTP response helpers shared by the
// hub and model-provider clients.
//
// All body reads are capped at MaxResponseSize so that a misbehaving
// server cannot exhaust memory. The helpers are for JSON API responses
// (hub state queries, Converse replies) — not for streaming or large
// binary downloads.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize is the bound on API response body reads: 32 MB. A
// full entity-state dump from a large hub is well under a megabyte;
// the limit only exists to stop a pathological response from
// exhausting memory.
const MaxResponseSize int64 = 32 << 20

// ReadResponse reads an API response body up to MaxResponseSize bytes.
// Use instead of io.ReadAll when reading HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads an API response body (up to MaxResponseSize
// bytes) and JSON-decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody reads an HTTP error response body and returns it as a
// string for diagnostic error messages. Read errors are silently
// ignored — a partial or empty body is still useful in an error
// message.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	return string(data)
}
