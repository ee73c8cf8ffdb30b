// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a structured error response from the hub. Callers branch
// with errors.As:
//
//	var hubErr *hub.Error
//	if errors.As(err, &hubErr) && hubErr.StatusCode == 404 { ... }
type Error struct {
	// StatusCode is the HTTP status code of the response.
	StatusCode int

	// Message is the hub's error description, when it sent one.
	Message string
}

func (err *Error) Error() string {
	if err.Message != "" {
		return fmt.Sprintf("hub: HTTP %d: %s", err.StatusCode, err.Message)
	}
	return fmt.Sprintf("hub: HTTP %d", err.StatusCode)
}

// IsAuthFailure reports whether err is a hub rejection of the access
// token.
func IsAuthFailure(err error) bool {
	var hubError *Error
	if !errors.As(err, &hubError) {
		return false
	}
	return hubError.StatusCode == http.StatusUnauthorized || hubError.StatusCode == http.StatusForbidden
}
