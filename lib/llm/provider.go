// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Provider is the interface to the model invocation backend.
// Implementations translate between the common types in this package
// and the backend's wire format.
type Provider interface {
	// Complete sends a request and blocks until the full response is
	// available.
	Complete(ctx context.Context, request Request) (*Response, error)
}

// ErrorKind classifies a [ProviderError] into the categories the turn
// controller reports differently to the user.
type ErrorKind string

const (
	// ErrorKindAuth covers rejected or expired credentials.
	ErrorKindAuth ErrorKind = "auth"

	// ErrorKindThrottle covers rate limiting and quota exhaustion.
	ErrorKindThrottle ErrorKind = "throttle"

	// ErrorKindMalformed covers requests the backend rejected as
	// invalid (bad model identifier, schema violations).
	ErrorKindMalformed ErrorKind = "malformed"

	// ErrorKindTimeout covers backend-side model timeouts. Context
	// deadline expiry on the client side is reported as the context
	// error, not a ProviderError.
	ErrorKindTimeout ErrorKind = "timeout"

	// ErrorKindOther covers everything else (backend faults,
	// unavailable models).
	ErrorKindOther ErrorKind = "other"
)

// ProviderError is returned when the backend responds with an error.
type ProviderError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Code is the backend's error type identifier (for Bedrock, the
	// x-amzn-errortype value, e.g. "ThrottlingException").
	Code string

	// Message is the human-readable error description.
	Message string
}

func (err *ProviderError) Error() string {
	if err.Code != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", err.StatusCode, err.Code, err.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", err.StatusCode, err.Message)
}

// Kind classifies the error for user-facing reporting.
func (err *ProviderError) Kind() ErrorKind {
	switch err.Code {
	case "AccessDeniedException", "UnrecognizedClientException",
		"ExpiredTokenException", "InvalidSignatureException",
		"UnauthorizedException":
		return ErrorKindAuth
	case "ThrottlingException", "TooManyRequestsException",
		"ServiceQuotaExceededException":
		return ErrorKindThrottle
	case "ValidationException", "SerializationException":
		return ErrorKindMalformed
	case "ModelTimeoutException":
		return ErrorKindTimeout
	}

	switch err.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrorKindAuth
	case http.StatusTooManyRequests:
		return ErrorKindThrottle
	case http.StatusBadRequest:
		return ErrorKindMalformed
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrorKindTimeout
	}
	return ErrorKindOther
}

// IsRateLimited returns true if the error is a throttling response.
func (err *ProviderError) IsRateLimited() bool {
	return err.Kind() == ErrorKindThrottle
}

// ErrorKindOf extracts the classification from an error chain.
// Non-provider errors report ErrorKindTimeout when they wrap a context
// deadline, otherwise ErrorKindOther.
func ErrorKindOf(err error) ErrorKind {
	var providerError *ProviderError
	if errors.As(err, &providerError) {
		return providerError.Kind()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	return ErrorKindOther
}

// errorCodeFromHeader extracts the bare exception name from an
// x-amzn-errortype header value. The header sometimes carries a
// trailing URI ("ThrottlingException:http://..."), which is stripped.
func errorCodeFromHeader(value string) string {
	if index := strings.IndexByte(value, ':'); index >= 0 {
		return value[:index]
	}
	return value
}
