// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/majordomo-home/majordomo/lib/codec"
)

// dialTimeout is the maximum time to wait for a connection to the
// service socket. This covers only the connect phase.
const dialTimeout = 5 * time.Second

// DefaultCallTimeout bounds how long the client waits for a response
// after writing the request. Suitable for every action except turn.
const DefaultCallTimeout = 45 * time.Second

// TurnCallTimeout is the response wait for turn actions, which spend
// real time in the model/tool loop — several model invocations plus
// device commands.
const TurnCallTimeout = 5 * time.Minute

// maxResponseSize is the maximum size of a single CBOR response.
// History responses are the largest, and retention caps those.
const maxResponseSize = 4 * 1024 * 1024

// CallError is returned by Call when the server responds with
// ok=false. It carries the server's error message and the action that
// failed. Connection and encoding failures are plain errors, not
// CallErrors.
type CallError struct {
	Action  string
	Message string
}

func (err *CallError) Error() string {
	return fmt.Sprintf("service error on %q: %s", err.Action, err.Message)
}

// Client sends CBOR requests to the conversation service socket. Each
// Call opens a new connection (matching the server's one-request-per-
// connection model), sends the request, reads the response, and closes
// the connection. Safe for concurrent use.
type Client struct {
	socketPath  string
	callTimeout time.Duration
}

// NewClient creates a client for the service socket at socketPath.
// callTimeout bounds the response wait per call; zero selects
// [DefaultCallTimeout]. Clients that issue turn actions should pass
// [TurnCallTimeout].
func NewClient(socketPath string, callTimeout time.Duration) *Client {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Client{
		socketPath:  socketPath,
		callTimeout: callTimeout,
	}
}

// Call sends a CBOR request to the service and decodes the response.
//
// The fields parameter carries the handler-specific request fields;
// the client adds "action" itself. Pass nil for actions without
// parameters.
//
// On success (ok=true), if result is non-nil and the response carries
// data, the data is CBOR-decoded into result. On failure (ok=false) a
// *CallError with the server's message is returned.
func (client *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	response, err := client.send(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, client.socketPath, err)
	}

	if !response.OK {
		return &CallError{
			Action:  action,
			Message: response.Error,
		}
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}

	return nil
}

// send connects to the socket, writes the request, and reads the
// response. Each call creates a new connection.
func (client *Client) send(ctx context.Context, request any) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", client.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	// Release the read below when the caller's context ends before
	// the response deadline.
	stopWatch := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Unix(0, 0))
	})
	defer stopWatch()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	// Half-close the write side. CBOR is self-delimiting so this is
	// not strictly necessary, but it lets the server's read side see
	// EOF cleanly.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(client.callTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return &response, nil
}
