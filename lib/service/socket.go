// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/majordomo-home/majordomo/lib/codec"
)

// ActionFunc processes a socket request for a specific action. The raw
// parameter is the full CBOR request (including the "action" field);
// the handler decodes its action-specific fields from it.
//
// Return a value to include in the success response, or an error for
// a failure response. A nil value produces a bare {ok: true}; non-nil
// values are marshaled as CBOR into the response's "data" field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// Response is the wire-format envelope for all socket protocol
// responses. Handlers return a result value (or nil) and an error; the
// server wraps these into a Response before encoding.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// SocketServer serves a CBOR request-response protocol on a Unix
// socket. Each connection handles exactly one request-response cycle:
// the client writes a CBOR value, the server processes it and writes a
// CBOR response, then the connection closes.
//
// Actions are registered with Handle before calling Serve. Unknown
// actions receive an error response.
type SocketServer struct {
	socketPath string
	handlers   map[string]ActionFunc
	logger     *slog.Logger

	// activeConnections tracks in-flight request handlers for graceful
	// shutdown. Serve waits for all active connections to complete
	// before returning, so a turn that is mid-loop when the daemon
	// stops still delivers its response.
	activeConnections sync.WaitGroup
}

// NewSocketServer creates a server that will listen on socketPath.
// Register actions with Handle before calling Serve.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SocketServer{
		socketPath: socketPath,
		handlers:   make(map[string]ActionFunc),
		logger:     logger,
	}
}

// Handle registers a handler for the given action name. Panics if the
// action is already registered.
func (server *SocketServer) Handle(action string, handler ActionFunc) {
	if _, exists := server.handlers[action]; exists {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	server.handlers[action] = handler
}

// Serve accepts connections on the Unix socket and dispatches requests
// to registered action handlers. Blocks until ctx is cancelled, then
// stops accepting new connections and waits for active handlers to
// complete.
//
// Any existing socket file at the configured path is removed before
// listening. The socket file is removed on return.
func (server *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(server.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", server.socketPath, err)
	}

	listener, err := net.Listen("unix", server.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", server.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(server.socketPath)
	}()

	// The socket carries device commands and everything the user says
	// to the assistant; nobody else on the machine gets to connect.
	if err := os.Chmod(server.socketPath, 0o600); err != nil {
		return fmt.Errorf("restricting socket %s: %w", server.socketPath, err)
	}

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	server.logger.Info("socket server listening", "path", server.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			server.logger.Error("accept failed", "error", err)
			continue
		}

		server.activeConnections.Add(1)
		go func() {
			defer server.activeConnections.Done()
			server.handleConnection(ctx, conn)
		}()
	}

	server.activeConnections.Wait()
	return nil
}

// readTimeout is how long the server waits for the client to send its
// request. A well-behaved client sends the request immediately after
// connecting.
const readTimeout = 30 * time.Second

// writeTimeout is how long the server waits for the response write.
const writeTimeout = 10 * time.Second

// maxRequestSize is the maximum size of a single CBOR request. 1 MB
// is generous for any conversation action — requests carry one user
// utterance plus routing fields.
const maxRequestSize = 1024 * 1024

// handleConnection processes one request-response cycle. There is no
// deadline on handler execution: a turn action legitimately spends
// minutes in the model/tool loop.
func (server *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	// Decode one CBOR value from the connection. CBOR is self-
	// delimiting so no framing protocol is needed. LimitReader keeps a
	// misbehaving client from exhausting memory.
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			// Client connected but sent nothing.
			return
		}
		server.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		server.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		server.writeError(conn, "missing required field: action")
		return
	}

	handler, exists := server.handlers[header.Action]
	if !exists {
		server.writeError(conn, fmt.Sprintf("unknown action %q", header.Action))
		return
	}

	// The read deadline covered the request; clear it so a slow
	// handler does not poison the response write.
	conn.SetReadDeadline(time.Time{})

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		server.logger.Debug("action failed",
			"action", header.Action,
			"error", err,
		)
		server.writeError(conn, err.Error())
		return
	}

	server.writeSuccess(conn, result)
}

// writeError sends a failure response: {ok: false, error: "..."}.
// Write failures are logged at debug level — the connection is closing
// regardless.
func (server *SocketServer) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{
		OK:    false,
		Error: message,
	}); err != nil {
		server.logger.Debug("failed to write error response", "error", err)
	}
}

// writeSuccess sends a success response. A nil result produces
// {ok: true}; otherwise {ok: true, data: <cbor>}.
func (server *SocketServer) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}

	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			server.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}

	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		server.logger.Debug("failed to write success response", "error", err)
	}
}
