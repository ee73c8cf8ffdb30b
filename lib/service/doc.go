// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

// Package service implements the conversation service's local control
// protocol: CBOR request-response over a Unix socket. The daemon runs
// a [SocketServer] with one registered handler per action; the CLI
// and the chat TUI talk to it through [Client].
//
// Each connection carries exactly one request and one response. There
// is no authentication on the socket — access control is the socket
// file's filesystem permissions, which is the right boundary for a
// daemon and clients on the same machine.
//
// The action names and their reply shapes live in protocol.go; the
// wire format is the contract between the daemon and its clients.
package service
