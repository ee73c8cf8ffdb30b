// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

// Package hub is the client for the smart-home hub's REST control
// plane (the Home Assistant API surface).
//
// The conversation service uses three endpoints: GET /api/states for
// the entity-state dump, POST /api/services/{domain}/{service} for
// device commands, and POST /api/template to resolve entity areas.
// Authentication is a long-lived access token sent as a bearer header.
//
// Which entities the assistant may see and control is decided here,
// not on the hub: the hub's own exposure registry is internal to its
// UI, so the service carries an [ExposeFilter] (domains plus explicit
// include/exclude lists) and applies it when assembling a [Snapshot].
package hub
