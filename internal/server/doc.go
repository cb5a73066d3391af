// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the agent pipeline over HTTP.
//
// # Endpoints
//
//   - GET    /agent/query                     - Run one query turn, streamed over SSE
//   - GET    /conversations                   - List conversations for a session
//   - GET    /conversations/{id}/messages     - Replay a conversation
//   - PUT    /conversations/{id}/title        - Rename a conversation
//   - DELETE /conversations/{id}              - Delete one conversation
//   - DELETE /conversations                   - Delete all conversations for a session
//   - GET    /health                          - Health check
//   - GET    /about                           - Build information
//
// All conversation endpoints are session scoped: the session identifier comes
// from the session_id query parameter or the X-Session-Id header, and a
// conversation owned by a different session behaves as if it does not exist.
//
// The middleware chain applies panic recovery, security headers, CORS,
// request logging, and per-client rate limiting.
package server
