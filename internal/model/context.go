// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// RequestContext identifies one query turn: who is asking (session) and
// which thread it belongs to (conversation). ConversationID is empty for
// a fresh thread; the orchestrator assigns one before any event is sent.
type RequestContext struct {
	SessionID      string
	ConversationID string
}

// HasConversation reports whether the caller is continuing an existing
// thread rather than starting a new one.
func (rc RequestContext) HasConversation() bool {
	return rc.ConversationID != ""
}
