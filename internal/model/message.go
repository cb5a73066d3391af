// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the shared domain types for linesight.
package model

import (
	"strings"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether the role is one the conversation log accepts.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single turn in a conversation as persisted in the log.
type Message struct {
	ID             int64     `json:"id,omitempty"`
	ConversationID string    `json:"conversation_id"`
	SessionID      string    `json:"session_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// Preview returns a truncated single-line preview of the message content,
// suitable for titles and logs.
func (m *Message) Preview(maxLen int) string {
	content := strings.Join(strings.Fields(m.Content), " ")
	return truncate(content, maxLen)
}

// truncate shortens s to maxLen runes, appending "..." when cut.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// TitleMaxLen caps conversation titles derived from the first user message.
const TitleMaxLen = 100

// Conversation is the summary row for one conversation thread.
type Conversation struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// TitleFromQuery derives a conversation title from the first user query.
func TitleFromQuery(query string) string {
	return truncate(strings.TrimSpace(query), TitleMaxLen)
}
