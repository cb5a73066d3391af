// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// STREAM EVENTS
// =============================================================================

// Event types on the wire. Ordering contract: exactly one EventConversationID
// first, exactly one EventDone last, any number of status/chunk/error between.
const (
	EventConversationID = "conversation_id"
	EventStatus         = "status"
	EventChunk          = "chunk"
	EventError          = "error"
	EventDone           = "done"
)

// StreamEvent is one SSE payload sent to the caller during a query turn.
type StreamEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message,omitempty"`
	Content        string `json:"content,omitempty"`
}

// ConversationEvent announces the conversation identity for this turn.
func ConversationEvent(id string) StreamEvent {
	return StreamEvent{Type: EventConversationID, ConversationID: id}
}

// StatusEvent reports pipeline progress in caller-facing language.
func StatusEvent(msg string) StreamEvent {
	return StreamEvent{Type: EventStatus, Message: msg}
}

// ChunkEvent carries one fragment of the synthesized answer.
func ChunkEvent(content string) StreamEvent {
	return StreamEvent{Type: EventChunk, Content: content}
}

// ErrorEvent reports a failure the caller should see. The stream still
// terminates with a done event afterwards.
func ErrorEvent(msg string) StreamEvent {
	return StreamEvent{Type: EventError, Message: msg}
}

// DoneEvent terminates the stream.
func DoneEvent() StreamEvent {
	return StreamEvent{Type: EventDone}
}
