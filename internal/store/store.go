// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store persists the conversation log in SQLite.
//
// Two tables back the log: conversations holds one summary row per thread,
// messages is the append-only turn log. Every read is scoped by session:
// asking for another session's conversation returns empty results, never
// an error, so callers cannot distinguish "absent" from "not yours".
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/linesight/internal/model"
)

// Sentinel errors.
var (
	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store is closed")
)

// schema creates the conversation log tables.
const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	session_id      TEXT NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	timestamp       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);
`

// Store is the SQLite-backed conversation log.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the conversation database at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// EnsureConversation creates the conversation row if it does not exist yet,
// deriving the title from the first user query. Creating is idempotent; an
// existing row keeps its title.
func (s *Store) EnsureConversation(ctx context.Context, conversationID, sessionID, firstQuery string) error {
	if s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, session_id, title, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		conversationID, sessionID, model.TitleFromQuery(firstQuery), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to ensure conversation: %w", err)
	}
	return nil
}

// ListConversations returns the session's conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, sessionID string) ([]model.Conversation, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, title, created_at
		FROM conversations
		WHERE session_id = ?
		ORDER BY created_at DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []model.Conversation{}
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Title, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// UpdateTitle sets a conversation's title. Cross-session updates silently
// affect zero rows.
func (s *Store) UpdateTitle(ctx context.Context, conversationID, sessionID, title string) error {
	if s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET title = ?
		WHERE id = ? AND session_id = ?`,
		model.TitleFromQuery(title), conversationID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	return nil
}

// DeleteConversation removes one conversation and its messages. Deleting a
// conversation owned by another session is a no-op.
func (s *Store) DeleteConversation(ctx context.Context, conversationID, sessionID string) error {
	if s.db == nil {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM messages WHERE conversation_id = ? AND session_id = ?`,
		conversationID, sessionID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM conversations WHERE id = ? AND session_id = ?`,
		conversationID, sessionID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return tx.Commit()
}

// DeleteAllForSession removes every conversation and message of a session.
// Returns the number of conversations removed.
func (s *Store) DeleteAllForSession(ctx context.Context, sessionID string) (int64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM conversations WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete conversations: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}

// =============================================================================
// MESSAGES
// =============================================================================

// AppendMessage appends one turn to a conversation.
func (s *Store) AppendMessage(ctx context.Context, msg model.Message) error {
	if s.db == nil {
		return ErrClosed
	}
	if !msg.Role.Valid() {
		return fmt.Errorf("invalid role %q", msg.Role)
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, session_id, role, content, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ConversationID, msg.SessionID, msg.Role.String(), msg.Content, ts)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// History returns the last limit messages of a conversation in chronological
// order. A conversation owned by a different session yields an empty slice.
// limit <= 0 returns the full history.
func (s *Store) History(ctx context.Context, conversationID, sessionID string, limit int) ([]model.Message, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	query := `
		SELECT id, conversation_id, session_id, role, content, timestamp
		FROM (
			SELECT id, conversation_id, session_id, role, content, timestamp
			FROM messages
			WHERE conversation_id = ? AND session_id = ?
			ORDER BY id DESC
			%s
		)
		ORDER BY id ASC`
	args := []any{conversationID, sessionID}
	if limit > 0 {
		query = fmt.Sprintf(query, "LIMIT ?")
		args = append(args, limit)
	} else {
		query = fmt.Sprintf(query, "")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		var m model.Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SessionID, &role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = model.Role(role)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
