// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/linesight/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "conversations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestEnsureConversation_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureConversation(ctx, "c1", "sess-a", "why was line 2 down?"))
	require.NoError(t, s.EnsureConversation(ctx, "c1", "sess-a", "a different title"))

	convs, err := s.ListConversations(ctx, "sess-a")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "why was line 2 down?", convs[0].Title)
}

func TestEnsureConversation_TitleTruncated(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	long := strings.Repeat("x", 250)
	require.NoError(t, s.EnsureConversation(ctx, "c1", "sess-a", long))

	convs, err := s.ListConversations(ctx, "sess-a")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Len(t, convs[0].Title, model.TitleMaxLen)
	assert.True(t, strings.HasSuffix(convs[0].Title, "..."))
}

func TestUpdateTitle_TruncatesOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureConversation(ctx, "c1", "sess-a", "short"))
	long := strings.Repeat("y", 250)
	require.NoError(t, s.UpdateTitle(ctx, "c1", "sess-a", long))

	convs, err := s.ListConversations(ctx, "sess-a")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Len(t, convs[0].Title, model.TitleMaxLen)
	assert.Equal(t, strings.Repeat("y", model.TitleMaxLen-3)+"...", convs[0].Title)
}

func TestListConversations_SessionScoped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureConversation(ctx, "c1", "sess-a", "mine"))
	require.NoError(t, s.EnsureConversation(ctx, "c2", "sess-b", "theirs"))

	convs, err := s.ListConversations(ctx, "sess-a")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "c1", convs[0].ID)
}

func TestDeleteConversation_CrossSessionNoop(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureConversation(ctx, "c1", "sess-a", "mine"))
	require.NoError(t, s.DeleteConversation(ctx, "c1", "sess-b"))

	convs, err := s.ListConversations(ctx, "sess-a")
	require.NoError(t, err)
	assert.Len(t, convs, 1, "other session must not delete the conversation")
}

func TestDeleteAllForSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureConversation(ctx, "c1", "sess-a", "one"))
	require.NoError(t, s.EnsureConversation(ctx, "c2", "sess-a", "two"))
	require.NoError(t, s.EnsureConversation(ctx, "c3", "sess-b", "other"))
	require.NoError(t, s.AppendMessage(ctx, model.Message{
		ConversationID: "c1", SessionID: "sess-a", Role: model.RoleUser, Content: "hi",
	}))

	n, err := s.DeleteAllForSession(ctx, "sess-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	convs, err := s.ListConversations(ctx, "sess-a")
	require.NoError(t, err)
	assert.Empty(t, convs)

	other, err := s.ListConversations(ctx, "sess-b")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestHistory_ChronologicalOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureConversation(ctx, "c1", "sess-a", "q"))
	for i := 0; i < 3; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		require.NoError(t, s.AppendMessage(ctx, model.Message{
			ConversationID: "c1", SessionID: "sess-a",
			Role: role, Content: fmt.Sprintf("msg-%d", i),
		}))
	}

	msgs, err := s.History(ctx, "c1", "sess-a", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("msg-%d", i), m.Content)
	}
}

func TestHistory_LimitKeepsNewest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.AppendMessage(ctx, model.Message{
			ConversationID: "c1", SessionID: "sess-a",
			Role: model.RoleUser, Content: fmt.Sprintf("msg-%d", i),
		}))
	}

	msgs, err := s.History(ctx, "c1", "sess-a", 4)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	// The newest 4 messages, still in chronological order.
	assert.Equal(t, "msg-6", msgs[0].Content)
	assert.Equal(t, "msg-9", msgs[3].Content)
}

func TestHistory_CrossSessionReturnsEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendMessage(ctx, model.Message{
		ConversationID: "c1", SessionID: "sess-a",
		Role: model.RoleUser, Content: "private",
	}))

	msgs, err := s.History(ctx, "c1", "sess-b", 0)
	require.NoError(t, err, "cross-session access is empty, not an error")
	assert.Empty(t, msgs)
}

func TestAppendMessage_RejectsInvalidRole(t *testing.T) {
	s := openTestStore(t)
	err := s.AppendMessage(context.Background(), model.Message{
		ConversationID: "c1", SessionID: "sess-a",
		Role: model.Role("robot"), Content: "hi",
	})
	assert.Error(t, err)
}

func TestClosedStore(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.History(context.Background(), "c1", "sess-a", 0)
	assert.ErrorIs(t, err, ErrClosed)
}
