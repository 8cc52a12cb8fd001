package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SEP491/FitBridge-Web-sub000/internal/model"
	"github.com/SEP491/FitBridge-Web-sub000/internal/transport"
)

const testLocalUser = "admin-1"

var listBase = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func seededList(t *testing.T) (*ConversationList, *stubAPI) {
	t.Helper()
	api := &stubAPI{
		convPages: map[int][]model.Conversation{
			1: {
				{ID: "c2", Title: "Member Support", IsRead: true, UpdatedAt: listBase.Add(1 * time.Hour)},
				{ID: "c1", Title: "Trainer Alex", IsRead: true, UpdatedAt: listBase.Add(2 * time.Hour)},
			},
		},
	}
	l := NewConversationList(api, testLocalUser, 20)
	require.NoError(t, l.LoadPage(context.Background(), 1))
	return l, api
}

// assertUnreadInvariant checks that no conversation is simultaneously read
// and carrying an unread count.
func assertUnreadInvariant(t *testing.T, l *ConversationList) {
	t.Helper()
	for _, c := range l.Snapshot() {
		if c.IsRead {
			assert.Zero(t, c.UnreadCount, "conversation %s is read but has unread count", c.ID)
		}
	}
}

func TestListLoadPageSortsByUpdatedAt(t *testing.T) {
	l, _ := seededList(t)

	snap := l.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "c1", snap[0].ID)
	assert.Equal(t, "c2", snap[1].ID)
}

func TestListIncomingMessageMovesConversationFirst(t *testing.T) {
	l, _ := seededList(t)

	ev := messageEvent("m10", "c2", "trainer-2", "see you at 6", listBase.Add(3*time.Hour))
	l.ApplyIncomingMessage(ev)

	snap := l.Snapshot()
	require.Equal(t, "c2", snap[0].ID)
	assert.Equal(t, 1, snap[0].UnreadCount)
	assert.False(t, snap[0].IsRead)
	assert.Equal(t, "see you at 6", snap[0].PreviewText())
	assertUnreadInvariant(t, l)
}

func TestListOpenConversationNeverAccumulatesUnread(t *testing.T) {
	l, _ := seededList(t)
	l.SetOpen("c2")

	l.ApplyIncomingMessage(messageEvent("m10", "c2", "trainer-2", "ping", listBase.Add(3*time.Hour)))
	l.ApplyIncomingMessage(messageEvent("m11", "c2", "trainer-2", "pong", listBase.Add(4*time.Hour)))

	c, ok := l.Get("c2")
	require.True(t, ok)
	assert.True(t, c.IsRead)
	assert.Zero(t, c.UnreadCount)
	assertUnreadInvariant(t, l)
}

func TestListOwnMessageDoesNotIncrementUnread(t *testing.T) {
	l, _ := seededList(t)

	l.ApplyIncomingMessage(messageEvent("m10", "c2", testLocalUser, "on my way", listBase.Add(3*time.Hour)))

	c, ok := l.Get("c2")
	require.True(t, ok)
	assert.True(t, c.IsRead)
	assert.Zero(t, c.UnreadCount)
	assert.Equal(t, "c2", l.Snapshot()[0].ID, "own message still reorders the list")
}

func TestListUnknownConversationDropped(t *testing.T) {
	l, _ := seededList(t)

	l.ApplyIncomingMessage(messageEvent("m10", "c99", "trainer-2", "hello?", listBase.Add(3*time.Hour)))

	assert.Len(t, l.Snapshot(), 2)
	_, ok := l.Get("c99")
	assert.False(t, ok)
}

func TestListSynthesizesFromCreationMetadata(t *testing.T) {
	l, _ := seededList(t)

	ev := messageEvent("m10", "c3", "owner-4", "welcome aboard", listBase.Add(3*time.Hour))
	ev.Conversation = &transport.ConversationMeta{
		Title:   "Gym Owners",
		IsGroup: true,
		Members: []transport.MemberPayload{
			{UserID: "owner-4", Name: "Dana Reed"},
			{UserID: model.FlexID(testLocalUser), Name: "FitBridge Admin"},
		},
	}
	l.ApplyIncomingMessage(ev)

	c, ok := l.Get("c3")
	require.True(t, ok)
	assert.Equal(t, "Gym Owners", c.Title)
	assert.True(t, c.IsGroup)
	assert.Len(t, c.Members, 2)
	assert.Equal(t, 1, c.UnreadCount)
	assert.Equal(t, "c3", l.Snapshot()[0].ID)
	assertUnreadInvariant(t, l)
}

func TestListPreviewFollowsDeletion(t *testing.T) {
	l, _ := seededList(t)
	l.ApplyIncomingMessage(messageEvent("m10", "c2", "trainer-2", "see you at 6", listBase.Add(3*time.Hour)))

	l.ApplyMessageUpdate(transport.MessageUpdateEvent{
		ID:             "m10",
		ConversationID: "c2",
		Deleted:        true,
		UpdatedAt:      listBase.Add(4 * time.Hour),
	})

	c, _ := l.Get("c2")
	assert.Equal(t, model.DeletedMessageText, c.PreviewText())
}

func TestListPreviewIgnoresUpdateForOlderMessage(t *testing.T) {
	l, _ := seededList(t)
	l.ApplyIncomingMessage(messageEvent("m10", "c2", "trainer-2", "see you at 6", listBase.Add(3*time.Hour)))

	l.ApplyMessageUpdate(transport.MessageUpdateEvent{
		ID:             "m9",
		ConversationID: "c2",
		Content:        "edited old message",
	})

	c, _ := l.Get("c2")
	assert.Equal(t, "see you at 6", c.PreviewText())
}

func TestListMarkConversationRead(t *testing.T) {
	l, api := seededList(t)
	l.ApplyIncomingMessage(messageEvent("m10", "c2", "trainer-2", "ping", listBase.Add(3*time.Hour)))

	l.MarkConversationRead("c2")

	c, _ := l.Get("c2")
	assert.True(t, c.IsRead)
	assert.Zero(t, c.UnreadCount)
	require.Eventually(t, func() bool { return api.readBatchCount() == 1 },
		time.Second, 10*time.Millisecond, "read state must be persisted")
}

func TestListLaterPagesMergeWithoutDuplicates(t *testing.T) {
	l, api := seededList(t)
	api.mu.Lock()
	api.convPages[2] = []model.Conversation{
		{ID: "c2", Title: "Member Support", UpdatedAt: listBase.Add(1 * time.Hour)}, // overlap
		{ID: "c0", Title: "Archived Intake", IsRead: true, UpdatedAt: listBase},
	}
	api.mu.Unlock()

	require.NoError(t, l.LoadPage(context.Background(), 2))

	snap := l.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "c0", snap[2].ID)
	assert.Equal(t, 2, l.LastPage())
}

func TestListReloadPageOneReplacesWorkingSet(t *testing.T) {
	l, api := seededList(t)
	api.mu.Lock()
	api.convPages[1] = []model.Conversation{
		{ID: "c1", Title: "Trainer Alex", IsRead: false, UnreadCount: 3, UpdatedAt: listBase.Add(5 * time.Hour)},
	}
	api.mu.Unlock()

	require.NoError(t, l.LoadPage(context.Background(), 1))

	snap := l.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 3, snap[0].UnreadCount)
}
