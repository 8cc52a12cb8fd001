package rest_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SEP491/FitBridge-Web-sub000/internal/model"
	"github.com/SEP491/FitBridge-Web-sub000/internal/rest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *rest.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return rest.NewClient(srv.URL, time.Second)
}

func TestMessagesReversedToChronological(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations/c1/messages", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		// Server pages newest-first.
		io.WriteString(w, `{"data":[
			{"id":"m3","conversation_id":"c1","sender_id":7,"content":"third"},
			{"id":"m2","conversation_id":"c1","sender_id":"trainer-2","content":"second"},
			{"id":"m1","conversation_id":"c1","sender_id":"trainer-2","content":"first"}
		]}`)
	})

	msgs, err := c.Messages(context.Background(), "c1", 2, 20)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m3", msgs[2].ID)
	assert.Equal(t, "7", msgs[2].SenderID, "numeric sender id normalized to string")
	assert.Equal(t, model.MediaTypeText, msgs[0].MediaType, "missing media type defaults to text")
	assert.Equal(t, model.MessageStatusSent, msgs[0].Status)
}

func TestMessagesDeletedRedactedAtBoundary(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":[
			{"id":"m1","conversation_id":"c1","sender_id":"trainer-2","content":"original text","deleted":true}
		]}`)
	})

	msgs, err := c.Messages(context.Background(), "c1", 1, 20)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsDeleted())
	assert.Equal(t, model.DeletedMessageText, msgs[0].Content, "original content never surfaces")
}

func TestMessagesWithoutIDRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":[{"conversation_id":"c1","content":"no id"}]}`)
	})

	_, err := c.Messages(context.Background(), "c1", 1, 20)
	assert.Error(t, err)
}

func TestConversationsUnreadDefaults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("pageNumber"))
		io.WriteString(w, `{"items":[
			{"id":1,"title":"No count route","is_read":false},
			{"id":"c2","title":"Read","is_read":true,"unread_count":5},
			{"id":"c3","title":"Counted","is_read":false,"unread_count":3}
		]}`)
	})

	convs, err := c.Conversations(context.Background(), 1, 20)
	require.NoError(t, err)
	require.Len(t, convs, 3)

	assert.Equal(t, "1", convs[0].ID, "numeric conversation id normalized")
	assert.Equal(t, 1, convs[0].UnreadCount, "unread without a count defaults to 1")
	assert.Zero(t, convs[1].UnreadCount, "read conversation never carries a count")
	assert.Equal(t, 3, convs[2].UnreadCount)
}

func TestConversationUpdatedAtFallsBackToLastMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"items":[
			{"id":"c1","title":"T","is_read":true,
			 "last_message":{"id":"m1","sender_id":"x","content":"hi","created_at":"2026-05-10T09:00:00Z"}}
		]}`)
	})

	convs, err := c.Conversations(context.Background(), 1, 20)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC), convs[0].UpdatedAt)
	require.NotNil(t, convs[0].LastMessage)
	assert.Equal(t, "hi", convs[0].LastMessage.Content)
}

func TestSendMessagePostsCorrelationID(t *testing.T) {
	var got rest.SendMessageRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	})

	req := rest.SendMessageRequest{
		ConversationID: "c1",
		Content:        "hello",
		CorrelationID:  "corr-123",
	}
	require.NoError(t, c.SendMessage(context.Background(), req))
	assert.Equal(t, req, got)
}

func TestErrorMapping(t *testing.T) {
	status := http.StatusNotFound
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})

	err := c.DeleteMessage(context.Background(), "m1")
	assert.ErrorIs(t, err, rest.ErrNotFound)

	status = http.StatusConflict
	err = c.UpdateMessage(context.Background(), "m1", "new")
	assert.ErrorIs(t, err, rest.ErrConflict)

	status = http.StatusInternalServerError
	err = c.React(context.Background(), "m1", "❤️", false)
	var se *rest.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
}

func TestMarkReadBody(t *testing.T) {
	var body struct {
		ConversationID string   `json:"conversation_id"`
		MessageIDs     []string `json:"message_ids"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages/read", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	})

	require.NoError(t, c.MarkRead(context.Background(), "c1", []string{"m1", "m2"}))
	assert.Equal(t, "c1", body.ConversationID)
	assert.Equal(t, []string{"m1", "m2"}, body.MessageIDs)
}

func TestCreateConversation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		io.WriteString(w, `{"id":"c9","title":"New chat","is_read":true,
			"members":[{"user_id":"admin-1","name":"FitBridge Admin"}]}`)
	})

	conv, err := c.CreateConversation(context.Background(), rest.CreateConversationRequest{
		MemberIDs: []string{"trainer-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "c9", conv.ID)
	assert.Len(t, conv.Members, 1)
}
