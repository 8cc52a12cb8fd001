// Package chat is the synchronization core behind the dashboard's chat
// bubble and message-detail views: it keeps a local model of conversations
// and one open message thread consistent with the hub's event stream while
// supporting optimistic local mutations, pagination, and reconnect recovery.
package chat

import (
	"context"
	"encoding/json"

	"github.com/SEP491/FitBridge-Web-sub000/internal/model"
	"github.com/SEP491/FitBridge-Web-sub000/internal/rest"
	"github.com/SEP491/FitBridge-Web-sub000/internal/transport"
)

// API is the REST boundary the core consumes. *rest.Client satisfies it.
type API interface {
	Conversations(ctx context.Context, pageNumber, pageSize int) ([]model.Conversation, error)
	Messages(ctx context.Context, conversationID string, page, size int) ([]model.Message, error)
	SendMessage(ctx context.Context, req rest.SendMessageRequest) error
	UpdateMessage(ctx context.Context, messageID, content string) error
	DeleteMessage(ctx context.Context, messageID string) error
	React(ctx context.Context, messageID, emoji string, remove bool) error
	MarkRead(ctx context.Context, conversationID string, messageIDs []string) error
}

// Hub is the transport surface the core consumes. *transport.Session
// satisfies it.
type Hub interface {
	On(event transport.EventType, h transport.Handler) func()
	Invoke(ctx context.Context, method string, payload any) (json.RawMessage, error)
	State() transport.State
}
