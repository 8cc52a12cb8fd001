package transport

import (
	"encoding/json"
	"time"

	"github.com/SEP491/FitBridge-Web-sub000/internal/model"
)

type EventType string

// Events pushed by the hub.
const (
	EventMessageReceived     EventType = "MessageReceived"
	EventMessageUpdated      EventType = "MessageUpdated"
	EventUserTyping          EventType = "UserTyping"
	EventUpdateMessageStatus EventType = "UpdateMessageStatus"
	EventReactionReceived    EventType = "ReactionReceived"
	EventReactionRemoved     EventType = "ReactionRemoved"
	EventUserPresenceUpdate  EventType = "UserPresenceUpdate"
)

// Lifecycle events, synthesized locally by the session. Subscribed through
// the same On interface as hub events.
const (
	EventConnecting   EventType = "OnConnecting"
	EventConnected    EventType = "OnConnected"
	EventReconnecting EventType = "OnReconnecting"
	EventReconnected  EventType = "OnReconnected"
	EventClosed       EventType = "OnClosed"
)

// Remote-invoke methods.
const (
	MethodJoinGroup  = "JoinGroup"
	MethodLeaveGroup = "LeaveGroup"
	MethodUserTyping = "UserTyping"
)

// Frame is the wire envelope. Events carry Event+Payload; invokes carry
// ID+Method+Payload and are answered by a result frame with the same ID.
type Frame struct {
	Type    string          `json:"type"` // "event" | "invoke" | "result"
	ID      string          `json:"id,omitempty"`
	Event   EventType       `json:"event,omitempty"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

const (
	FrameEvent  = "event"
	FrameInvoke = "invoke"
	FrameResult = "result"
)

// --- Event payloads (shared vocabulary between the engine and the hub) ---

// MemberPayload mirrors model.Member on the wire.
type MemberPayload struct {
	UserID    model.FlexID `json:"user_id"`
	Name      string       `json:"name"`
	AvatarURL string       `json:"avatar_url,omitempty"`
}

// ConversationMeta accompanies a MessageReceived event that creates a
// conversation the client has not seen yet.
type ConversationMeta struct {
	Title    string          `json:"title"`
	ImageURL string          `json:"image_url,omitempty"`
	IsGroup  bool            `json:"is_group"`
	Members  []MemberPayload `json:"members,omitempty"`
}

// MessageEvent is the MessageReceived payload: a confirmed message, plus the
// correlation id of the optimistic send it confirms (when it is an echo of
// the local user's own send).
type MessageEvent struct {
	ID             model.FlexID      `json:"id"`
	CorrelationID  string            `json:"correlation_id,omitempty"`
	ConversationID model.FlexID      `json:"conversation_id"`
	SenderID       model.FlexID      `json:"sender_id"`
	SenderName     string            `json:"sender_name"`
	Content        string            `json:"content"`
	MediaType      string            `json:"media_type,omitempty"`
	MediaURL       string            `json:"media_url,omitempty"`
	ReplyToID      model.FlexID      `json:"reply_to_id,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Conversation   *ConversationMeta `json:"conversation,omitempty"`
}

// MessageUpdateEvent is the MessageUpdated payload: edits and deletions.
type MessageUpdateEvent struct {
	ID             model.FlexID `json:"id"`
	ConversationID model.FlexID `json:"conversation_id"`
	Content        string       `json:"content"`
	Deleted        bool         `json:"deleted"`
	Edited         bool         `json:"edited,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// TypingEvent is the UserTyping payload.
type TypingEvent struct {
	ConversationID model.FlexID `json:"conversation_id"`
	UserID         model.FlexID `json:"user_id"`
	IsTyping       bool         `json:"is_typing"`
}

// ReactionEvent is the ReactionReceived / ReactionRemoved payload.
type ReactionEvent struct {
	MessageID      model.FlexID `json:"message_id"`
	ConversationID model.FlexID `json:"conversation_id"`
	UserID         model.FlexID `json:"user_id"`
	Emoji          string       `json:"emoji"`
}

// PresenceEvent is the UserPresenceUpdate payload.
type PresenceEvent struct {
	UserID   model.FlexID `json:"user_id"`
	IsOnline bool         `json:"is_online"`
}

// MessageStatusEvent is the UpdateMessageStatus payload: read receipts. When
// UserID is the local user it means another tab or device read the
// conversation, and local unread state is cleared to match.
type MessageStatusEvent struct {
	ConversationID model.FlexID `json:"conversation_id"`
	UserID         model.FlexID `json:"user_id"`
	Status         string       `json:"status"` // "Read"
}

// --- Invoke payloads ---

// GroupPayload is the JoinGroup / LeaveGroup invoke payload.
type GroupPayload struct {
	ConversationID string `json:"conversation_id"`
}

// TypingInvoke is the UserTyping invoke payload (outbound).
type TypingInvoke struct {
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}
