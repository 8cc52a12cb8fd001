package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type MediaType string

const (
	MediaTypeText  MediaType = "text"
	MediaTypeImage MediaType = "image"
)

type MessageStatus string

const (
	MessageStatusPending MessageStatus = "pending"
	MessageStatusSent    MessageStatus = "sent"
	MessageStatusDeleted MessageStatus = "deleted"
)

// DeletedMessageText replaces the content of a deleted message everywhere it
// is rendered, including the conversation preview.
const DeletedMessageText = "Message deleted"

// editedTolerance: a server that does not send an explicit edited flag still
// bumps updated_at on edit; anything beyond this gap counts as an edit.
const editedTolerance = 2 * time.Second

const pendingIDPrefix = "pending-"

// NewPendingID returns a local placeholder id for an optimistic message.
// Placeholder ids never collide with server-assigned ids.
func NewPendingID() string {
	return pendingIDPrefix + uuid.New().String()
}

// IsPendingID reports whether id is a local placeholder generated at send time.
func IsPendingID(id string) bool {
	return strings.HasPrefix(id, pendingIDPrefix)
}

// Message is one entry in an open thread. A message is created locally as
// Pending on send intent, or directly as Sent from a fetch or hub event.
// Pending messages are replaced in place by their confirmed counterpart.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderName     string
	Content        string
	MediaType      MediaType
	MediaURL       string

	// CorrelationID is generated at send time and echoed back by the hub in
	// the confirming MessageReceived event. It is the primary key for
	// matching a Pending message to its confirmation.
	CorrelationID string

	// LocalPreviewURL holds a transient object URL for optimistic image
	// sends; released once the confirmed message arrives.
	LocalPreviewURL string

	Status    MessageStatus
	Reaction  string // single emoji, empty = none
	ReplyToID string // weak back-reference, lookup-only
	Edited    bool   // explicit flag when the server supplies one
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsEdited reports whether the message was edited: the explicit flag wins,
// otherwise the created/updated gap is compared against the tolerance.
func (m *Message) IsEdited() bool {
	if m.Edited {
		return true
	}
	return !m.UpdatedAt.IsZero() && m.UpdatedAt.Sub(m.CreatedAt) > editedTolerance
}

// IsDeleted reports whether the message has been redacted.
func (m *Message) IsDeleted() bool { return m.Status == MessageStatusDeleted }

// IsPending reports whether the message is awaiting server confirmation.
func (m *Message) IsPending() bool { return m.Status == MessageStatusPending }
