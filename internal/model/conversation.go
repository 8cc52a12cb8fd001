package model

import "time"

// Member is a conversation participant as the dashboard needs to render one.
type Member struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// LastMessagePreview is the denormalized tail of a conversation, kept in sync
// by the list synchronizer. MessageID may be empty when the preview came from
// a list fetch that did not include one.
type LastMessagePreview struct {
	MessageID  string
	Content    string
	SenderID   string
	SenderName string
	MediaType  MediaType
	Deleted    bool
	CreatedAt  time.Time
}

// Conversation is one row of the chat bubble list.
// Invariants: the list holding these is sorted by UpdatedAt descending, and
// UnreadCount is 0 whenever IsRead is true.
type Conversation struct {
	ID          string
	Title       string
	ImageURL    string
	IsGroup     bool
	Members     []Member
	LastMessage *LastMessagePreview // nil = no messages yet
	IsRead      bool
	UnreadCount int
	UpdatedAt   time.Time
}

const (
	previewNoMessages = "No messages yet"
	previewSentImage  = "sent an image"
)

// PreviewText renders the conversation preview line. The rule is fixed:
// deleted wins, then image, then raw content, then the empty fallback.
func (c *Conversation) PreviewText() string {
	p := c.LastMessage
	if p == nil {
		return previewNoMessages
	}
	if p.Deleted {
		return DeletedMessageText
	}
	if p.MediaType == MediaTypeImage {
		if p.SenderName == "" {
			return "Someone " + previewSentImage
		}
		return p.SenderName + " " + previewSentImage
	}
	if p.Content == "" {
		return previewNoMessages
	}
	return p.Content
}

// MemberByID looks up a participant. Returns nil when absent.
func (c *Conversation) MemberByID(userID string) *Member {
	for i := range c.Members {
		if c.Members[i].UserID == userID {
			return &c.Members[i]
		}
	}
	return nil
}
