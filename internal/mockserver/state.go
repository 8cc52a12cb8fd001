package mockserver

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SEP491/FitBridge-Web-sub000/internal/model"
)

func flexID(s string) model.FlexID { return model.FlexID(s) }

// Wire shapes mirror the REST boundary schema the core consumes.

type memberJSON struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type messageJSON struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	Content        string    `json:"content"`
	MediaType      string    `json:"media_type,omitempty"`
	MediaURL       string    `json:"media_url,omitempty"`
	ReplyToID      string    `json:"reply_to_id,omitempty"`
	Reaction       string    `json:"reaction,omitempty"`
	Deleted        bool      `json:"deleted"`
	Edited         bool      `json:"edited"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type conversationJSON struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	ImageURL    string       `json:"image_url,omitempty"`
	IsGroup     bool         `json:"is_group"`
	Members     []memberJSON `json:"members"`
	LastMessage *messageJSON `json:"last_message,omitempty"`
	IsRead      bool         `json:"is_read"`
	UnreadCount int          `json:"unread_count"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// store is the in-memory backend state. Deliberately ephemeral: every run
// starts from the seed, which is what the tests and local frontend work
// want.
type store struct {
	mu            sync.Mutex
	users         []memberJSON
	conversations map[string]*conversationJSON
	messages      map[string][]*messageJSON // ascending per conversation
}

func newStore() *store {
	return &store{
		conversations: make(map[string]*conversationJSON),
		messages:      make(map[string][]*messageJSON),
	}
}

// AdminUserID is the signed-in dashboard user the mock impersonates for
// REST mutations (auth is out of scope at this boundary).
const AdminUserID = "admin-1"

func (s *store) seed() {
	s.users = []memberJSON{
		{UserID: AdminUserID, Name: "FitBridge Admin"},
		{UserID: "trainer-2", Name: "Alex Carter"},
		{UserID: "member-3", Name: "Jordan Pham"},
		{UserID: "owner-4", Name: "Riley Gym Owner"},
	}

	base := time.Now().UTC().Add(-2 * time.Hour)
	c1 := &conversationJSON{
		ID:      uuid.New().String(),
		Title:   "Alex Carter",
		Members: []memberJSON{s.users[0], s.users[1]},
		IsRead:  true,
	}
	c2 := &conversationJSON{
		ID:      uuid.New().String(),
		Title:   "Downtown Gym Staff",
		IsGroup: true,
		Members: []memberJSON{s.users[0], s.users[1], s.users[3]},
		IsRead:  true,
	}
	s.conversations[c1.ID] = c1
	s.conversations[c2.ID] = c2

	s.appendMessage(&messageJSON{
		ID: uuid.New().String(), ConversationID: c1.ID,
		SenderID: "trainer-2", SenderName: "Alex Carter",
		Content: "Contract renewal for the spring bootcamp is signed.", MediaType: "text",
		CreatedAt: base, UpdatedAt: base,
	})
	s.appendMessage(&messageJSON{
		ID: uuid.New().String(), ConversationID: c2.ID,
		SenderID: "owner-4", SenderName: "Riley Gym Owner",
		Content: "New treadmills arrive Thursday.", MediaType: "text",
		CreatedAt: base.Add(30 * time.Minute), UpdatedAt: base.Add(30 * time.Minute),
	})
}

// appendMessage stores the message, updates the conversation preview and
// ordering timestamp. Caller holds no lock for seed; runtime callers lock.
func (s *store) appendMessage(m *messageJSON) {
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], m)
	if conv, ok := s.conversations[m.ConversationID]; ok {
		cp := *m
		conv.LastMessage = &cp
		conv.UpdatedAt = m.CreatedAt
	}
}

func (s *store) conversationPage(pageNumber, pageSize int) []conversationJSON {
	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	all := make([]conversationJSON, 0, len(s.conversations))
	for _, c := range s.conversations {
		all = append(all, *c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })
	start := (pageNumber - 1) * pageSize
	if start >= len(all) {
		return nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

// messagePage returns one page newest-first, matching the production API.
func (s *store) messagePage(conversationID string, page, size int) ([]messageJSON, bool) {
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, false
	}
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	asc := s.messages[conversationID]
	desc := make([]messageJSON, 0, len(asc))
	for i := len(asc) - 1; i >= 0; i-- {
		desc = append(desc, *asc[i])
	}
	start := (page - 1) * size
	if start >= len(desc) {
		return []messageJSON{}, true
	}
	end := start + size
	if end > len(desc) {
		end = len(desc)
	}
	return desc[start:end], true
}

func (s *store) findMessage(messageID string) *messageJSON {
	for _, msgs := range s.messages {
		for _, m := range msgs {
			if m.ID == messageID {
				return m
			}
		}
	}
	return nil
}

func (s *store) createConversation(title string, isGroup bool, memberIDs []string) (*conversationJSON, error) {
	members := []memberJSON{}
	seen := map[string]bool{}
	for _, id := range append([]string{AdminUserID}, memberIDs...) {
		if seen[id] {
			continue
		}
		seen[id] = true
		found := false
		for _, u := range s.users {
			if u.UserID == id {
				members = append(members, u)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown user %s", id)
		}
	}
	if len(members) < 2 {
		return nil, fmt.Errorf("conversation needs at least one partner")
	}
	if title == "" && !isGroup {
		title = members[1].Name
	}
	conv := &conversationJSON{
		ID:        uuid.New().String(),
		Title:     title,
		IsGroup:   isGroup,
		Members:   members,
		IsRead:    true,
		UpdatedAt: time.Now().UTC(),
	}
	s.conversations[conv.ID] = conv
	return conv, nil
}
