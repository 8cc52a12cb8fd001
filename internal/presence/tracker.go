// Package presence tracks per-user online state and per-conversation
// ephemeral typing state for the chat views.
package presence

import (
	"sort"
	"sync"
	"time"
)

type typingKey struct {
	ConversationID string
	UserID         string
}

// Tracker holds presence (last-write-wins, no history) and typing state.
// A typing entry expires after the quiet interval unless refreshed or
// explicitly stopped.
type Tracker struct {
	mu     sync.Mutex
	online map[string]bool
	typing map[typingKey]*time.Timer
	ttl    time.Duration
	closed bool

	// OnChange, when set, is called after every observable state change.
	// Used by the dashboard to invalidate the rendered view.
	OnChange func()
}

func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &Tracker{
		online: make(map[string]bool),
		typing: make(map[typingKey]*time.Timer),
		ttl:    ttl,
	}
}

// SetPresence overwrites the user's online flag unconditionally.
func (t *Tracker) SetPresence(userID string, online bool) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.online[userID] = online
	t.mu.Unlock()
	t.notify()
}

// IsOnline reports the last known presence; unknown users are offline.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online[userID]
}

// SetTyping records or clears a typing indicator. isTyping=true (re)starts
// the expiry timer; isTyping=false clears immediately and cancels it.
func (t *Tracker) SetTyping(conversationID, userID string, isTyping bool) {
	key := typingKey{ConversationID: conversationID, UserID: userID}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if timer, ok := t.typing[key]; ok {
		timer.Stop()
		delete(t.typing, key)
	}
	if isTyping {
		t.typing[key] = time.AfterFunc(t.ttl, func() { t.expire(key) })
	}
	t.mu.Unlock()
	t.notify()
}

func (t *Tracker) expire(key typingKey) {
	t.mu.Lock()
	if _, ok := t.typing[key]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.typing, key)
	t.mu.Unlock()
	t.notify()
}

// TypingUsers returns the users currently typing in a conversation, sorted
// for stable rendering.
func (t *Tracker) TypingUsers(conversationID string) []string {
	t.mu.Lock()
	var users []string
	for key := range t.typing {
		if key.ConversationID == conversationID {
			users = append(users, key.UserID)
		}
	}
	t.mu.Unlock()
	sort.Strings(users)
	return users
}

// Close cancels all expiry timers. The tracker accepts no updates afterwards.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for key, timer := range t.typing {
		timer.Stop()
		delete(t.typing, key)
	}
}

func (t *Tracker) notify() {
	if t.OnChange != nil {
		t.OnChange()
	}
}
