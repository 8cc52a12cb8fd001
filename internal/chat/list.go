package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SEP491/FitBridge-Web-sub000/internal/logger"
	"github.com/SEP491/FitBridge-Web-sub000/internal/model"
	"github.com/SEP491/FitBridge-Web-sub000/internal/transport"
)

// ConversationList keeps the ordered working set of conversations consistent
// with REST snapshots and live hub events. Always sorted by UpdatedAt
// descending; UnreadCount is 0 whenever IsRead is true.
type ConversationList struct {
	mu          sync.Mutex
	items       []*model.Conversation
	byID        map[string]*model.Conversation
	localUserID string
	openID      string
	loading     bool
	lastPage    int
	pageSize    int
	api         API

	// OnChange, when set, is called after every observable change.
	OnChange func()
}

func NewConversationList(api API, localUserID string, pageSize int) *ConversationList {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &ConversationList{
		byID:        make(map[string]*model.Conversation),
		localUserID: localUserID,
		pageSize:    pageSize,
		api:         api,
	}
}

// LoadPage fetches one page from the REST boundary. Page 1 replaces the
// working set; later pages merge in records not yet held. Guarded against
// overlapping calls: a fetch already in flight makes this a no-op.
func (l *ConversationList) LoadPage(ctx context.Context, pageNumber int) error {
	l.mu.Lock()
	if l.loading {
		l.mu.Unlock()
		return nil
	}
	l.loading = true
	size := l.pageSize
	l.mu.Unlock()

	convs, err := l.api.Conversations(ctx, pageNumber, size)

	l.mu.Lock()
	l.loading = false
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if pageNumber <= 1 {
		l.items = l.items[:0]
		l.byID = make(map[string]*model.Conversation, len(convs))
	}
	for i := range convs {
		c := convs[i]
		if _, held := l.byID[c.ID]; held {
			continue
		}
		if c.ID == l.openID {
			c.IsRead = true
			c.UnreadCount = 0
		}
		cp := c
		l.items = append(l.items, &cp)
		l.byID[cp.ID] = &cp
	}
	l.lastPage = pageNumber
	l.sortLocked()
	l.mu.Unlock()

	l.notify()
	return nil
}

// ApplyIncomingMessage reconciles one MessageReceived event into the list:
// preview overwrite, updatedAt bump, unread bookkeeping, re-sort. Events for
// unknown conversations without creation metadata are dropped by policy.
func (l *ConversationList) ApplyIncomingMessage(ev transport.MessageEvent) {
	cid := ev.ConversationID.String()
	if cid == "" {
		logger.Debugf("list: message event without conversation id, dropped")
		return
	}

	l.mu.Lock()
	conv, found := l.byID[cid]
	if !found {
		if ev.Conversation == nil {
			l.mu.Unlock()
			logger.Debugf("list: message for unknown conversation %s, dropped", cid)
			return
		}
		conv = l.synthesizeLocked(cid, ev.Conversation)
	}

	conv.LastMessage = previewFromEvent(ev)
	conv.UpdatedAt = ev.CreatedAt
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = time.Now().UTC()
	}

	switch {
	case cid == l.openID:
		// The thread view is showing it; it cannot be unread.
		conv.IsRead = true
		conv.UnreadCount = 0
	case ev.SenderID.String() != l.localUserID:
		conv.UnreadCount++
		conv.IsRead = false
	}

	l.sortLocked()
	l.mu.Unlock()
	l.notify()
}

func (l *ConversationList) synthesizeLocked(cid string, meta *transport.ConversationMeta) *model.Conversation {
	conv := &model.Conversation{
		ID:       cid,
		Title:    meta.Title,
		ImageURL: meta.ImageURL,
		IsGroup:  meta.IsGroup,
		IsRead:   true,
	}
	for _, m := range meta.Members {
		conv.Members = append(conv.Members, model.Member{
			UserID:    m.UserID.String(),
			Name:      m.Name,
			AvatarURL: m.AvatarURL,
		})
	}
	l.items = append(l.items, conv)
	l.byID[cid] = conv
	return conv
}

func previewFromEvent(ev transport.MessageEvent) *model.LastMessagePreview {
	return &model.LastMessagePreview{
		MessageID:  ev.ID.String(),
		Content:    ev.Content,
		SenderID:   ev.SenderID.String(),
		SenderName: ev.SenderName,
		MediaType:  model.MediaType(ev.MediaType),
		CreatedAt:  ev.CreatedAt,
	}
}

// ApplyMessageUpdate refreshes the preview when the updated message is the
// one the preview came from, or unconditionally when the preview has no
// message id recorded (older list snapshots).
func (l *ConversationList) ApplyMessageUpdate(ev transport.MessageUpdateEvent) {
	cid := ev.ConversationID.String()

	l.mu.Lock()
	conv, found := l.byID[cid]
	if !found || conv.LastMessage == nil {
		l.mu.Unlock()
		logger.Debugf("list: update for unknown conversation %s, dropped", cid)
		return
	}
	p := conv.LastMessage
	if p.MessageID != "" && p.MessageID != ev.ID.String() {
		l.mu.Unlock()
		return
	}
	if ev.Deleted {
		p.Deleted = true
		p.Content = model.DeletedMessageText
	} else {
		p.Content = ev.Content
	}
	l.mu.Unlock()
	l.notify()
}

// MarkConversationRead clears unread state locally and persists it with a
// fire-and-forget REST call. Read receipts are best-effort: no rollback.
func (l *ConversationList) MarkConversationRead(conversationID string) {
	if !l.markReadLocal(conversationID) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.api.MarkRead(ctx, conversationID, nil); err != nil {
			logger.Errorf("list: persist read %s: %v", conversationID, err)
		}
	}()
	l.notify()
}

// MarkReadLocal clears unread state without a server call. Used when a read
// receipt for the local user arrives from another tab or device.
func (l *ConversationList) MarkReadLocal(conversationID string) {
	if l.markReadLocal(conversationID) {
		l.notify()
	}
}

func (l *ConversationList) markReadLocal(conversationID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	conv, found := l.byID[conversationID]
	if !found {
		return false
	}
	conv.IsRead = true
	conv.UnreadCount = 0
	return true
}

// SetOpen records which conversation the thread view is showing. The open
// conversation never accumulates unread state.
func (l *ConversationList) SetOpen(conversationID string) {
	l.mu.Lock()
	l.openID = conversationID
	l.mu.Unlock()
}

// LastPage returns the page number of the most recent successful load; 0
// before the first load. The recovery coordinator re-fetches from page 1 up
// to this.
func (l *ConversationList) LastPage() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastPage
}

// Snapshot returns a copy of the list for rendering, sorted by UpdatedAt
// descending.
func (l *ConversationList) Snapshot() []model.Conversation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Conversation, 0, len(l.items))
	for _, c := range l.items {
		cp := *c
		if c.LastMessage != nil {
			lm := *c.LastMessage
			cp.LastMessage = &lm
		}
		out = append(out, cp)
	}
	return out
}

// Get returns a copy of one conversation, if held.
func (l *ConversationList) Get(conversationID string) (model.Conversation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	conv, found := l.byID[conversationID]
	if !found {
		return model.Conversation{}, false
	}
	cp := *conv
	if conv.LastMessage != nil {
		lm := *conv.LastMessage
		cp.LastMessage = &lm
	}
	return cp, true
}

func (l *ConversationList) sortLocked() {
	sort.SliceStable(l.items, func(i, j int) bool {
		return l.items[i].UpdatedAt.After(l.items[j].UpdatedAt)
	})
}

func (l *ConversationList) notify() {
	if l.OnChange != nil {
		l.OnChange()
	}
}
