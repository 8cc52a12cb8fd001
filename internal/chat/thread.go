package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SEP491/FitBridge-Web-sub000/internal/logger"
	"github.com/SEP491/FitBridge-Web-sub000/internal/model"
	"github.com/SEP491/FitBridge-Web-sub000/internal/rest"
	"github.com/SEP491/FitBridge-Web-sub000/internal/transport"
)

type ThreadState int

const (
	ThreadIdle ThreadState = iota
	ThreadLoading
	ThreadReady
	ThreadLoadingMore
)

func (s ThreadState) String() string {
	switch s {
	case ThreadLoading:
		return "loading"
	case ThreadReady:
		return "ready"
	case ThreadLoadingMore:
		return "loading_more"
	default:
		return "idle"
	}
}

// Thread keeps the ordered message history of one open conversation:
// pagination, optimistic mutation with rollback, and reconciliation with
// hub-confirmed events. Each open is a fresh load; closing the view clears
// the in-memory window.
//
// Late responses are guarded by an epoch counter bumped on every open and
// close: a network call captures the epoch before suspending and its result
// is dropped if the epoch moved.
type Thread struct {
	mu             sync.Mutex
	state          ThreadState
	conversationID string
	localUserID    string
	localUserName  string
	pageSize       int

	messages []*model.Message // ascending by arrival/creation
	held     map[string]struct{}
	page     int
	hasMore  bool

	loadingMore bool
	epoch       uint64

	replyToID string

	reported     map[string]struct{} // ids already included in a read batch
	readTimer    *time.Timer
	readDebounce time.Duration

	offs []func() // event subscriptions scoped to the open state

	api API
	hub Hub

	// OnChange, when set, is called after every observable change.
	OnChange func()
	// OnPreviewRelease, when set, receives the transient local preview URL
	// of an optimistic image send once its confirmation arrives.
	OnPreviewRelease func(url string)
}

func newThread(api API, hub Hub, localUserID, localUserName string, pageSize int, readDebounce time.Duration) *Thread {
	if pageSize <= 0 {
		pageSize = 20
	}
	if readDebounce <= 0 {
		readDebounce = 400 * time.Millisecond
	}
	return &Thread{
		api:           api,
		hub:           hub,
		localUserID:   localUserID,
		localUserName: localUserName,
		pageSize:      pageSize,
		readDebounce:  readDebounce,
		held:          make(map[string]struct{}),
		reported:      make(map[string]struct{}),
	}
}

// Open joins the conversation's hub group, subscribes to its events, and
// loads the first page. A join failure while disconnected is logged, not
// fatal: the recovery coordinator rejoins on reconnect.
func (t *Thread) Open(ctx context.Context, conversationID string) error {
	t.mu.Lock()
	if t.state != ThreadIdle {
		t.mu.Unlock()
		return fmt.Errorf("chat: thread already open for %s", t.conversationID)
	}
	t.state = ThreadLoading
	t.conversationID = conversationID
	t.epoch++
	epoch := t.epoch
	t.mu.Unlock()

	if _, err := t.hub.Invoke(ctx, transport.MethodJoinGroup, transport.GroupPayload{ConversationID: conversationID}); err != nil {
		logger.Errorf("thread: join group %s: %v", conversationID, err)
	}

	msgs, err := t.api.Messages(ctx, conversationID, 1, t.pageSize)
	if err != nil {
		t.mu.Lock()
		if t.epoch == epoch {
			t.state = ThreadIdle
			t.conversationID = ""
		}
		t.mu.Unlock()
		return fmt.Errorf("chat: load thread %s: %w", conversationID, err)
	}

	t.mu.Lock()
	if t.epoch != epoch {
		t.mu.Unlock()
		return nil
	}
	t.messages = t.messages[:0]
	t.held = make(map[string]struct{}, len(msgs))
	for i := range msgs {
		m := msgs[i]
		t.messages = append(t.messages, &m)
		t.held[m.ID] = struct{}{}
	}
	t.page = 1
	t.hasMore = len(msgs) >= t.pageSize
	t.state = ThreadReady
	t.subscribeLocked()
	t.scheduleReadMarkLocked()
	t.mu.Unlock()

	t.notify()
	return nil
}

func (t *Thread) subscribeLocked() {
	t.offs = append(t.offs,
		t.hub.On(transport.EventMessageReceived, func(raw jsonRaw) {
			var ev transport.MessageEvent
			if !decodeEvent(raw, &ev, "MessageReceived") {
				return
			}
			t.ApplyMessageReceived(ev)
		}),
		t.hub.On(transport.EventMessageUpdated, func(raw jsonRaw) {
			var ev transport.MessageUpdateEvent
			if !decodeEvent(raw, &ev, "MessageUpdated") {
				return
			}
			t.ApplyMessageUpdated(ev)
		}),
		t.hub.On(transport.EventReactionReceived, func(raw jsonRaw) {
			var ev transport.ReactionEvent
			if !decodeEvent(raw, &ev, "ReactionReceived") {
				return
			}
			t.ApplyReaction(ev, false)
		}),
		t.hub.On(transport.EventReactionRemoved, func(raw jsonRaw) {
			var ev transport.ReactionEvent
			if !decodeEvent(raw, &ev, "ReactionRemoved") {
				return
			}
			t.ApplyReaction(ev, true)
		}),
	)
}

// Close leaves the hub group, releases subscriptions, and discards the
// in-memory window. In-flight calls are not cancelled; their late responses
// fail the epoch check and are dropped.
func (t *Thread) Close() {
	t.mu.Lock()
	if t.state == ThreadIdle {
		t.mu.Unlock()
		return
	}
	conversationID := t.conversationID
	offs := t.offs
	t.offs = nil
	t.messages = nil
	t.held = make(map[string]struct{})
	t.reported = make(map[string]struct{})
	t.replyToID = ""
	t.page = 0
	t.hasMore = false
	t.loadingMore = false
	t.state = ThreadIdle
	t.conversationID = ""
	t.epoch++
	if t.readTimer != nil {
		t.readTimer.Stop()
		t.readTimer = nil
	}
	t.mu.Unlock()

	for _, off := range offs {
		off()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := t.hub.Invoke(ctx, transport.MethodLeaveGroup, transport.GroupPayload{ConversationID: conversationID}); err != nil {
		logger.Debugf("thread: leave group %s: %v", conversationID, err)
	}
	t.notify()
}

// LoadOlder fetches the next page of history and prepends it, de-duplicated
// against already-held ids. At most one call is in flight; overlapping calls
// are no-ops. Use CaptureScroll/Offset around the prepend to keep the
// reader's visual anchor.
func (t *Thread) LoadOlder(ctx context.Context) error {
	t.mu.Lock()
	if t.state != ThreadReady || !t.hasMore || t.loadingMore {
		t.mu.Unlock()
		return nil
	}
	t.loadingMore = true
	t.state = ThreadLoadingMore
	nextPage := t.page + 1
	conversationID := t.conversationID
	epoch := t.epoch
	t.mu.Unlock()

	msgs, err := t.api.Messages(ctx, conversationID, nextPage, t.pageSize)

	t.mu.Lock()
	if t.epoch != epoch {
		// Thread was closed (or reopened) while the fetch was in flight.
		t.mu.Unlock()
		logger.Debugf("thread: stale loadOlder response for %s, dropped", conversationID)
		return nil
	}
	t.loadingMore = false
	t.state = ThreadReady
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("chat: load older %s: %w", conversationID, err)
	}

	fresh := make([]*model.Message, 0, len(msgs))
	for i := range msgs {
		m := msgs[i]
		if _, dup := t.held[m.ID]; dup {
			continue
		}
		fresh = append(fresh, &m)
		t.held[m.ID] = struct{}{}
	}
	t.messages = append(fresh, t.messages...)
	t.page = nextPage
	t.hasMore = len(msgs) >= t.pageSize
	t.scheduleReadMarkLocked()
	t.mu.Unlock()

	t.notify()
	return nil
}

// Refresh re-fetches the first page and replaces the held window, rejoining
// the hub group first. Used by the recovery coordinator after a reconnect:
// the re-fetch supersedes anything that may have been missed during the gap.
func (t *Thread) Refresh(ctx context.Context) error {
	t.mu.Lock()
	if t.state == ThreadIdle {
		t.mu.Unlock()
		return nil
	}
	conversationID := t.conversationID
	epoch := t.epoch
	t.mu.Unlock()

	if _, err := t.hub.Invoke(ctx, transport.MethodJoinGroup, transport.GroupPayload{ConversationID: conversationID}); err != nil {
		logger.Errorf("thread: rejoin group %s: %v", conversationID, err)
	}

	msgs, err := t.api.Messages(ctx, conversationID, 1, t.pageSize)
	if err != nil {
		return fmt.Errorf("chat: refresh thread %s: %w", conversationID, err)
	}

	t.mu.Lock()
	if t.epoch != epoch {
		t.mu.Unlock()
		return nil
	}
	t.messages = t.messages[:0]
	t.held = make(map[string]struct{}, len(msgs))
	for i := range msgs {
		m := msgs[i]
		t.messages = append(t.messages, &m)
		t.held[m.ID] = struct{}{}
	}
	t.page = 1
	t.hasMore = len(msgs) >= t.pageSize
	// Earlier read batches may have been lost with the connection.
	t.reported = make(map[string]struct{})
	t.scheduleReadMarkLocked()
	t.mu.Unlock()

	t.notify()
	return nil
}

// Send creates a Pending message at the tail immediately and issues the
// remote send. Returns the placeholder id. If the call fails the placeholder
// is removed; if the confirming event is lost the placeholder stays until
// the next full reload.
func (t *Thread) Send(ctx context.Context, content string) (string, error) {
	return t.send(ctx, content, model.MediaTypeText, "", "")
}

// SendImage sends an image message. localPreviewURL is the transient local
// resource shown until the upload's confirmation arrives.
func (t *Thread) SendImage(ctx context.Context, mediaURL, localPreviewURL string) (string, error) {
	return t.send(ctx, "", model.MediaTypeImage, mediaURL, localPreviewURL)
}

func (t *Thread) send(ctx context.Context, content string, mediaType model.MediaType, mediaURL, localPreviewURL string) (string, error) {
	t.mu.Lock()
	if t.state == ThreadIdle || t.state == ThreadLoading {
		t.mu.Unlock()
		return "", fmt.Errorf("chat: no open thread")
	}
	now := time.Now().UTC()
	pending := &model.Message{
		ID:              model.NewPendingID(),
		CorrelationID:   uuid.New().String(),
		ConversationID:  t.conversationID,
		SenderID:        t.localUserID,
		SenderName:      t.localUserName,
		Content:         content,
		MediaType:       mediaType,
		MediaURL:        mediaURL,
		LocalPreviewURL: localPreviewURL,
		ReplyToID:       t.replyToID,
		Status:          model.MessageStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	t.replyToID = "" // reply composition is consumed by the send
	t.messages = append(t.messages, pending)
	t.held[pending.ID] = struct{}{}
	req := rest.SendMessageRequest{
		ConversationID: pending.ConversationID,
		Content:        pending.Content,
		MediaType:      string(pending.MediaType),
		MediaURL:       pending.MediaURL,
		ReplyToID:      pending.ReplyToID,
		CorrelationID:  pending.CorrelationID,
	}
	epoch := t.epoch
	t.mu.Unlock()
	t.notify()

	if err := t.api.SendMessage(ctx, req); err != nil {
		t.mu.Lock()
		if t.epoch == epoch {
			t.removeLocked(pending.ID)
		}
		t.mu.Unlock()
		t.notify()
		return "", fmt.Errorf("chat: send message: %w", err)
	}
	return pending.ID, nil
}

// Edit replaces a message's content optimistically and rolls back if the
// remote update fails.
func (t *Thread) Edit(ctx context.Context, messageID, newContent string) error {
	t.mu.Lock()
	m := t.findLocked(messageID)
	if m == nil {
		t.mu.Unlock()
		return fmt.Errorf("chat: edit: %w", rest.ErrNotFound)
	}
	if m.IsDeleted() {
		t.mu.Unlock()
		return fmt.Errorf("chat: edit: message %s is deleted", messageID)
	}
	prevContent, prevUpdated, prevEdited := m.Content, m.UpdatedAt, m.Edited
	m.Content = newContent
	m.UpdatedAt = time.Now().UTC()
	m.Edited = true
	epoch := t.epoch
	t.mu.Unlock()
	t.notify()

	if err := t.api.UpdateMessage(ctx, messageID, newContent); err != nil {
		t.rollback(epoch, messageID, func(m *model.Message) {
			m.Content = prevContent
			m.UpdatedAt = prevUpdated
			m.Edited = prevEdited
		})
		return fmt.Errorf("chat: edit message: %w", err)
	}
	return nil
}

// Delete redacts a message optimistically and rolls back if the remote
// delete fails. Any reply composition referencing it is cancelled.
func (t *Thread) Delete(ctx context.Context, messageID string) error {
	t.mu.Lock()
	m := t.findLocked(messageID)
	if m == nil {
		t.mu.Unlock()
		return fmt.Errorf("chat: delete: %w", rest.ErrNotFound)
	}
	prevContent, prevStatus, prevUpdated := m.Content, m.Status, m.UpdatedAt
	m.Status = model.MessageStatusDeleted
	m.Content = model.DeletedMessageText
	m.UpdatedAt = time.Now().UTC()
	if t.replyToID == messageID {
		t.replyToID = ""
	}
	epoch := t.epoch
	t.mu.Unlock()
	t.notify()

	if err := t.api.DeleteMessage(ctx, messageID); err != nil {
		t.rollback(epoch, messageID, func(m *model.Message) {
			m.Content = prevContent
			m.Status = prevStatus
			m.UpdatedAt = prevUpdated
		})
		return fmt.Errorf("chat: delete message: %w", err)
	}
	return nil
}

// React toggles the single reaction on a message: requesting the emoji it
// already carries removes it, anything else sets it. Optimistic with
// rollback.
func (t *Thread) React(ctx context.Context, messageID, emoji string) error {
	t.mu.Lock()
	m := t.findLocked(messageID)
	if m == nil {
		t.mu.Unlock()
		return fmt.Errorf("chat: react: %w", rest.ErrNotFound)
	}
	prev := m.Reaction
	remove := prev == emoji
	if remove {
		m.Reaction = ""
	} else {
		m.Reaction = emoji
	}
	epoch := t.epoch
	t.mu.Unlock()
	t.notify()

	if err := t.api.React(ctx, messageID, emoji, remove); err != nil {
		t.rollback(epoch, messageID, func(m *model.Message) {
			m.Reaction = prev
		})
		return fmt.Errorf("chat: react: %w", err)
	}
	return nil
}

func (t *Thread) rollback(epoch uint64, messageID string, restore func(*model.Message)) {
	t.mu.Lock()
	if t.epoch == epoch {
		if m := t.findLocked(messageID); m != nil {
			restore(m)
		}
	}
	t.mu.Unlock()
	t.notify()
}

// ApplyMessageReceived reconciles one confirmed message into the window:
// a pending counterpart is replaced in the same slot (matched by correlation
// id, falling back to sender plus content or media url), duplicates are
// dropped, anything else appends at the tail.
func (t *Thread) ApplyMessageReceived(ev transport.MessageEvent) {
	t.mu.Lock()
	if t.state == ThreadIdle || ev.ConversationID.String() != t.conversationID {
		t.mu.Unlock()
		return
	}
	id := ev.ID.String()
	if _, dup := t.held[id]; dup {
		t.mu.Unlock()
		logger.Debugf("thread: duplicate message %s, dropped", id)
		return
	}

	confirmed := messageFromEvent(ev)
	var releasedPreview string
	if idx := t.matchPendingLocked(ev); idx >= 0 {
		releasedPreview = t.messages[idx].LocalPreviewURL
		delete(t.held, t.messages[idx].ID)
		t.messages[idx] = confirmed // same slot: pending is replaced, never duplicated
	} else {
		t.messages = append(t.messages, confirmed)
	}
	t.held[confirmed.ID] = struct{}{}
	t.scheduleReadMarkLocked()
	t.mu.Unlock()

	if releasedPreview != "" && t.OnPreviewRelease != nil {
		t.OnPreviewRelease(releasedPreview)
	}
	t.notify()
}

// matchPendingLocked finds the optimistic placeholder this event confirms.
// Correlation id is authoritative; the sender+content/media heuristic only
// covers echoes from backends that do not thread the id through.
func (t *Thread) matchPendingLocked(ev transport.MessageEvent) int {
	if ev.CorrelationID != "" {
		for i, m := range t.messages {
			if m.IsPending() && m.CorrelationID == ev.CorrelationID {
				return i
			}
		}
		return -1
	}
	if ev.SenderID.String() != t.localUserID {
		return -1
	}
	for i, m := range t.messages {
		if !m.IsPending() || m.SenderID != ev.SenderID.String() {
			continue
		}
		if m.MediaType == model.MediaTypeImage {
			if m.MediaURL != "" && m.MediaURL == ev.MediaURL {
				return i
			}
			if m.LocalPreviewURL != "" && ev.MediaURL != "" {
				return i
			}
			continue
		}
		if m.Content == ev.Content {
			return i
		}
	}
	return -1
}

func messageFromEvent(ev transport.MessageEvent) *model.Message {
	m := &model.Message{
		ID:             ev.ID.String(),
		CorrelationID:  ev.CorrelationID,
		ConversationID: ev.ConversationID.String(),
		SenderID:       ev.SenderID.String(),
		SenderName:     ev.SenderName,
		Content:        ev.Content,
		MediaType:      model.MediaType(ev.MediaType),
		MediaURL:       ev.MediaURL,
		ReplyToID:      ev.ReplyToID.String(),
		Status:         model.MessageStatusSent,
		CreatedAt:      ev.CreatedAt,
		UpdatedAt:      ev.UpdatedAt,
	}
	if m.MediaType == "" {
		m.MediaType = model.MediaTypeText
	}
	return m
}

// ApplyMessageUpdated applies an edit or deletion in place. Events for
// messages outside the held window are dropped. Applying the same event
// twice is a no-op the second time.
func (t *Thread) ApplyMessageUpdated(ev transport.MessageUpdateEvent) {
	t.mu.Lock()
	if t.state == ThreadIdle || ev.ConversationID.String() != t.conversationID {
		t.mu.Unlock()
		return
	}
	m := t.findLocked(ev.ID.String())
	if m == nil {
		t.mu.Unlock()
		logger.Debugf("thread: update for unknown message %s, dropped", ev.ID)
		return
	}
	if ev.Deleted {
		m.Status = model.MessageStatusDeleted
		m.Content = model.DeletedMessageText
		if t.replyToID == m.ID {
			// Reply target is gone; cancel the in-progress composition.
			t.replyToID = ""
		}
	} else {
		m.Content = ev.Content
		m.Edited = m.Edited || ev.Edited
	}
	if !ev.UpdatedAt.IsZero() {
		m.UpdatedAt = ev.UpdatedAt
	}
	t.mu.Unlock()
	t.notify()
}

// ApplyReaction sets or clears the message's reaction from a hub event.
func (t *Thread) ApplyReaction(ev transport.ReactionEvent, removed bool) {
	t.mu.Lock()
	if t.state == ThreadIdle || ev.ConversationID.String() != t.conversationID {
		t.mu.Unlock()
		return
	}
	m := t.findLocked(ev.MessageID.String())
	if m == nil {
		t.mu.Unlock()
		logger.Debugf("thread: reaction for unknown message %s, dropped", ev.MessageID)
		return
	}
	if removed {
		m.Reaction = ""
	} else {
		m.Reaction = ev.Emoji
	}
	t.mu.Unlock()
	t.notify()
}

// SetReplyTo starts composing a reply to a held, non-deleted message.
func (t *Thread) SetReplyTo(messageID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.findLocked(messageID)
	if m == nil {
		return fmt.Errorf("chat: reply target: %w", rest.ErrNotFound)
	}
	if m.IsDeleted() {
		return fmt.Errorf("chat: reply target %s is deleted", messageID)
	}
	t.replyToID = messageID
	return nil
}

// ClearReply abandons the reply composition.
func (t *Thread) ClearReply() {
	t.mu.Lock()
	t.replyToID = ""
	t.mu.Unlock()
}

// ReplyTarget returns the message currently being replied to, if any.
func (t *Thread) ReplyTarget() (model.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.replyToID == "" {
		return model.Message{}, false
	}
	m := t.findLocked(t.replyToID)
	if m == nil || m.IsDeleted() {
		return model.Message{}, false
	}
	return *m, true
}

// ReplyPreview resolves a message's reply back-reference for inline
// rendering. Suppressed when the referenced message is gone or deleted.
func (t *Thread) ReplyPreview(m model.Message) (model.Message, bool) {
	if m.ReplyToID == "" {
		return model.Message{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ref := t.findLocked(m.ReplyToID)
	if ref == nil || ref.IsDeleted() {
		return model.Message{}, false
	}
	return *ref, true
}

// --- read marking ---

// scheduleReadMarkLocked arms the debounced batched mark-as-read call.
// Recomputation happens at fire time so a burst of events produces one call.
func (t *Thread) scheduleReadMarkLocked() {
	if t.readTimer != nil {
		return
	}
	if !t.hasUnreportedLocked() {
		return
	}
	epoch := t.epoch
	t.readTimer = time.AfterFunc(t.readDebounce, func() { t.fireReadMark(epoch) })
}

func (t *Thread) hasUnreportedLocked() bool {
	for _, m := range t.messages {
		if m.SenderID == t.localUserID || m.IsPending() {
			continue
		}
		if _, done := t.reported[m.ID]; !done {
			return true
		}
	}
	return false
}

func (t *Thread) fireReadMark(epoch uint64) {
	t.mu.Lock()
	t.readTimer = nil
	if t.epoch != epoch {
		t.mu.Unlock()
		return
	}
	conversationID := t.conversationID
	var ids []string
	for _, m := range t.messages {
		if m.SenderID == t.localUserID || m.IsPending() {
			continue
		}
		if _, done := t.reported[m.ID]; done {
			continue
		}
		t.reported[m.ID] = struct{}{}
		ids = append(ids, m.ID)
	}
	t.mu.Unlock()

	if len(ids) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.api.MarkRead(ctx, conversationID, ids); err != nil {
		logger.Errorf("thread: mark read %s: %v", conversationID, err)
	}
}

// --- accessors ---

// State returns the thread lifecycle state.
func (t *Thread) State() ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ConversationID returns the open conversation's id, or "" when idle.
func (t *Thread) ConversationID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conversationID
}

// HasMore reports whether older pages remain.
func (t *Thread) HasMore() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasMore
}

// Messages returns a copy of the held window, oldest first.
func (t *Thread) Messages() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Message, 0, len(t.messages))
	for _, m := range t.messages {
		out = append(out, *m)
	}
	return out
}

func (t *Thread) findLocked(id string) *model.Message {
	for _, m := range t.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (t *Thread) removeLocked(id string) {
	for i, m := range t.messages {
		if m.ID == id {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			delete(t.held, id)
			return
		}
	}
}

func (t *Thread) notify() {
	if t.OnChange != nil {
		t.OnChange()
	}
}
