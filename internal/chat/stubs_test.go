package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/SEP491/FitBridge-Web-sub000/internal/model"
	"github.com/SEP491/FitBridge-Web-sub000/internal/rest"
	"github.com/SEP491/FitBridge-Web-sub000/internal/transport"
)

// stubAPI implements API against fixed pages.
type stubAPI struct {
	mu sync.Mutex

	convPages map[int][]model.Conversation
	msgPages  map[int][]model.Message // chronological, as the rest client returns them

	convCalls int
	msgCalls  []int

	sendErr   error
	updateErr error
	deleteErr error
	reactErr  error

	sent        []rest.SendMessageRequest
	updated     []string
	deleted     []string
	reactions   []reactCall
	readBatches []readCall

	// msgGate, when non-nil, blocks Messages until the gate is closed.
	msgGate chan struct{}
}

type reactCall struct {
	MessageID string
	Emoji     string
	Remove    bool
}

type readCall struct {
	ConversationID string
	MessageIDs     []string
}

func (a *stubAPI) Conversations(ctx context.Context, pageNumber, pageSize int) ([]model.Conversation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.convCalls++
	return append([]model.Conversation(nil), a.convPages[pageNumber]...), nil
}

func (a *stubAPI) Messages(ctx context.Context, conversationID string, page, size int) ([]model.Message, error) {
	a.mu.Lock()
	gate := a.msgGate
	a.msgCalls = append(a.msgCalls, page)
	out := append([]model.Message(nil), a.msgPages[page]...)
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return out, nil
}

func (a *stubAPI) SendMessage(ctx context.Context, req rest.SendMessageRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendErr != nil {
		return a.sendErr
	}
	a.sent = append(a.sent, req)
	return nil
}

func (a *stubAPI) UpdateMessage(ctx context.Context, messageID, content string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.updateErr != nil {
		return a.updateErr
	}
	a.updated = append(a.updated, messageID)
	return nil
}

func (a *stubAPI) DeleteMessage(ctx context.Context, messageID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.deleteErr != nil {
		return a.deleteErr
	}
	a.deleted = append(a.deleted, messageID)
	return nil
}

func (a *stubAPI) React(ctx context.Context, messageID, emoji string, remove bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.reactErr != nil {
		return a.reactErr
	}
	a.reactions = append(a.reactions, reactCall{MessageID: messageID, Emoji: emoji, Remove: remove})
	return nil
}

func (a *stubAPI) MarkRead(ctx context.Context, conversationID string, messageIDs []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.readBatches = append(a.readBatches, readCall{ConversationID: conversationID, MessageIDs: messageIDs})
	return nil
}

func (a *stubAPI) readBatchCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.readBatches)
}

// stubHub implements Hub in-process; tests emit events through it.
type stubHub struct {
	mu        sync.Mutex
	handlers  map[transport.EventType]map[int]transport.Handler
	nextSub   int
	invokes   []string
	invokeErr error
	state     transport.State
}

func newStubHub() *stubHub {
	return &stubHub{
		handlers: make(map[transport.EventType]map[int]transport.Handler),
		state:    transport.StateConnected,
	}
}

func (h *stubHub) On(event transport.EventType, fn transport.Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.handlers[event] == nil {
		h.handlers[event] = make(map[int]transport.Handler)
	}
	id := h.nextSub
	h.nextSub++
	h.handlers[event][id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.handlers[event], id)
	}
}

func (h *stubHub) Invoke(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.invokeErr != nil {
		return nil, h.invokeErr
	}
	h.invokes = append(h.invokes, method)
	return nil, nil
}

func (h *stubHub) State() transport.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *stubHub) emit(event transport.EventType, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	h.mu.Lock()
	hs := make([]transport.Handler, 0, len(h.handlers[event]))
	for _, fn := range h.handlers[event] {
		hs = append(hs, fn)
	}
	h.mu.Unlock()
	for _, fn := range hs {
		fn(raw)
	}
}

func (h *stubHub) invokeList() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.invokes...)
}

// --- fixtures ---

func textMessage(id, conversationID, senderID, content string, at time.Time) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     "User " + senderID,
		Content:        content,
		MediaType:      model.MediaTypeText,
		Status:         model.MessageStatusSent,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func messageEvent(id, conversationID, senderID, content string, at time.Time) transport.MessageEvent {
	return transport.MessageEvent{
		ID:             model.FlexID(id),
		ConversationID: model.FlexID(conversationID),
		SenderID:       model.FlexID(senderID),
		SenderName:     "User " + senderID,
		Content:        content,
		MediaType:      string(model.MediaTypeText),
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}
