package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/SEP491/FitBridge-Web-sub000/internal/config"
	"github.com/SEP491/FitBridge-Web-sub000/internal/logger"
	"github.com/SEP491/FitBridge-Web-sub000/internal/presence"
	"github.com/SEP491/FitBridge-Web-sub000/internal/rest"
	"github.com/SEP491/FitBridge-Web-sub000/internal/transport"
)

type jsonRaw = json.RawMessage

func decodeEvent(raw jsonRaw, out any, name string) bool {
	if err := json.Unmarshal(raw, out); err != nil {
		logger.Errorf("chat: bad %s payload: %v", name, err)
		return false
	}
	return true
}

// Engine owns the whole sync core for one signed-in admin: the transport
// session, the conversation list, at most one open thread, and the presence
// tracker. Constructed at application start and passed to the views; no
// ambient singletons. The engine is also the reconnection recovery
// coordinator: on OnReconnected it re-fetches whatever is visible,
// superseding events missed during the gap.
type Engine struct {
	cfg           *config.Config
	api           API
	hub           Hub
	session       *transport.Session // nil when the hub is injected (tests)
	localUserID   string
	localUserName string

	List     *ConversationList
	Presence *presence.Tracker

	mu     sync.Mutex
	thread *Thread
	typing *presence.TypingNotifier
	offs   []func()

	// OnPreviewRelease is forwarded to each opened thread; receives local
	// image preview URLs once their sends are confirmed.
	OnPreviewRelease func(url string)
}

// New wires an engine against the configured backend endpoints.
func New(cfg *config.Config, localUserID, localUserName string) *Engine {
	api := rest.NewClient(cfg.APIBaseURL, cfg.RequestTimeout)
	session := transport.NewSession(cfg.HubURL, cfg.ReconnectMinDelay, cfg.ReconnectMaxDelay)
	e := newEngine(cfg, api, session, localUserID, localUserName)
	e.session = session
	return e
}

// newEngine wires an engine against explicit boundaries. Tests inject stubs
// here.
func newEngine(cfg *config.Config, api API, hub Hub, localUserID, localUserName string) *Engine {
	return &Engine{
		cfg:           cfg,
		api:           api,
		hub:           hub,
		localUserID:   localUserID,
		localUserName: localUserName,
		List:          NewConversationList(api, localUserID, cfg.ConversationPageSize),
		Presence:      presence.NewTracker(cfg.TypingTTL),
	}
}

// Start subscribes the list-level and presence handlers, connects the
// session, and loads the first conversation page.
func (e *Engine) Start(ctx context.Context) error {
	e.subscribe()
	if e.session != nil {
		if err := e.session.Connect(ctx); err != nil {
			return err
		}
	}
	return e.List.LoadPage(ctx, 1)
}

func (e *Engine) subscribe() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.offs = append(e.offs,
		e.hub.On(transport.EventMessageReceived, func(raw jsonRaw) {
			var ev transport.MessageEvent
			if !decodeEvent(raw, &ev, "MessageReceived") {
				return
			}
			e.List.ApplyIncomingMessage(ev)
		}),
		e.hub.On(transport.EventMessageUpdated, func(raw jsonRaw) {
			var ev transport.MessageUpdateEvent
			if !decodeEvent(raw, &ev, "MessageUpdated") {
				return
			}
			e.List.ApplyMessageUpdate(ev)
		}),
		e.hub.On(transport.EventUserTyping, func(raw jsonRaw) {
			var ev transport.TypingEvent
			if !decodeEvent(raw, &ev, "UserTyping") {
				return
			}
			if ev.UserID.String() == e.localUserID {
				return
			}
			e.Presence.SetTyping(ev.ConversationID.String(), ev.UserID.String(), ev.IsTyping)
		}),
		e.hub.On(transport.EventUserPresenceUpdate, func(raw jsonRaw) {
			var ev transport.PresenceEvent
			if !decodeEvent(raw, &ev, "UserPresenceUpdate") {
				return
			}
			e.Presence.SetPresence(ev.UserID.String(), ev.IsOnline)
		}),
		e.hub.On(transport.EventUpdateMessageStatus, func(raw jsonRaw) {
			var ev transport.MessageStatusEvent
			if !decodeEvent(raw, &ev, "UpdateMessageStatus") {
				return
			}
			// A read receipt for the local user means another tab or device
			// read the conversation; mirror it locally.
			if ev.UserID.String() == e.localUserID && ev.Status == "Read" {
				e.List.MarkReadLocal(ev.ConversationID.String())
			}
		}),
		e.hub.On(transport.EventReconnected, func(jsonRaw) {
			go e.recover()
		}),
	)
}

// recover is the post-reconnect authoritative re-fetch: the visible list
// pages and, when a thread is open, its current window. Accepts that some
// transient events are permanently lost in favor of consistency.
func (e *Engine) recover() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	last := e.List.LastPage()
	if last < 1 {
		last = 1
	}
	for page := 1; page <= last; page++ {
		if err := e.List.LoadPage(ctx, page); err != nil {
			logger.Errorf("engine: recover list page %d: %v", page, err)
			break
		}
	}

	e.mu.Lock()
	thread := e.thread
	e.mu.Unlock()
	if thread != nil {
		if err := thread.Refresh(ctx); err != nil {
			logger.Errorf("engine: recover thread: %v", err)
		}
	}
}

// OpenThread opens the message-detail view for one conversation, closing
// any previously open thread first. The conversation is marked read.
func (e *Engine) OpenThread(ctx context.Context, conversationID string) (*Thread, error) {
	e.mu.Lock()
	if e.thread != nil && e.thread.ConversationID() == conversationID {
		t := e.thread
		e.mu.Unlock()
		return t, nil
	}
	e.closeThreadLocked()

	t := newThread(e.api, e.hub, e.localUserID, e.localUserName, e.cfg.MessagePageSize, e.cfg.ReadMarkDebounce)
	t.OnPreviewRelease = e.OnPreviewRelease
	e.thread = t
	e.typing = presence.NewTypingNotifier(e.cfg.TypingTTL, func(isTyping bool) {
		// Best-effort: typing failures are silently ignored.
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		payload := transport.TypingInvoke{ConversationID: conversationID, IsTyping: isTyping}
		if _, err := e.hub.Invoke(ctx, transport.MethodUserTyping, payload); err != nil {
			logger.Debugf("engine: typing notify: %v", err)
		}
	})
	e.mu.Unlock()

	e.List.SetOpen(conversationID)
	if err := t.Open(ctx, conversationID); err != nil {
		e.mu.Lock()
		e.closeThreadLocked()
		e.mu.Unlock()
		e.List.SetOpen("")
		return nil, err
	}
	e.List.MarkConversationRead(conversationID)
	return t, nil
}

// CloseThread tears down the open message-detail view, if any.
func (e *Engine) CloseThread() {
	e.mu.Lock()
	e.closeThreadLocked()
	e.mu.Unlock()
	e.List.SetOpen("")
}

func (e *Engine) closeThreadLocked() {
	if e.typing != nil {
		e.typing.Close()
		e.typing = nil
	}
	if e.thread != nil {
		t := e.thread
		e.thread = nil
		t.Close()
	}
}

// Thread returns the open thread, or nil.
func (e *Engine) Thread() *Thread {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.thread
}

// TypingKeystroke reports local input activity in the open thread's
// composer. Outbound signals are throttled by the notifier.
func (e *Engine) TypingKeystroke() {
	e.mu.Lock()
	n := e.typing
	e.mu.Unlock()
	if n != nil {
		n.Keystroke()
	}
}

// TypingStop reports that the composer was cleared or the message sent.
func (e *Engine) TypingStop() {
	e.mu.Lock()
	n := e.typing
	e.mu.Unlock()
	if n != nil {
		n.Stop()
	}
}

// Status returns the transport lifecycle state for the connection badge.
func (e *Engine) Status() transport.State {
	return e.hub.State()
}

// Stop tears the engine down: thread, presence timers, then the session.
func (e *Engine) Stop() {
	e.CloseThread()
	e.Presence.Close()
	e.mu.Lock()
	offs := e.offs
	e.offs = nil
	e.mu.Unlock()
	for _, off := range offs {
		off()
	}
	if e.session != nil {
		e.session.Close()
	}
}
