// Package mockserver is an in-memory implementation of the REST and hub
// boundary the sync core consumes. It backs the integration tests and local
// frontend development; it is not the production backend.
package mockserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/SEP491/FitBridge-Web-sub000/internal/logger"
	"github.com/SEP491/FitBridge-Web-sub000/internal/transport"
)

const clientSendBuf = 64

type client struct {
	conn   *websocket.Conn
	send   chan transport.Frame
	userID string
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	groups map[string]struct{}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *client) inGroup(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.groups[conversationID]
	return ok
}

// Server serves the mock REST API under /api and the hub under /hub.
type Server struct {
	store    *store
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

func New(allowedOrigins string) *Server {
	st := newStore()
	st.seed()
	s := &Server{
		store:   st,
		clients: make(map[*client]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigins == "" || allowedOrigins == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(o) == origin {
					return true
				}
			}
			return false
		},
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/conversations", s.handleConversations)
		r.Post("/conversations", s.handleCreateConversation)
		r.Get("/conversations/{id}/messages", s.handleMessages)
		r.Post("/messages", s.handleSendMessage)
		r.Put("/messages/{id}", s.handleUpdateMessage)
		r.Delete("/messages/{id}", s.handleDeleteMessage)
		r.Post("/messages/react", s.handleReact)
		r.Post("/messages/read", s.handleMarkRead)
		r.Get("/users", s.handleUsers)
	})
	r.Get("/hub", s.handleHub)
	return r
}

// --- REST handlers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			logger.Errorf("mockserver: encode response: %v", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	pageNumber := queryInt(r, "pageNumber", 1)
	pageSize := queryInt(r, "pageSize", 20)
	s.store.mu.Lock()
	items := s.store.conversationPage(pageNumber, pageSize)
	s.store.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	page := queryInt(r, "page", 1)
	size := queryInt(r, "size", 20)
	s.store.mu.Lock()
	data, ok := s.store.messagePage(id, page, size)
	s.store.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

type sendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	MediaType      string `json:"media_type"`
	MediaURL       string `json:"media_url"`
	ReplyToID      string `json:"reply_to_id"`
	CorrelationID  string `json:"correlation_id"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.ConversationID == "" || (req.Content == "" && req.MediaURL == "") {
		writeError(w, http.StatusBadRequest, "conversation_id and content required")
		return
	}

	s.store.mu.Lock()
	conv, ok := s.store.conversations[req.ConversationID]
	if !ok {
		s.store.mu.Unlock()
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	senderName := ""
	for _, m := range conv.Members {
		if m.UserID == AdminUserID {
			senderName = m.Name
		}
	}
	now := time.Now().UTC()
	mediaType := req.MediaType
	if mediaType == "" {
		mediaType = "text"
	}
	msg := &messageJSON{
		ID:             uuid.New().String(),
		ConversationID: req.ConversationID,
		SenderID:       AdminUserID,
		SenderName:     senderName,
		Content:        req.Content,
		MediaType:      mediaType,
		MediaURL:       req.MediaURL,
		ReplyToID:      req.ReplyToID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.store.appendMessage(msg)
	s.store.mu.Unlock()

	s.broadcastEvent(transport.EventMessageReceived, messageEventFrom(msg, req.CorrelationID))
	writeJSON(w, http.StatusCreated, msg)
}

func messageEventFrom(m *messageJSON, correlationID string) transport.MessageEvent {
	return transport.MessageEvent{
		ID:             flexID(m.ID),
		CorrelationID:  correlationID,
		ConversationID: flexID(m.ConversationID),
		SenderID:       flexID(m.SenderID),
		SenderName:     m.SenderName,
		Content:        m.Content,
		MediaType:      m.MediaType,
		MediaURL:       m.MediaURL,
		ReplyToID:      flexID(m.ReplyToID),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func (s *Server) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}

	s.store.mu.Lock()
	m := s.store.findMessage(id)
	if m == nil {
		s.store.mu.Unlock()
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	if m.Deleted {
		s.store.mu.Unlock()
		writeError(w, http.StatusConflict, "message deleted")
		return
	}
	m.Content = req.Content
	m.Edited = true
	m.UpdatedAt = time.Now().UTC()
	ev := transport.MessageUpdateEvent{
		ID:             flexID(m.ID),
		ConversationID: flexID(m.ConversationID),
		Content:        m.Content,
		Edited:         true,
		UpdatedAt:      m.UpdatedAt,
	}
	s.store.mu.Unlock()

	s.broadcastEvent(transport.EventMessageUpdated, ev)
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.store.mu.Lock()
	m := s.store.findMessage(id)
	if m == nil {
		s.store.mu.Unlock()
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	m.Deleted = true
	m.UpdatedAt = time.Now().UTC()
	ev := transport.MessageUpdateEvent{
		ID:             flexID(m.ID),
		ConversationID: flexID(m.ConversationID),
		Deleted:        true,
		UpdatedAt:      m.UpdatedAt,
	}
	s.store.mu.Unlock()

	s.broadcastEvent(transport.EventMessageUpdated, ev)
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleReact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageID string `json:"message_id"`
		Emoji     string `json:"emoji"`
		Remove    bool   `json:"remove"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MessageID == "" {
		writeError(w, http.StatusBadRequest, "message_id required")
		return
	}

	s.store.mu.Lock()
	m := s.store.findMessage(req.MessageID)
	if m == nil {
		s.store.mu.Unlock()
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	if req.Remove {
		m.Reaction = ""
	} else {
		m.Reaction = req.Emoji
	}
	ev := transport.ReactionEvent{
		MessageID:      flexID(m.ID),
		ConversationID: flexID(m.ConversationID),
		UserID:         flexID(AdminUserID),
		Emoji:          req.Emoji,
	}
	s.store.mu.Unlock()

	if req.Remove {
		s.broadcastEvent(transport.EventReactionRemoved, ev)
	} else {
		s.broadcastEvent(transport.EventReactionReceived, ev)
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string   `json:"conversation_id"`
		MessageIDs     []string `json:"message_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "conversation_id required")
		return
	}

	s.store.mu.Lock()
	conv, ok := s.store.conversations[req.ConversationID]
	if !ok {
		s.store.mu.Unlock()
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	conv.IsRead = true
	conv.UnreadCount = 0
	s.store.mu.Unlock()

	s.broadcastEvent(transport.EventUpdateMessageStatus, transport.MessageStatusEvent{
		ConversationID: flexID(req.ConversationID),
		UserID:         flexID(AdminUserID),
		Status:         "Read",
	})
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title     string   `json:"title"`
		IsGroup   bool     `json:"is_group"`
		MemberIDs []string `json:"member_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.store.mu.Lock()
	conv, err := s.store.createConversation(req.Title, req.IsGroup, req.MemberIDs)
	if err != nil {
		s.store.mu.Unlock()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out := *conv
	s.store.mu.Unlock()
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	s.store.mu.Lock()
	items := append([]memberJSON(nil), s.store.users...)
	s.store.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// --- hub ---

func (s *Server) handleHub(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("mockserver: upgrade: %v", err)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = AdminUserID
	}
	c := &client{
		conn:   conn,
		send:   make(chan transport.Frame, clientSendBuf),
		userID: userID,
		done:   make(chan struct{}),
		groups: make(map[string]struct{}),
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	s.broadcastEvent(transport.EventUserPresenceUpdate, transport.PresenceEvent{
		UserID: flexID(userID), IsOnline: true,
	})

	go s.writePump(c)
	s.readPump(c)

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()

	s.broadcastEvent(transport.EventUserPresenceUpdate, transport.PresenceEvent{
		UserID: flexID(userID), IsOnline: false,
	})
}

func (s *Server) readPump(c *client) {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame transport.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			logger.Errorf("mockserver: bad frame from %s: %v", c.userID, err)
			continue
		}
		if frame.Type != transport.FrameInvoke {
			continue
		}
		s.handleInvoke(c, frame)
	}
}

func (s *Server) writePump(c *client) {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(frame); err != nil {
				c.close()
				return
			}
		}
	}
}

func (s *Server) handleInvoke(c *client, frame transport.Frame) {
	result := transport.Frame{Type: transport.FrameResult, ID: frame.ID}
	switch frame.Method {
	case transport.MethodJoinGroup:
		var p transport.GroupPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil || p.ConversationID == "" {
			result.Error = "conversation_id required"
			break
		}
		c.mu.Lock()
		c.groups[p.ConversationID] = struct{}{}
		c.mu.Unlock()
	case transport.MethodLeaveGroup:
		var p transport.GroupPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil || p.ConversationID == "" {
			result.Error = "conversation_id required"
			break
		}
		c.mu.Lock()
		delete(c.groups, p.ConversationID)
		c.mu.Unlock()
	case transport.MethodUserTyping:
		var p transport.TypingInvoke
		if err := json.Unmarshal(frame.Payload, &p); err != nil || p.ConversationID == "" {
			result.Error = "conversation_id required"
			break
		}
		s.broadcastTyping(c, p)
	default:
		result.Error = "unknown method " + frame.Method
	}
	s.sendToClient(c, result)
}

func (s *Server) broadcastTyping(origin *client, p transport.TypingInvoke) {
	ev := transport.TypingEvent{
		ConversationID: flexID(p.ConversationID),
		UserID:         flexID(origin.userID),
		IsTyping:       p.IsTyping,
	}
	frame, err := eventFrame(transport.EventUserTyping, ev)
	if err != nil {
		return
	}
	for _, c := range s.clientList() {
		if c == origin || !c.inGroup(p.ConversationID) {
			continue
		}
		s.sendToClient(c, frame)
	}
}

// broadcastEvent fans an event out to every connected client: the dashboard
// list view consumes message events for conversations it has not joined.
func (s *Server) broadcastEvent(event transport.EventType, payload any) {
	frame, err := eventFrame(event, payload)
	if err != nil {
		logger.Errorf("mockserver: marshal %s: %v", event, err)
		return
	}
	for _, c := range s.clientList() {
		s.sendToClient(c, frame)
	}
}

func (s *Server) clientList() []*client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

func (s *Server) sendToClient(c *client, frame transport.Frame) {
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		// Backpressure: send buffer full, drop the slow client.
		logger.Errorf("mockserver: send buffer full, closing client %s", c.userID)
		c.close()
	}
}

func eventFrame(event transport.EventType, payload any) (transport.Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return transport.Frame{}, err
	}
	return transport.Frame{Type: transport.FrameEvent, Event: event, Payload: raw}, nil
}
