// Package rest is the client for the conversation/message REST boundary.
// Responses are decoded into one explicit schema per route and mapped to
// model types right here; ids are normalized at this boundary and never
// again. Non-conforming payloads are rejected, not shape-guessed.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/SEP491/FitBridge-Web-sub000/internal/model"
)

var (
	// ErrNotFound: the server no longer recognizes the target message or
	// conversation. For optimistic mutations this is a rollback trigger.
	ErrNotFound = errors.New("rest: not found")
	// ErrConflict: the mutation lost a race on the server. Rollback trigger.
	ErrConflict = errors.New("rest: conflict")
)

// StatusError covers remaining non-2xx responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("rest: status %d", e.Code) }

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// --- Wire schemas ---

type memberDTO struct {
	UserID    model.FlexID `json:"user_id"`
	Name      string       `json:"name"`
	AvatarURL string       `json:"avatar_url"`
}

type messageDTO struct {
	ID             model.FlexID `json:"id"`
	ConversationID model.FlexID `json:"conversation_id"`
	SenderID       model.FlexID `json:"sender_id"`
	SenderName     string       `json:"sender_name"`
	Content        string       `json:"content"`
	MediaType      string       `json:"media_type"`
	MediaURL       string       `json:"media_url"`
	ReplyToID      model.FlexID `json:"reply_to_id"`
	Reaction       string       `json:"reaction"`
	Deleted        bool         `json:"deleted"`
	Edited         bool         `json:"edited"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

type conversationDTO struct {
	ID          model.FlexID `json:"id"`
	Title       string       `json:"title"`
	ImageURL    string       `json:"image_url"`
	IsGroup     bool         `json:"is_group"`
	Members     []memberDTO  `json:"members"`
	LastMessage *messageDTO  `json:"last_message"`
	IsRead      *bool        `json:"is_read"`
	UnreadCount *int         `json:"unread_count"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func mapMessage(d messageDTO) model.Message {
	m := model.Message{
		ID:             d.ID.String(),
		ConversationID: d.ConversationID.String(),
		SenderID:       d.SenderID.String(),
		SenderName:     d.SenderName,
		Content:        d.Content,
		MediaType:      model.MediaType(d.MediaType),
		MediaURL:       d.MediaURL,
		ReplyToID:      d.ReplyToID.String(),
		Reaction:       d.Reaction,
		Edited:         d.Edited,
		Status:         model.MessageStatusSent,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if m.MediaType == "" {
		m.MediaType = model.MediaTypeText
	}
	if d.Deleted {
		m.Status = model.MessageStatusDeleted
		m.Content = model.DeletedMessageText
	}
	return m
}

func mapConversation(d conversationDTO) model.Conversation {
	c := model.Conversation{
		ID:        d.ID.String(),
		Title:     d.Title,
		ImageURL:  d.ImageURL,
		IsGroup:   d.IsGroup,
		UpdatedAt: d.UpdatedAt,
	}
	for _, m := range d.Members {
		c.Members = append(c.Members, model.Member{
			UserID:    m.UserID.String(),
			Name:      m.Name,
			AvatarURL: m.AvatarURL,
		})
	}
	if d.LastMessage != nil {
		lm := mapMessage(*d.LastMessage)
		c.LastMessage = &model.LastMessagePreview{
			MessageID:  lm.ID,
			Content:    lm.Content,
			SenderID:   lm.SenderID,
			SenderName: lm.SenderName,
			MediaType:  lm.MediaType,
			Deleted:    lm.IsDeleted(),
			CreatedAt:  lm.CreatedAt,
		}
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = lm.CreatedAt
		}
	}
	// unread bookkeeping: some routes omit the count and only send is_read.
	if d.IsRead != nil {
		c.IsRead = *d.IsRead
	}
	if d.UnreadCount != nil {
		c.UnreadCount = *d.UnreadCount
	} else if !c.IsRead {
		c.UnreadCount = 1
	}
	if c.IsRead {
		c.UnreadCount = 0
	}
	return c
}

// --- Requests ---

// Conversations fetches one page of the conversation list.
func (c *Client) Conversations(ctx context.Context, pageNumber, pageSize int) ([]model.Conversation, error) {
	q := url.Values{}
	q.Set("pageNumber", strconv.Itoa(pageNumber))
	q.Set("pageSize", strconv.Itoa(pageSize))

	var resp struct {
		Items []conversationDTO `json:"items"`
	}
	if err := c.get(ctx, "/conversations?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	out := make([]model.Conversation, 0, len(resp.Items))
	for _, d := range resp.Items {
		if d.ID.IsZero() {
			return nil, fmt.Errorf("rest: conversation without id in page %d", pageNumber)
		}
		out = append(out, mapConversation(d))
	}
	return out, nil
}

// Messages fetches one page of a conversation's history. The server returns
// newest-first within a page; the result is reversed to chronological order
// here so callers only ever see oldest-first.
func (c *Client) Messages(ctx context.Context, conversationID string, page, size int) ([]model.Message, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	var resp struct {
		Data []messageDTO `json:"data"`
	}
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages?" + q.Encode()
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	out := make([]model.Message, 0, len(resp.Data))
	for i := len(resp.Data) - 1; i >= 0; i-- {
		d := resp.Data[i]
		if d.ID.IsZero() {
			return nil, fmt.Errorf("rest: message without id in conversation %s", conversationID)
		}
		out = append(out, mapMessage(d))
	}
	return out, nil
}

// SendMessageRequest carries one outbound message. CorrelationID is the
// client-generated id echoed back in the confirming MessageReceived event.
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content,omitempty"`
	MediaType      string `json:"media_type,omitempty"`
	MediaURL       string `json:"media_url,omitempty"`
	ReplyToID      string `json:"reply_to_id,omitempty"`
	CorrelationID  string `json:"correlation_id"`
}

// SendMessage posts a new message. The confirmed message also arrives as a
// MessageReceived event; the response body is not relied on for sync.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) error {
	return c.send(ctx, http.MethodPost, "/messages", req)
}

// UpdateMessage replaces a message's content.
func (c *Client) UpdateMessage(ctx context.Context, messageID, content string) error {
	body := struct {
		Content string `json:"content"`
	}{Content: content}
	return c.send(ctx, http.MethodPut, "/messages/"+url.PathEscape(messageID), body)
}

// DeleteMessage soft-deletes a message.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.send(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil)
}

// React sets or removes the single reaction on a message. Toggle semantics
// are decided by the caller; Remove=true clears.
func (c *Client) React(ctx context.Context, messageID, emoji string, remove bool) error {
	body := struct {
		MessageID string `json:"message_id"`
		Emoji     string `json:"emoji,omitempty"`
		Remove    bool   `json:"remove,omitempty"`
	}{MessageID: messageID, Emoji: emoji, Remove: remove}
	return c.send(ctx, http.MethodPost, "/messages/react", body)
}

// MarkRead reports a batch of messages as read. Best-effort from the
// caller's point of view.
func (c *Client) MarkRead(ctx context.Context, conversationID string, messageIDs []string) error {
	body := struct {
		ConversationID string   `json:"conversation_id"`
		MessageIDs     []string `json:"message_ids,omitempty"`
	}{ConversationID: conversationID, MessageIDs: messageIDs}
	return c.send(ctx, http.MethodPost, "/messages/read", body)
}

// CreateConversationRequest starts a chat with one or more partners.
type CreateConversationRequest struct {
	Title     string   `json:"title,omitempty"`
	IsGroup   bool     `json:"is_group,omitempty"`
	MemberIDs []string `json:"member_ids"`
}

// CreateConversation creates a conversation and returns its mapped record.
func (c *Client) CreateConversation(ctx context.Context, req CreateConversationRequest) (model.Conversation, error) {
	var dto conversationDTO
	if err := c.post(ctx, "/conversations", req, &dto); err != nil {
		return model.Conversation{}, err
	}
	if dto.ID.IsZero() {
		return model.Conversation{}, errors.New("rest: created conversation without id")
	}
	return mapConversation(dto), nil
}

// Users lists candidate chat partners.
func (c *Client) Users(ctx context.Context) ([]model.Member, error) {
	var resp struct {
		Items []memberDTO `json:"items"`
	}
	if err := c.get(ctx, "/users", &resp); err != nil {
		return nil, err
	}
	out := make([]model.Member, 0, len(resp.Items))
	for _, d := range resp.Items {
		out = append(out, model.Member{UserID: d.UserID.String(), Name: d.Name, AvatarURL: d.AvatarURL})
	}
	return out, nil
}

// --- HTTP plumbing ---

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) send(ctx context.Context, method, path string, body any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rest: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return ErrConflict
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{Code: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("rest: decode %s: %w", req.URL.Path, err)
	}
	return nil
}
