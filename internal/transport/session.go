package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/SEP491/FitBridge-Web-sub000/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 65536
	sendBufSize    = 64
)

var (
	// ErrNotConnected is returned by Invoke while the session is not in the
	// Connected state. Callers retry or queue at their own layer.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrSessionClosed is returned once Close has been called.
	ErrSessionClosed = errors.New("transport: session closed")
)

type State int

const (
	StateClosed State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "closed"
	}
}

// Handler receives the raw payload of one event occurrence.
type Handler func(payload json.RawMessage)

type invokeResult struct {
	payload json.RawMessage
	err     error
}

// Session owns one persistent bidirectional hub connection: named-event
// pub/sub, request/response invoke, and automatic transport-level reconnect
// with exponential backoff. It does not re-sync application state after a
// reconnect; that is the recovery coordinator's job. It only reports
// OnReconnecting/OnReconnected so the coordinator can act.
type Session struct {
	url      string
	minDelay time.Duration
	maxDelay time.Duration
	dialer   *websocket.Dialer

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	send     chan Frame // recreated per connection
	handlers map[EventType]map[int]Handler
	nextSub  int
	pending  map[string]chan invokeResult
	closed   bool
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewSession(url string, minDelay, maxDelay time.Duration) *Session {
	if minDelay <= 0 {
		minDelay = 500 * time.Millisecond
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Session{
		url:      url,
		minDelay: minDelay,
		maxDelay: maxDelay,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		handlers: make(map[EventType]map[int]Handler),
		pending:  make(map[string]chan invokeResult),
		done:     make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// On subscribes a handler to a named event and returns its unsubscribe
// function. Handlers run on the session's read goroutine; they must apply
// their state transition and return.
func (s *Session) On(event EventType, h Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers[event] == nil {
		s.handlers[event] = make(map[int]Handler)
	}
	id := s.nextSub
	s.nextSub++
	s.handlers[event][id] = h
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers[event], id)
	}
}

// Connect dials the hub. A dial failure here propagates to the caller;
// mid-session drops are handled internally and surface only as lifecycle
// events.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state != StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.mu.Unlock()
	s.emit(EventConnecting, nil)

	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		return fmt.Errorf("transport: connect %s: %w", s.url, err)
	}

	s.attach(conn)
	s.emit(EventConnected, nil)
	return nil
}

// Close tears the session down. Pending invokes fail with ErrSessionClosed
// and OnClosed is emitted once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = StateClosed
	conn := s.conn
	s.conn = nil
	close(s.done)
	s.failPendingLocked(ErrSessionClosed)
	s.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(time.Second))
		conn.Close()
	}
	s.wg.Wait()
	s.emit(EventClosed, nil)
}

// Invoke sends a request frame and waits for the matching result. Fails
// immediately with ErrNotConnected while disconnected.
func (s *Session) Invoke(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal %s payload: %w", method, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.state != StateConnected || s.send == nil {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	id := uuid.New().String()
	ch := make(chan invokeResult, 1)
	s.pending[id] = ch
	sendCh := s.send
	s.mu.Unlock()

	frame := Frame{Type: FrameInvoke, ID: id, Method: method, Payload: raw}
	select {
	case sendCh <- frame:
	case <-ctx.Done():
		s.dropPending(id)
		return nil, ctx.Err()
	case <-s.done:
		s.dropPending(id)
		return nil, ErrSessionClosed
	}

	select {
	case res := <-ch:
		return res.payload, res.err
	case <-ctx.Done():
		s.dropPending(id)
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrSessionClosed
	}
}

func (s *Session) dropPending(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Session) failPendingLocked(err error) {
	for id, ch := range s.pending {
		ch <- invokeResult{err: err}
		delete(s.pending, id)
	}
}

// attach installs a live connection and starts its pumps.
func (s *Session) attach(conn *websocket.Conn) {
	send := make(chan Frame, sendBufSize)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.send = send
	s.state = StateConnected
	s.mu.Unlock()

	s.wg.Add(2)
	go s.readPump(conn)
	go s.writePump(conn, send)
}

// connLost handles a mid-session drop for conn. Stale notifications from an
// already-replaced connection are ignored.
func (s *Session) connLost(conn *websocket.Conn) {
	s.mu.Lock()
	if s.closed || s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.send = nil
	s.state = StateReconnecting
	s.failPendingLocked(ErrNotConnected)
	s.mu.Unlock()
	conn.Close()

	s.emit(EventReconnecting, nil)
	s.wg.Add(1)
	go s.reconnectLoop()
}

func (s *Session) reconnectLoop() {
	defer s.wg.Done()
	delay := s.minDelay
	for {
		select {
		case <-s.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		cancel()
		if err != nil {
			logger.Errorf("transport: reconnect %s: %v", s.url, err)
			delay *= 2
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
			continue
		}

		s.attach(conn)
		if s.State() == StateConnected {
			s.emit(EventReconnected, nil)
		}
		return
	}
}

func (s *Session) readPump(conn *websocket.Conn) {
	defer s.wg.Done()
	defer s.connLost(conn)

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debugf("transport: read: %v", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			logger.Errorf("transport: bad frame: %v", err)
			continue
		}

		switch frame.Type {
		case FrameEvent:
			s.emit(frame.Event, frame.Payload)
		case FrameResult:
			s.resolve(frame)
		default:
			logger.Debugf("transport: unknown frame type %q", frame.Type)
		}
	}
}

func (s *Session) writePump(conn *websocket.Conn, send chan Frame) {
	defer s.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-s.done:
			conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case frame := <-send:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) resolve(frame Frame) {
	s.mu.Lock()
	ch, ok := s.pending[frame.ID]
	if ok {
		delete(s.pending, frame.ID)
	}
	s.mu.Unlock()
	if !ok {
		logger.Debugf("transport: result for unknown invoke %s", frame.ID)
		return
	}
	res := invokeResult{payload: frame.Payload}
	if frame.Error != "" {
		res.err = fmt.Errorf("transport: invoke failed: %s", frame.Error)
	}
	ch <- res
}

// emit dispatches one event occurrence to a snapshot of its handlers. The
// snapshot keeps handler bodies from running under the session lock.
func (s *Session) emit(event EventType, payload json.RawMessage) {
	s.mu.Lock()
	hs := make([]Handler, 0, len(s.handlers[event]))
	for _, h := range s.handlers[event] {
		hs = append(hs, h)
	}
	s.mu.Unlock()
	for _, h := range hs {
		h(payload)
	}
}
