package presence

import (
	"sync"
	"time"
)

// TypingNotifier throttles outbound typing signals for one conversation.
// A start signal goes out on the first keystroke after idle; a stop signal
// goes out after the idle interval elapses without keystrokes, or
// immediately on Stop (input cleared / message sent). Never per keystroke.
type TypingNotifier struct {
	mu     sync.Mutex
	active bool
	timer  *time.Timer
	idle   time.Duration
	send   func(isTyping bool) // best-effort, errors are the sender's problem
	closed bool
}

func NewTypingNotifier(idle time.Duration, send func(isTyping bool)) *TypingNotifier {
	if idle <= 0 {
		idle = 3 * time.Second
	}
	return &TypingNotifier{idle: idle, send: send}
}

// Keystroke registers input activity.
func (n *TypingNotifier) Keystroke() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	wasActive := n.active
	n.active = true
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.idle, n.idleExpired)
	n.mu.Unlock()

	if !wasActive {
		n.send(true)
	}
}

func (n *TypingNotifier) idleExpired() {
	n.mu.Lock()
	if n.closed || !n.active {
		n.mu.Unlock()
		return
	}
	n.active = false
	n.timer = nil
	n.mu.Unlock()
	n.send(false)
}

// Stop signals an immediate end of typing (message sent or input cleared).
func (n *TypingNotifier) Stop() {
	n.mu.Lock()
	if n.closed || !n.active {
		if n.timer != nil {
			n.timer.Stop()
			n.timer = nil
		}
		n.mu.Unlock()
		return
	}
	n.active = false
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.mu.Unlock()
	n.send(false)
}

// Close stops the timer without sending anything further.
func (n *TypingNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}
