package presence

import (
	"sync"
	"testing"
	"time"
)

func TestPresenceLastWriteWins(t *testing.T) {
	tr := NewTracker(time.Second)
	defer tr.Close()

	if tr.IsOnline("u1") {
		t.Fatal("unknown user should be offline")
	}
	tr.SetPresence("u1", true)
	tr.SetPresence("u1", false)
	tr.SetPresence("u1", true)
	if !tr.IsOnline("u1") {
		t.Fatal("last write should win")
	}
}

func TestTypingExpiresAfterQuietInterval(t *testing.T) {
	tr := NewTracker(50 * time.Millisecond)
	defer tr.Close()

	tr.SetTyping("c1", "u1", true)
	if got := tr.TypingUsers("c1"); len(got) != 1 || got[0] != "u1" {
		t.Fatalf("expected [u1], got %v", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(tr.TypingUsers("c1")) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("typing state did not expire")
}

func TestTypingRefreshRestartsExpiry(t *testing.T) {
	tr := NewTracker(80 * time.Millisecond)
	defer tr.Close()

	tr.SetTyping("c1", "u1", true)
	time.Sleep(50 * time.Millisecond)
	tr.SetTyping("c1", "u1", true) // refresh
	time.Sleep(50 * time.Millisecond)
	if len(tr.TypingUsers("c1")) != 1 {
		t.Fatal("refreshed typing state expired too early")
	}
}

func TestTypingExplicitStopClearsImmediately(t *testing.T) {
	tr := NewTracker(time.Hour)
	defer tr.Close()

	tr.SetTyping("c1", "u1", true)
	tr.SetTyping("c1", "u2", true)
	tr.SetTyping("c1", "u1", false)
	got := tr.TypingUsers("c1")
	if len(got) != 1 || got[0] != "u2" {
		t.Fatalf("expected [u2], got %v", got)
	}
}

func TestTypingUsersScopedToConversation(t *testing.T) {
	tr := NewTracker(time.Hour)
	defer tr.Close()

	tr.SetTyping("c1", "u1", true)
	tr.SetTyping("c2", "u2", true)
	if got := tr.TypingUsers("c1"); len(got) != 1 || got[0] != "u1" {
		t.Fatalf("expected [u1], got %v", got)
	}
}

func TestNotifierThrottlesBurst(t *testing.T) {
	var mu sync.Mutex
	var signals []bool
	n := NewTypingNotifier(60*time.Millisecond, func(isTyping bool) {
		mu.Lock()
		signals = append(signals, isTyping)
		mu.Unlock()
	})
	defer n.Close()

	for i := 0; i < 10; i++ {
		n.Keystroke()
	}
	mu.Lock()
	if len(signals) != 1 || signals[0] != true {
		mu.Unlock()
		t.Fatalf("burst should emit exactly one start, got %v", signals)
	}
	mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := len(signals) == 2 && signals[1] == false
		mu.Unlock()
		if done {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected idle stop signal, got %v", signals)
}

func TestNotifierStopIsImmediateAndOnce(t *testing.T) {
	var mu sync.Mutex
	var signals []bool
	n := NewTypingNotifier(time.Hour, func(isTyping bool) {
		mu.Lock()
		signals = append(signals, isTyping)
		mu.Unlock()
	})
	defer n.Close()

	n.Keystroke()
	n.Stop()
	n.Stop() // already stopped: no second signal

	mu.Lock()
	defer mu.Unlock()
	if len(signals) != 2 || signals[0] != true || signals[1] != false {
		t.Fatalf("expected [start stop], got %v", signals)
	}
}
