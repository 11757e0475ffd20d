package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/glowbook/chat-bridge/channel"
)

type fakeEmitter struct {
	mu     sync.Mutex
	events []channel.Event
}

func (f *fakeEmitter) Emit(evt channel.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeEmitter) count(t channel.EventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, evt := range f.events {
		if evt.Type == t {
			n++
		}
	}
	return n
}

func (f *fakeEmitter) last() (channel.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return channel.Event{}, false
	}
	return f.events[len(f.events)-1], true
}

const (
	testDebounce = 30 * time.Millisecond
	testExpiry   = 60 * time.Millisecond
)

func newTestSignaler(emitter *fakeEmitter) *Signaler {
	s := NewSignaler(emitter, testDebounce, testExpiry)
	s.SetConversation("conv-1")
	return s
}

func TestKeystrokeEmitsStartOncePerSession(t *testing.T) {
	emitter := &fakeEmitter{}
	signaler := newTestSignaler(emitter)

	signaler.Keystroke()
	signaler.Keystroke()
	signaler.Keystroke()

	if got := emitter.count(channel.EventTypingStart); got != 1 {
		t.Fatalf("expected 1 typing:start, got %d", got)
	}
}

func TestIdleSilenceEmitsExactlyOneStop(t *testing.T) {
	emitter := &fakeEmitter{}
	signaler := newTestSignaler(emitter)

	signaler.Keystroke()
	signaler.Keystroke()

	time.Sleep(3 * testDebounce)

	if got := emitter.count(channel.EventTypingStop); got != 1 {
		t.Fatalf("expected exactly 1 typing:stop after silence, got %d", got)
	}
	if got := emitter.count(channel.EventTypingStart); got != 1 {
		t.Fatalf("expected 1 typing:start, got %d", got)
	}
}

func TestKeystrokeExtendsIdleWindow(t *testing.T) {
	emitter := &fakeEmitter{}
	signaler := newTestSignaler(emitter)

	signaler.Keystroke()
	time.Sleep(testDebounce / 2)
	signaler.Keystroke()
	time.Sleep(testDebounce / 2)

	if got := emitter.count(channel.EventTypingStop); got != 0 {
		t.Fatalf("expected no stop while still typing, got %d", got)
	}

	time.Sleep(2 * testDebounce)

	if got := emitter.count(channel.EventTypingStop); got != 1 {
		t.Fatalf("expected 1 stop after the extended window, got %d", got)
	}
}

func TestMessageSentStopsImmediately(t *testing.T) {
	emitter := &fakeEmitter{}
	signaler := newTestSignaler(emitter)

	signaler.Keystroke()
	signaler.MessageSent()

	if got := emitter.count(channel.EventTypingStop); got != 1 {
		t.Fatalf("expected immediate stop on send, got %d", got)
	}

	// The cancelled idle timer must not fire a second stop
	time.Sleep(3 * testDebounce)
	if got := emitter.count(channel.EventTypingStop); got != 1 {
		t.Fatalf("expected no duplicate stop from stale timer, got %d", got)
	}
}

func TestStaleTimerDoesNotStopNewSession(t *testing.T) {
	emitter := &fakeEmitter{}
	signaler := newTestSignaler(emitter)

	signaler.Keystroke()
	signaler.MessageSent()

	// New session begins before the first session's timer would have fired
	signaler.Keystroke()
	time.Sleep(testDebounce / 2)

	if got := emitter.count(channel.EventTypingStart); got != 2 {
		t.Fatalf("expected a second typing:start, got %d", got)
	}
	if got := emitter.count(channel.EventTypingStop); got != 1 {
		t.Fatalf("expected only the explicit stop so far, got %d", got)
	}

	time.Sleep(2 * testDebounce)
	if got := emitter.count(channel.EventTypingStop); got != 2 {
		t.Fatalf("expected the new session to stop once, got %d", got)
	}
}

func TestMessageSentWithoutTypingIsNoop(t *testing.T) {
	emitter := &fakeEmitter{}
	signaler := newTestSignaler(emitter)

	signaler.MessageSent()

	if got := emitter.count(channel.EventTypingStop); got != 0 {
		t.Fatalf("expected no stop without a typing session, got %d", got)
	}
}

func TestSetConversationStopsPreviousSession(t *testing.T) {
	emitter := &fakeEmitter{}
	signaler := newTestSignaler(emitter)

	signaler.Keystroke()
	signaler.SetConversation("conv-2")

	last, ok := emitter.last()
	if !ok || last.Type != channel.EventTypingStop || last.ConversationID != "conv-1" {
		t.Fatalf("expected typing:stop for conv-1, got %+v", last)
	}
}

func TestPeerTypingTracksUpdates(t *testing.T) {
	signaler := newTestSignaler(&fakeEmitter{})

	signaler.OnPeerUpdate("cust-1", true)
	if !signaler.PeerTyping("cust-1") {
		t.Fatal("expected cust-1 typing")
	}

	signaler.OnPeerUpdate("cust-1", false)
	if signaler.PeerTyping("cust-1") {
		t.Fatal("expected cust-1 stopped")
	}
}

func TestPeerIndicatorExpiresWithoutStop(t *testing.T) {
	signaler := newTestSignaler(&fakeEmitter{})

	signaler.OnPeerUpdate("cust-1", true)
	time.Sleep(2 * testExpiry)

	if signaler.PeerTyping("cust-1") {
		t.Fatal("expected stale indicator cleared after expiry")
	}
}

func TestPeerExpiryInvalidatedByFreshUpdate(t *testing.T) {
	signaler := newTestSignaler(&fakeEmitter{})

	signaler.OnPeerUpdate("cust-1", true)
	time.Sleep(testExpiry / 2)
	signaler.OnPeerUpdate("cust-1", true)
	time.Sleep(3 * testExpiry / 4)

	if !signaler.PeerTyping("cust-1") {
		t.Fatal("expected fresh update to extend the indicator")
	}
}

func TestTypingPeersListsOnlyActive(t *testing.T) {
	signaler := newTestSignaler(&fakeEmitter{})

	signaler.OnPeerUpdate("cust-1", true)
	signaler.OnPeerUpdate("cust-2", true)
	signaler.OnPeerUpdate("cust-2", false)

	peers := signaler.TypingPeers()
	if len(peers) != 1 || peers[0] != "cust-1" {
		t.Fatalf("expected only cust-1 typing, got %v", peers)
	}
}
