package presence

import (
	"log"
	"sync"
	"time"

	"github.com/glowbook/chat-bridge/channel"
)

// Signaler emits local typing transitions with an idle debounce and
// tracks peer typing state with a bounded expiry, in case a stop event is
// lost on the wire. Typing flow is independent of message reconciliation.
type Signaler struct {
	mu sync.Mutex

	emitter  channel.Emitter
	debounce time.Duration
	expiry   time.Duration

	conversationID string
	typing         bool
	idleGen        int

	peers map[string]*peerState
}

type peerState struct {
	typing    bool
	expireGen int
}

// NewSignaler creates a typing signaler. debounce is the idle window
// after the last keystroke before typing:stop is emitted; expiry bounds
// how long a peer's indicator survives without a stop event.
func NewSignaler(emitter channel.Emitter, debounce, expiry time.Duration) *Signaler {
	return &Signaler{
		emitter:  emitter,
		debounce: debounce,
		expiry:   expiry,
		peers:    make(map[string]*peerState),
	}
}

// SetConversation rebinds the signaler to a conversation, clearing local
// and peer state. An in-flight typing session for the previous
// conversation is stopped first.
func (s *Signaler) SetConversation(conversationID string) {
	s.mu.Lock()
	previous := s.conversationID
	wasTyping := s.typing
	s.conversationID = conversationID
	s.typing = false
	s.idleGen++
	s.peers = make(map[string]*peerState)
	s.mu.Unlock()

	if wasTyping && previous != "" {
		s.emitStop(previous)
	}
}

// Keystroke records local typing activity: emits typing:start once per
// session and re-arms the idle timer. The previous timer is invalidated
// on every call so a stale stop can never fire after a new session began.
func (s *Signaler) Keystroke() {
	s.mu.Lock()

	if s.conversationID == "" {
		s.mu.Unlock()
		return
	}

	conversationID := s.conversationID
	starting := !s.typing
	s.typing = true
	s.idleGen++
	gen := s.idleGen
	s.mu.Unlock()

	if starting {
		if err := s.emitter.Emit(channel.Event{Type: channel.EventTypingStart, ConversationID: conversationID}); err != nil {
			log.Printf("presence: typing start: %v", err)
		}
	}

	time.AfterFunc(s.debounce, func() {
		s.idleTimeout(gen, conversationID)
	})
}

// MessageSent stops the typing session immediately and cancels the idle
// timer
func (s *Signaler) MessageSent() {
	s.mu.Lock()

	if !s.typing {
		s.mu.Unlock()
		return
	}

	conversationID := s.conversationID
	s.typing = false
	s.idleGen++
	s.mu.Unlock()

	s.emitStop(conversationID)
}

// OnPeerUpdate records a peer's typing state from a typing:update event.
// A typing indicator expires on its own after the configured bound.
func (s *Signaler) OnPeerUpdate(peerID string, isTyping bool) {
	s.mu.Lock()

	state, ok := s.peers[peerID]
	if !ok {
		state = &peerState{}
		s.peers[peerID] = state
	}

	state.typing = isTyping
	state.expireGen++
	gen := state.expireGen
	s.mu.Unlock()

	if !isTyping {
		return
	}

	time.AfterFunc(s.expiry, func() {
		s.expirePeer(peerID, gen)
	})
}

// PeerTyping reports whether the given peer is currently composing
func (s *Signaler) PeerTyping(peerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.peers[peerID]
	return ok && state.typing
}

// TypingPeers lists every peer currently composing
func (s *Signaler) TypingPeers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var peers []string
	for id, state := range s.peers {
		if state.typing {
			peers = append(peers, id)
		}
	}
	return peers
}

func (s *Signaler) idleTimeout(gen int, conversationID string) {
	s.mu.Lock()
	if gen != s.idleGen || !s.typing {
		s.mu.Unlock()
		return
	}
	s.typing = false
	s.mu.Unlock()

	s.emitStop(conversationID)
}

func (s *Signaler) expirePeer(peerID string, gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.peers[peerID]
	if !ok || state.expireGen != gen {
		return
	}
	state.typing = false
}

func (s *Signaler) emitStop(conversationID string) {
	if err := s.emitter.Emit(channel.Event{Type: channel.EventTypingStop, ConversationID: conversationID}); err != nil {
		log.Printf("presence: typing stop: %v", err)
	}
}
