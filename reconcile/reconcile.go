package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glowbook/chat-bridge/channel"
	"github.com/glowbook/chat-bridge/models"
)

// ErrNoActiveConversation is returned when sending without a joined
// conversation
var ErrNoActiveConversation = errors.New("reconcile: no active conversation")

// ErrUnknownCorrelation is returned when resending a message the engine
// does not track
var ErrUnknownCorrelation = errors.New("reconcile: unknown correlation id")

// HistorySource fetches the confirmed message history for a conversation
type HistorySource interface {
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

// Engine owns the ordered message list for the active conversation. It
// merges three event sources into one consistent sequence: the initial
// history load, locally-originated sends, and server-pushed events. All
// mutations funnel through its exported methods; nothing else writes the
// list.
type Engine struct {
	mu sync.Mutex

	emitter channel.Emitter
	history HistorySource

	selfID   string
	selfRole models.Role

	active   string
	messages []models.Message
	byCorr   map[string]int      // correlation id -> index of pending/failed entry
	retired  map[string]string   // correlation id -> server id after confirmation
	seen     map[string]struct{} // server ids already in the list

	pendingTimeout time.Duration
	now            func() time.Time

	onTraffic func(conversationID string)
}

// NewEngine creates a reconciliation engine bound to one channel emitter
func NewEngine(emitter channel.Emitter, history HistorySource, selfID string, selfRole models.Role, pendingTimeout time.Duration) *Engine {
	return &Engine{
		emitter:        emitter,
		history:        history,
		selfID:         selfID,
		selfRole:       selfRole,
		byCorr:         make(map[string]int),
		retired:        make(map[string]string),
		seen:           make(map[string]struct{}),
		pendingTimeout: pendingTimeout,
		now:            time.Now,
	}
}

// OnTraffic registers a hook fired for every message event observed, with
// the conversation it belongs to. The inbox synchronizer uses it to keep
// summaries current. The hook runs outside the engine's lock.
func (e *Engine) OnTraffic(fn func(conversationID string)) {
	e.mu.Lock()
	e.onTraffic = fn
	e.mu.Unlock()
}

// Active returns the conversation currently joined for live updates
func (e *Engine) Active() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// SetActive switches the conversation joined for live updates: leaves the
// previous scope, joins the new one, and replaces the local list with the
// conversation's history. Pending state for the previous conversation is
// discarded; events for it still reach the traffic hook but never this list.
// Re-joining the current conversation, as the reconnect path does, keeps
// unconfirmed sends so they survive the history reload.
func (e *Engine) SetActive(ctx context.Context, conversationID string) error {
	e.mu.Lock()
	previous := e.active
	e.active = conversationID
	if previous != conversationID {
		e.messages = nil
		e.byCorr = make(map[string]int)
		e.retired = make(map[string]string)
		e.seen = make(map[string]struct{})
	}
	e.mu.Unlock()

	if previous != "" && previous != conversationID {
		if err := e.emitter.Emit(channel.Event{Type: channel.EventConversationLeave, ConversationID: previous}); err != nil {
			log.Printf("reconcile: leave %s: %v", previous, err)
		}
	}

	if conversationID == "" {
		return nil
	}

	if err := e.emitter.Emit(channel.Event{Type: channel.EventConversationJoin, ConversationID: conversationID}); err != nil {
		log.Printf("reconcile: join %s: %v", conversationID, err)
	}

	return e.LoadHistory(ctx)
}

// LoadHistory replaces the confirmed portion of the local list with the
// server's view of the active conversation. Unconfirmed local sends are
// re-appended after the fetched history, minus any the server already
// persisted under their correlation id. Calling it twice yields the same
// visible list.
func (e *Engine) LoadHistory(ctx context.Context) error {
	e.mu.Lock()
	conversationID := e.active
	e.mu.Unlock()

	if conversationID == "" {
		return ErrNoActiveConversation
	}

	history, err := e.history.ListMessages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("reconcile: load history: %w", err)
	}

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].SentAt.Before(history[j].SentAt)
	})

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != conversationID {
		// Switched away while the fetch was in flight
		return nil
	}

	var carried []models.Message
	for _, msg := range e.messages {
		if !msg.Confirmed() {
			carried = append(carried, msg)
		}
	}

	e.messages = make([]models.Message, 0, len(history)+len(carried))
	e.byCorr = make(map[string]int)
	e.seen = make(map[string]struct{})
	for _, msg := range history {
		msg.Status = models.StatusConfirmed
		e.messages = append(e.messages, msg)
		e.seen[msg.ID] = struct{}{}
		if msg.CorrelationID != "" {
			e.retired[msg.CorrelationID] = msg.ID
		}
	}
	for _, msg := range carried {
		if _, ok := e.retired[msg.CorrelationID]; ok {
			// The send reached the server before the connection dropped
			continue
		}
		e.byCorr[msg.CorrelationID] = len(e.messages)
		e.messages = append(e.messages, msg)
	}

	return nil
}

// Send appends an optimistic pending message and emits it over the
// channel. The caller sees the message immediately; confirmation arrives
// later through OnServerMessage or OnAck.
func (e *Engine) Send(body string, contentType models.ContentType) (models.Message, error) {
	e.mu.Lock()

	if e.active == "" {
		e.mu.Unlock()
		return models.Message{}, ErrNoActiveConversation
	}

	msg := models.Message{
		CorrelationID:  uuid.NewString(),
		ConversationID: e.active,
		SenderID:       e.selfID,
		SenderRole:     e.selfRole,
		ContentType:    contentType,
		Body:           body,
		SentAt:         e.now(),
		Status:         models.StatusPending,
	}

	e.messages = append(e.messages, msg)
	e.byCorr[msg.CorrelationID] = len(e.messages) - 1
	e.mu.Unlock()

	if err := e.emitSend(msg); err != nil {
		e.mu.Lock()
		if idx, ok := e.byCorr[msg.CorrelationID]; ok {
			e.messages[idx].Status = models.StatusFailed
		}
		e.mu.Unlock()
		return msg, err
	}

	return msg, nil
}

// Resend re-emits a pending or failed message with its original
// correlation id, restarting its confirmation window
func (e *Engine) Resend(correlationID string) (models.Message, error) {
	e.mu.Lock()

	idx, ok := e.byCorr[correlationID]
	if !ok {
		e.mu.Unlock()
		return models.Message{}, ErrUnknownCorrelation
	}

	e.messages[idx].Status = models.StatusPending
	e.messages[idx].SentAt = e.now()
	msg := e.messages[idx]
	e.mu.Unlock()

	if err := e.emitSend(msg); err != nil {
		e.mu.Lock()
		if i, ok := e.byCorr[correlationID]; ok {
			e.messages[i].Status = models.StatusFailed
		}
		e.mu.Unlock()
		return msg, err
	}

	return msg, nil
}

func (e *Engine) emitSend(msg models.Message) error {
	evt, err := channel.NewEvent(channel.EventMessageSend, msg.ConversationID, channel.SendPayload{
		CorrelationID: msg.CorrelationID,
		Body:          msg.Body,
		ContentType:   msg.ContentType,
	})
	if err != nil {
		return fmt.Errorf("reconcile: encode send: %w", err)
	}

	return e.emitter.Emit(evt)
}

// OnServerMessage merges an inbound message:new event. Own pending
// messages are reconciled in place by correlation id; a message already
// present by server id, or already reconciled from a retired correlation
// id, is never re-inserted. Messages for other conversations only touch
// the traffic hook.
func (e *Engine) OnServerMessage(msg models.Message, correlationID string) {
	e.mu.Lock()

	if msg.ConversationID != e.active {
		hook := e.onTraffic
		e.mu.Unlock()
		if hook != nil {
			hook(msg.ConversationID)
		}
		return
	}

	if correlationID != "" {
		if idx, ok := e.byCorr[correlationID]; ok {
			e.confirmLocked(idx, correlationID, msg)
			e.finishLocked(msg.ConversationID)
			return
		}
		if _, ok := e.retired[correlationID]; ok {
			// The lightweight ack won the race; the echo is a no-op
			e.mu.Unlock()
			return
		}
	}

	if _, ok := e.seen[msg.ID]; ok {
		e.mu.Unlock()
		return
	}

	msg.Status = models.StatusConfirmed
	e.messages = append(e.messages, msg)
	e.seen[msg.ID] = struct{}{}
	e.normalizeLocked()
	e.finishLocked(msg.ConversationID)
}

// OnAck swaps a pending message's identifier for the server-confirmed one
// without altering its position or content. Whichever of ack and echo
// arrives first wins; the second is a no-op.
func (e *Engine) OnAck(correlationID, serverID string) {
	e.mu.Lock()

	idx, ok := e.byCorr[correlationID]
	if !ok {
		e.mu.Unlock()
		return
	}

	now := e.now()
	e.messages[idx].ID = serverID
	e.messages[idx].Status = models.StatusConfirmed
	e.messages[idx].DeliveredAt = &now
	conversationID := e.messages[idx].ConversationID

	delete(e.byCorr, correlationID)
	e.retired[correlationID] = serverID
	e.seen[serverID] = struct{}{}

	e.finishLocked(conversationID)
}

// ExpireStalePending marks pending messages older than the confirmation
// window as failed and returns their correlation ids
func (e *Engine) ExpireStalePending() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-e.pendingTimeout)

	var expired []string
	for corr, idx := range e.byCorr {
		if e.messages[idx].Status != models.StatusPending {
			continue
		}
		if e.messages[idx].SentAt.After(cutoff) {
			continue
		}
		e.messages[idx].Status = models.StatusFailed
		expired = append(expired, corr)
	}

	return expired
}

// Messages returns a copy of the visible list for the active conversation
func (e *Engine) Messages() []models.Message {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// confirmLocked replaces a pending entry in place with its server echo
func (e *Engine) confirmLocked(idx int, correlationID string, msg models.Message) {
	delivered := msg.DeliveredAt
	if delivered == nil {
		now := e.now()
		delivered = &now
	}

	msg.CorrelationID = correlationID
	msg.Status = models.StatusConfirmed
	msg.DeliveredAt = delivered
	e.messages[idx] = msg

	delete(e.byCorr, correlationID)
	e.retired[correlationID] = msg.ID
	e.seen[msg.ID] = struct{}{}

	e.normalizeLocked()
}

// normalizeLocked restores timestamp order among confirmed messages when
// an out-of-order confirmation arrives, keeping unconfirmed messages
// appended after all confirmed ones in send order
func (e *Engine) normalizeLocked() {
	ordered := true
	var lastConfirmed time.Time
	for _, msg := range e.messages {
		if !msg.Confirmed() {
			continue
		}
		if msg.SentAt.Before(lastConfirmed) {
			ordered = false
			break
		}
		lastConfirmed = msg.SentAt
	}
	if ordered {
		return
	}

	confirmed := make([]models.Message, 0, len(e.messages))
	tail := make([]models.Message, 0)
	for _, msg := range e.messages {
		if msg.Confirmed() {
			confirmed = append(confirmed, msg)
		} else {
			tail = append(tail, msg)
		}
	}

	sort.SliceStable(confirmed, func(i, j int) bool {
		return confirmed[i].SentAt.Before(confirmed[j].SentAt)
	})

	e.messages = append(confirmed, tail...)
	for i, msg := range e.messages {
		if !msg.Confirmed() && msg.CorrelationID != "" {
			e.byCorr[msg.CorrelationID] = i
		}
	}
}

// finishLocked releases the lock and fires the traffic hook
func (e *Engine) finishLocked(conversationID string) {
	hook := e.onTraffic
	e.mu.Unlock()
	if hook != nil {
		hook(conversationID)
	}
}
