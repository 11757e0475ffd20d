package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/glowbook/chat-bridge/channel"
	"github.com/glowbook/chat-bridge/db"
	"github.com/glowbook/chat-bridge/inbox"
	"github.com/glowbook/chat-bridge/models"
	"github.com/glowbook/chat-bridge/presence"
	"github.com/glowbook/chat-bridge/reconcile"
)

// PlatformAPI is the REST collaborator surface the service depends on
type PlatformAPI interface {
	reconcile.HistorySource
	inbox.SummarySource
}

// Dialer opens a fresh channel session. The service re-dials through it
// after a transport drop.
type Dialer func(ctx context.Context) (*channel.Client, error)

// Service ties the channel, the reconciliation engine, the typing
// signaler, and the inbox synchronizer together, and mirrors traffic into
// the local store
type Service interface {
	Status() models.Status
	IsConnected() bool
	Conversations(ctx context.Context, filter inbox.Filter) []models.Conversation
	Messages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	OpenConversation(ctx context.Context, conversationID string) error
	SendMessage(ctx context.Context, body string, contentType models.ContentType) (models.Message, error)
	ResendMessage(ctx context.Context, correlationID string) (models.Message, error)
	MarkRead(ctx context.Context, conversationID string)
	Keystroke()
	TypingPeers() []string
	Close() error
}

// Options carries the session scope and tuning knobs
type Options struct {
	Role           models.Role
	SalonID        string
	UserID         string
	TypingDebounce time.Duration
	TypingExpiry   time.Duration
	PendingTimeout time.Duration
	ReconnectPause time.Duration
}

type service struct {
	opts  Options
	dial  Dialer
	api   PlatformAPI
	store db.DB

	engine   *reconcile.Engine
	signaler *presence.Signaler
	inbox    *inbox.Synchronizer

	mu     sync.RWMutex
	client *channel.Client
	closed bool

	done chan struct{}
}

// NewService dials the channel, wires the engines, and starts the
// background sweeps. The returned service owns the channel client.
func NewService(ctx context.Context, dial Dialer, api PlatformAPI, store db.DB, opts Options) (Service, error) {
	s := &service{
		opts:  opts,
		dial:  dial,
		api:   api,
		store: store,
		done:  make(chan struct{}),
	}

	s.engine = reconcile.NewEngine(s, api, opts.UserID, opts.Role, opts.PendingTimeout)
	s.engine.OnTraffic(s.onTraffic)
	s.signaler = presence.NewSignaler(s, opts.TypingDebounce, opts.TypingExpiry)
	s.inbox = inbox.NewSynchronizer(api, opts.Role, opts.SalonID)

	client, err := dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	s.setClient(client)

	if err := s.refreshInbox(ctx); err != nil {
		log.Printf("initial inbox refresh: %v", err)
	}

	go s.sweepPending()

	return s, nil
}

// Emit implements channel.Emitter against whichever client session is
// currently live
func (s *service) Emit(evt channel.Event) error {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()

	if client == nil {
		return channel.ErrNotConnected
	}
	return client.Emit(evt)
}

// Status returns the current state of the bridge client
func (s *service) Status() models.Status {
	return models.Status{
		Connected:          s.IsConnected(),
		Role:               s.opts.Role,
		SalonID:            s.opts.SalonID,
		ActiveConversation: s.engine.Active(),
	}
}

// IsConnected reports whether the channel is open
func (s *service) IsConnected() bool {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()

	return client != nil && client.IsConnected()
}

// Conversations returns the inbox summaries matching the filter
func (s *service) Conversations(_ context.Context, filter inbox.Filter) []models.Conversation {
	return s.inbox.Conversations(filter)
}

// Messages returns the visible list for the active conversation, or the
// mirrored history for any other one
func (s *service) Messages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if conversationID == s.engine.Active() {
		messages := s.engine.Messages()
		if limit > 0 && len(messages) > limit {
			// Same window as the mirror: the newest entries, ascending
			messages = messages[len(messages)-limit:]
		}
		return messages, nil
	}

	messages, err := s.store.GetMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %v", err)
	}

	// The mirror returns newest first; the visible list is ascending
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].SentAt.Before(messages[j].SentAt)
	})

	return messages, nil
}

// OpenConversation joins a conversation for live updates and loads its
// history
func (s *service) OpenConversation(ctx context.Context, conversationID string) error {
	s.signaler.SetConversation(conversationID)

	if err := s.engine.SetActive(ctx, conversationID); err != nil {
		return err
	}

	for _, msg := range s.engine.Messages() {
		if err := s.store.StoreMessage(ctx, msg); err != nil {
			log.Printf("mirror message %s: %v", msg.ID, err)
		}
	}

	return nil
}

// SendMessage sends to the active conversation with an optimistic local
// append, and stops any typing session
func (s *service) SendMessage(ctx context.Context, body string, contentType models.ContentType) (models.Message, error) {
	s.signaler.MessageSent()

	msg, err := s.engine.Send(body, contentType)
	if err != nil {
		return msg, err
	}

	if storeErr := s.store.StoreMessage(ctx, msg); storeErr != nil {
		log.Printf("mirror pending message: %v", storeErr)
	}

	return msg, nil
}

// ResendMessage re-emits a stuck message with its original correlation id
func (s *service) ResendMessage(ctx context.Context, correlationID string) (models.Message, error) {
	msg, err := s.engine.Resend(correlationID)
	if err != nil {
		return msg, err
	}

	if storeErr := s.store.StoreMessage(ctx, msg); storeErr != nil {
		log.Printf("mirror resent message: %v", storeErr)
	}

	return msg, nil
}

// MarkRead zeroes the viewer's unread counter and notifies the server
func (s *service) MarkRead(ctx context.Context, conversationID string) {
	s.inbox.MarkRead(ctx, conversationID)
}

// Keystroke records local typing activity for the active conversation
func (s *service) Keystroke() {
	s.signaler.Keystroke()
}

// TypingPeers lists peers currently composing in the active conversation
func (s *service) TypingPeers() []string {
	return s.signaler.TypingPeers()
}

// Close tears down the channel and background sweeps. The store stays
// open; its owner closes it.
func (s *service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	client := s.client
	s.client = nil
	s.mu.Unlock()

	close(s.done)
	if client != nil {
		client.Close()
	}

	return nil
}

func (s *service) setClient(client *channel.Client) {
	client.OnEvent(channel.EventMessageNew, s.handleMessageNew)
	client.OnEvent(channel.EventMessageAck, s.handleMessageAck)
	client.OnEvent(channel.EventTypingUpdate, s.handleTypingUpdate)
	client.OnEvent(channel.EventConversationUpdate, s.handleConversationUpdate)
	client.OnDisconnect(s.handleDisconnect)

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
}

func (s *service) handleMessageNew(evt channel.Event) {
	var payload channel.MessagePayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		log.Printf("decode message:new: %v", err)
		return
	}

	s.engine.OnServerMessage(payload.Message, payload.CorrelationID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mirrored := payload.Message
	mirrored.Status = models.StatusConfirmed
	mirrored.CorrelationID = payload.CorrelationID
	if err := s.store.StoreMessage(ctx, mirrored); err != nil {
		log.Printf("mirror message %s: %v", mirrored.ID, err)
	}
}

func (s *service) handleMessageAck(evt channel.Event) {
	var payload channel.AckPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		log.Printf("decode message:ack: %v", err)
		return
	}

	s.engine.OnAck(payload.CorrelationID, payload.ServerID)
}

func (s *service) handleTypingUpdate(evt channel.Event) {
	var payload channel.TypingPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		log.Printf("decode typing:update: %v", err)
		return
	}

	s.signaler.OnPeerUpdate(payload.PeerID, payload.IsTyping)
}

func (s *service) handleConversationUpdate(channel.Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.refreshInbox(ctx); err != nil {
			log.Printf("inbox refresh: %v", err)
		}
	}()
}

// onTraffic keeps summaries current after every message event, own or
// peer's, including conversations not currently joined
func (s *service) onTraffic(string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.refreshInbox(ctx); err != nil {
			log.Printf("inbox refresh: %v", err)
		}
	}()
}

func (s *service) refreshInbox(ctx context.Context) error {
	if err := s.inbox.Refresh(ctx); err != nil {
		return err
	}

	for _, conv := range s.inbox.Conversations(inbox.Filter{}) {
		if err := s.store.StoreConversation(ctx, conv); err != nil {
			log.Printf("mirror conversation %s: %v", conv.ID, err)
		}
	}

	return nil
}

// handleDisconnect re-dials after a pause and restores the session scope.
// There is no implicit resume; the active conversation is re-joined and
// its history reloaded.
func (s *service) handleDisconnect() {
	log.Println("channel dropped, reconnecting...")

	go func() {
		for {
			select {
			case <-s.done:
				return
			case <-time.After(s.opts.ReconnectPause):
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			client, err := s.dial(ctx)
			cancel()
			if err != nil {
				log.Printf("reconnect: %v", err)
				continue
			}

			s.setClient(client)

			ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
			if active := s.engine.Active(); active != "" {
				if err := s.engine.SetActive(ctx, active); err != nil {
					log.Printf("rejoin %s: %v", active, err)
				}
			}
			if err := s.refreshInbox(ctx); err != nil {
				log.Printf("inbox refresh: %v", err)
			}
			cancel()

			log.Println("channel reconnected")
			return
		}
	}()
}

// sweepPending fails messages stuck past the confirmation window so the
// client can offer a manual resend
func (s *service) sweepPending() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			for _, corr := range s.engine.ExpireStalePending() {
				log.Printf("message %s expired without confirmation", corr)
			}
		}
	}
}
