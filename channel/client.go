package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/glowbook/chat-bridge/models"
)

const (
	// Maximum time to wait for a pong from the server
	pongWait = 60 * time.Second

	// Send ping frames to the server with this interval
	pingPeriod = (pongWait * 9) / 10

	// Maximum size of an inbound frame
	maxFrameSize = 512 * 1024 // 512KB

	// Buffer size for outbound frames
	sendBufferSize = 256

	writeWait = 10 * time.Second
)

// ErrNotConnected is returned when emitting on a closed or dropped channel
var ErrNotConnected = errors.New("channel: not connected")

// Emitter is the outbound half of the channel. The reconciliation engine
// and the typing signaler depend on this interface rather than the
// concrete client so tests can substitute a fake.
type Emitter interface {
	Emit(evt Event) error
}

// Config holds the session scope used to open the channel
type Config struct {
	URL     string
	Token   string
	Role    models.Role
	SalonID string
	UserID  string
}

// Client maintains one persistent websocket channel per session
type Client struct {
	conn *websocket.Conn
	send chan []byte

	handlerMu    sync.RWMutex
	handlers     map[EventType][]func(Event)
	onDisconnect func()

	mu        sync.RWMutex
	connected bool

	done      chan struct{}
	closeOnce sync.Once
}

// TokenSource supplies a chat token when none is pre-configured
type TokenSource interface {
	ChatToken(ctx context.Context) (string, error)
}

// Connect resolves the chat token if cfg.Token is empty and dials. A token
// fetch failure leaves the client disconnected; retrying is the caller's
// decision.
func Connect(ctx context.Context, cfg Config, tokens TokenSource) (*Client, error) {
	if cfg.Token == "" {
		if tokens == nil {
			return nil, errors.New("channel: no chat token and no token source")
		}
		token, err := tokens.ChatToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("channel: fetch chat token: %w", err)
		}
		cfg.Token = token
	}

	return Dial(cfg)
}

// Dial opens the channel described by cfg and starts the read and write
// pumps. The caller owns the returned client and must Close it.
func Dial(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("channel: missing chat token")
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("channel: invalid socket URL: %w", err)
	}

	q := u.Query()
	q.Set("role", string(cfg.Role))
	q.Set("salon_id", cfg.SalonID)
	q.Set("user_id", cfg.UserID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.Token)

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("channel: dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("channel: dial failed: %w", err)
	}

	c := &Client{
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		handlers:  make(map[EventType][]func(Event)),
		connected: true,
		done:      make(chan struct{}),
	}

	go c.readPump()
	go c.writePump()

	return c, nil
}

// OnEvent registers a handler for a server event type. Handlers run on the
// read pump goroutine and must not block.
func (c *Client) OnEvent(t EventType, fn func(Event)) {
	c.handlerMu.Lock()
	c.handlers[t] = append(c.handlers[t], fn)
	c.handlerMu.Unlock()
}

// OnDisconnect registers a handler invoked once when the transport drops
func (c *Client) OnDisconnect(fn func()) {
	c.handlerMu.Lock()
	c.onDisconnect = fn
	c.handlerMu.Unlock()
}

// IsConnected reports whether the transport is open
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Emit queues an event for transmission
func (c *Client) Emit(evt Event) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	raw, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("channel: marshal event: %w", err)
	}

	select {
	case c.send <- raw:
		return nil
	case <-c.done:
		return ErrNotConnected
	}
}

// Join subscribes this client to live updates for one conversation.
// Only one conversation is joined at a time; the caller emits Leave for
// the previous scope first.
func (c *Client) Join(conversationID string) error {
	return c.Emit(Event{Type: EventConversationJoin, ConversationID: conversationID})
}

// Leave unsubscribes from a conversation's live updates
func (c *Client) Leave(conversationID string) error {
	return c.Emit(Event{Type: EventConversationLeave, ConversationID: conversationID})
}

// Close tears the channel down deterministically
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		close(c.done)
		c.conn.Close()
	})
}

// readPump dispatches inbound frames to registered handlers
func (c *Client) readPump() {
	defer c.dropped()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("channel: unexpected close: %v", err)
			}
			return
		}

		var evt Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			log.Printf("channel: unmarshal event: %v", err)
			continue
		}

		c.handlerMu.RLock()
		handlers := c.handlers[evt.Type]
		c.handlerMu.RUnlock()

		if len(handlers) == 0 {
			log.Printf("channel: unhandled event type: %s", evt.Type)
			continue
		}

		for _, fn := range handlers {
			fn(evt)
		}
	}
}

// writePump sends queued frames and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				log.Printf("channel: write: %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// dropped flips the status to disconnected and notifies once. Close moves
// the client to the same state without firing the handler twice.
func (c *Client) dropped() {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	c.conn.Close()

	if !wasConnected {
		return
	}

	c.handlerMu.RLock()
	fn := c.onDisconnect
	c.handlerMu.RUnlock()

	if fn != nil {
		fn()
	}
}
