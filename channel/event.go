package channel

import (
	"encoding/json"
	"time"

	"github.com/glowbook/chat-bridge/models"
)

// EventType defines the kind of frame exchanged over the channel
type EventType string

// Client-to-server events
const (
	EventConversationJoin  EventType = "conversation:join"
	EventConversationLeave EventType = "conversation:leave"
	EventMessageSend       EventType = "message:send"
	EventTypingStart       EventType = "typing:start"
	EventTypingStop        EventType = "typing:stop"
)

// Server-to-client events
const (
	EventMessageNew         EventType = "message:new"
	EventMessageAck         EventType = "message:ack"
	EventTypingUpdate       EventType = "typing:update"
	EventConversationUpdate EventType = "conversation:update"
)

// Event is the JSON envelope for every frame on the channel
type Event struct {
	Type           EventType       `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	SenderID       string          `json:"sender_id,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// SendPayload carries an outbound message on a message:send event
type SendPayload struct {
	CorrelationID string             `json:"correlation_id"`
	Body          string             `json:"body"`
	ContentType   models.ContentType `json:"content_type"`
}

// AckPayload maps a correlation id to its server-assigned id on a
// message:ack event
type AckPayload struct {
	CorrelationID string `json:"correlation_id"`
	ServerID      string `json:"server_id"`
}

// MessagePayload is the full message carried by a message:new event.
// CorrelationID is set when the message originated from this client.
type MessagePayload struct {
	Message       models.Message `json:"message"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// TypingPayload carries a peer's composing state on a typing:update event
type TypingPayload struct {
	PeerID   string `json:"peer_id"`
	IsTyping bool   `json:"is_typing"`
}

// NewEvent builds an event with the timestamp set
func NewEvent(t EventType, conversationID string, payload any) (Event, error) {
	evt := Event{
		Type:           t,
		ConversationID: conversationID,
		Timestamp:      time.Now(),
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		evt.Payload = raw
	}

	return evt, nil
}
