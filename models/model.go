package models

import "time"

// Role identifies which side of a conversation a participant is on
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
)

// ContentType is the kind of payload a message carries
type ContentType string

const (
	ContentText   ContentType = "text"
	ContentImage  ContentType = "image"
	ContentFile   ContentType = "file"
	ContentSystem ContentType = "system"
)

// DeliveryStatus tracks a message from optimistic send to confirmation
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusConfirmed DeliveryStatus = "confirmed"
	StatusFailed    DeliveryStatus = "failed"
)

// Message represents a single chat event within a conversation.
// A pending message is identified by its correlation id until the server
// confirms it; after that the server id is authoritative and the
// correlation id is retired.
type Message struct {
	ID             string         `json:"id"`
	CorrelationID  string         `json:"correlation_id,omitempty"`
	ConversationID string         `json:"conversation_id"`
	SenderID       string         `json:"sender_id"`
	SenderRole     Role           `json:"sender_role"`
	ContentType    ContentType    `json:"content_type"`
	Body           string         `json:"body"`
	SentAt         time.Time      `json:"sent_at"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	Status         DeliveryStatus `json:"status"`
}

// Confirmed reports whether the server has assigned this message an id
func (m Message) Confirmed() bool {
	return m.Status == StatusConfirmed
}

// Conversation represents a 1:1 thread between a customer and a salon's
// staff pool
type Conversation struct {
	ID             string    `json:"id"`
	SalonID        string    `json:"salon_id"`
	CustomerID     string    `json:"customer_id"`
	CustomerName   string    `json:"customer_name"`
	Status         string    `json:"status"`
	LastMessageAt  time.Time `json:"last_message_at"`
	LastMessage    string    `json:"last_message"`
	CustomerUnread int       `json:"customer_unread"`
	StaffUnread    int       `json:"staff_unread"`
}

// UnreadFor returns the unread counter driven by the given viewer's read
// receipts
func (c Conversation) UnreadFor(viewer Role) int {
	if viewer == RoleCustomer {
		return c.CustomerUnread
	}
	return c.StaffUnread
}

// TypingState is the ephemeral composing indicator for one peer
type TypingState struct {
	PeerID    string    `json:"peer_id"`
	IsTyping  bool      `json:"is_typing"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status represents the state of the bridge client
type Status struct {
	Connected          bool   `json:"connected"`
	Role               Role   `json:"role"`
	SalonID            string `json:"salon_id"`
	ActiveConversation string `json:"active_conversation,omitempty"`
}
