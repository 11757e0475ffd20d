package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/glowbook/chat-bridge/models"
)

// DB mirrors the synchronized inbox in SQLite so the HTTP and MCP
// surfaces can serve history while the channel is down
type DB interface {
	StoreConversation(ctx context.Context, conv models.Conversation) error
	StoreMessage(ctx context.Context, msg models.Message) error
	GetConversations(ctx context.Context) ([]models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)
	GetMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	Close() error
}

type db struct {
	db *sql.DB
}

// NewDB creates a new database
func NewDB(ctx context.Context, dbPath string) (DB, error) {
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %v", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s/inbox.db?_foreign_keys=on", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open inbox database: %v", err)
	}

	db := &db{conn}
	if err := db.initDB(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	return db, nil
}

func (s *db) initDB(ctx context.Context) error {
	// Set pragmas for better performance
	_, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON;`)
	if err != nil {
		return fmt.Errorf("failed to set foreign keys pragma: %v", err)
	}

	_, err = s.db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`)
	if err != nil {
		return fmt.Errorf("failed to set journal mode: %v", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			salon_id TEXT,
			customer_id TEXT,
			customer_name TEXT,
			status TEXT,
			last_message_at TIMESTAMP,
			last_message TEXT,
			customer_unread INTEGER DEFAULT 0,
			staff_unread INTEGER DEFAULT 0
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create conversations table: %v", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT,
			conversation_id TEXT,
			correlation_id TEXT,
			sender_id TEXT,
			sender_role TEXT,
			content_type TEXT,
			body TEXT,
			sent_at TIMESTAMP,
			delivered_at TIMESTAMP,
			status TEXT,
			PRIMARY KEY (id, conversation_id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create messages table: %v", err)
	}

	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_messages_sent_at ON messages(sent_at);`)
	if err != nil {
		return fmt.Errorf("failed to create sent_at index: %v", err)
	}

	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_messages_conversation_sent_at ON messages(conversation_id, sent_at);`)
	if err != nil {
		return fmt.Errorf("failed to create conversation_sent_at index: %v", err)
	}

	return nil
}

func (s *db) Close() error {
	return s.db.Close()
}

// StoreConversation upserts a conversation summary
func (s *db) StoreConversation(ctx context.Context, conv models.Conversation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO conversations
		(id, salon_id, customer_id, customer_name, status, last_message_at, last_message, customer_unread, staff_unread)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.SalonID, conv.CustomerID, conv.CustomerName, conv.Status,
		conv.LastMessageAt, conv.LastMessage, conv.CustomerUnread, conv.StaffUnread,
	)
	return err
}

// StoreMessage upserts a message; unconfirmed messages are keyed by their
// correlation id until the server id arrives
func (s *db) StoreMessage(ctx context.Context, msg models.Message) error {
	id := msg.ID
	if id == "" {
		id = msg.CorrelationID
	}
	if id == "" {
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO messages
		(id, conversation_id, correlation_id, sender_id, sender_role, content_type, body, sent_at, delivered_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, msg.ConversationID, msg.CorrelationID, msg.SenderID, msg.SenderRole,
		msg.ContentType, msg.Body, msg.SentAt, msg.DeliveredAt, msg.Status,
	)
	if err != nil {
		return err
	}

	// A message confirmed after an optimistic write leaves its pending row
	// behind under the correlation id key
	if msg.ID != "" && msg.CorrelationID != "" && msg.ID != msg.CorrelationID {
		_, err = s.db.ExecContext(ctx,
			"DELETE FROM messages WHERE id = ? AND conversation_id = ?",
			msg.CorrelationID, msg.ConversationID,
		)
	}

	return err
}

// GetMessages retrieves the most recent messages of a conversation
func (s *db) GetMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, correlation_id, sender_id, sender_role, content_type, body, sent_at, delivered_at, status
		FROM messages WHERE conversation_id = ? ORDER BY sent_at DESC LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		msg := models.Message{}
		err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.CorrelationID, &msg.SenderID,
			&msg.SenderRole, &msg.ContentType, &msg.Body, &msg.SentAt, &msg.DeliveredAt, &msg.Status)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// GetConversations retrieves all conversations, newest activity first
func (s *db) GetConversations(ctx context.Context) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, salon_id, customer_id, customer_name, status, last_message_at, last_message, customer_unread, staff_unread
		FROM conversations ORDER BY last_message_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		conv := models.Conversation{}
		err := rows.Scan(&conv.ID, &conv.SalonID, &conv.CustomerID, &conv.CustomerName,
			&conv.Status, &conv.LastMessageAt, &conv.LastMessage, &conv.CustomerUnread, &conv.StaffUnread)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}

	return conversations, rows.Err()
}

// GetConversation retrieves a specific conversation
func (s *db) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, salon_id, customer_id, customer_name, status, last_message_at, last_message, customer_unread, staff_unread
		FROM conversations WHERE id = ?`,
		conversationID,
	).Scan(&conv.ID, &conv.SalonID, &conv.CustomerID, &conv.CustomerName,
		&conv.Status, &conv.LastMessageAt, &conv.LastMessage, &conv.CustomerUnread, &conv.StaffUnread)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}
