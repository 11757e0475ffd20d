package mcp

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/glowbook/chat-bridge/models"
)

// Constants for paths and API URL
var (
	InboxDBPath      string
	BridgeAPIBaseURL = "http://localhost:8080/api"
)

func init() {
	storeDir := os.Getenv("STORE_DIR")
	if storeDir == "" {
		storeDir = "./store"
	}
	InboxDBPath = filepath.Join(storeDir, "inbox.db")

	if base := os.Getenv("BRIDGE_API_URL"); base != "" {
		BridgeAPIBaseURL = base
	}
}

// MessageContext groups a message with its surrounding conversation slice
type MessageContext struct {
	Target models.Message   `json:"target"`
	Before []models.Message `json:"before"`
	After  []models.Message `json:"after"`
}

// GetDB creates a connection to the SQLite inbox mirror
func GetDB() (*sql.DB, error) {
	db, err := sql.Open("sqlite3", InboxDBPath)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %v", err)
	}
	return db, nil
}

const conversationColumns = `id, salon_id, customer_id, customer_name, status, last_message_at, last_message, customer_unread, staff_unread`

const messageColumns = `id, conversation_id, correlation_id, sender_id, sender_role, content_type, body, sent_at, delivered_at, status`

func scanConversation(row interface{ Scan(...any) error }) (models.Conversation, error) {
	var conv models.Conversation
	err := row.Scan(&conv.ID, &conv.SalonID, &conv.CustomerID, &conv.CustomerName,
		&conv.Status, &conv.LastMessageAt, &conv.LastMessage, &conv.CustomerUnread, &conv.StaffUnread)
	return conv, err
}

func scanMessage(row interface{ Scan(...any) error }) (models.Message, error) {
	var msg models.Message
	err := row.Scan(&msg.ID, &msg.ConversationID, &msg.CorrelationID, &msg.SenderID,
		&msg.SenderRole, &msg.ContentType, &msg.Body, &msg.SentAt, &msg.DeliveredAt, &msg.Status)
	return msg, err
}

// ListConversations retrieves conversations matching the criteria,
// newest activity first
func ListConversations(query string, unreadOnly bool, limit, page int) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	if page < 0 {
		page = 0
	}

	db, err := GetDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	queryStr := `SELECT ` + conversationColumns + ` FROM conversations`

	var conditions []string
	var args []any

	if query != "" {
		conditions = append(conditions, "customer_name LIKE ?")
		args = append(args, "%"+query+"%")
	}
	if unreadOnly {
		conditions = append(conditions, "(customer_unread > 0 OR staff_unread > 0)")
	}
	if len(conditions) > 0 {
		queryStr += " WHERE " + strings.Join(conditions, " AND ")
	}

	queryStr += " ORDER BY last_message_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, page*limit)

	rows, err := db.Query(queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %v", err)
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("error reading data: %v", err)
		}
		conversations = append(conversations, conv)
	}

	return conversations, rows.Err()
}

// GetConversation retrieves metadata of a conversation by id
func GetConversation(conversationID string) (*models.Conversation, error) {
	db, err := GetDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	row := db.QueryRow(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, conversationID)

	conv, err := scanConversation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no conversation found with id %s", conversationID)
		}
		return nil, fmt.Errorf("error reading data: %v", err)
	}

	return &conv, nil
}

// ListMessages retrieves messages matching the criteria, newest first
func ListMessages(conversationID, senderID, query string, limit, page int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	if page < 0 {
		page = 0
	}

	db, err := GetDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	queryStr := `SELECT ` + messageColumns + ` FROM messages`

	var conditions []string
	var args []any

	if conversationID != "" {
		conditions = append(conditions, "conversation_id = ?")
		args = append(args, conversationID)
	}
	if senderID != "" {
		conditions = append(conditions, "sender_id = ?")
		args = append(args, senderID)
	}
	if query != "" {
		conditions = append(conditions, "body LIKE ?")
		args = append(args, "%"+query+"%")
	}
	if len(conditions) > 0 {
		queryStr += " WHERE " + strings.Join(conditions, " AND ")
	}

	queryStr += " ORDER BY sent_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, page*limit)

	rows, err := db.Query(queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %v", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("error reading data: %v", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// GetMessageContext retrieves the messages surrounding a specific message
func GetMessageContext(messageID string, before, after int) (*MessageContext, error) {
	if before <= 0 {
		before = 5
	}
	if after <= 0 {
		after = 5
	}

	db, err := GetDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	row := db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, messageID)
	target, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no message found with id %s", messageID)
		}
		return nil, fmt.Errorf("error reading data: %v", err)
	}

	beforeRows, err := db.Query(
		`SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ? AND sent_at < ? ORDER BY sent_at DESC LIMIT ?`,
		target.ConversationID, target.SentAt, before,
	)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %v", err)
	}
	defer beforeRows.Close()

	context := &MessageContext{Target: target}

	for beforeRows.Next() {
		msg, err := scanMessage(beforeRows)
		if err != nil {
			return nil, fmt.Errorf("error reading data: %v", err)
		}
		// Reverse into chronological order
		context.Before = append([]models.Message{msg}, context.Before...)
	}
	if err := beforeRows.Err(); err != nil {
		return nil, err
	}

	afterRows, err := db.Query(
		`SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ? AND sent_at > ? ORDER BY sent_at ASC LIMIT ?`,
		target.ConversationID, target.SentAt, after,
	)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %v", err)
	}
	defer afterRows.Close()

	for afterRows.Next() {
		msg, err := scanMessage(afterRows)
		if err != nil {
			return nil, fmt.Errorf("error reading data: %v", err)
		}
		context.After = append(context.After, msg)
	}

	return context, afterRows.Err()
}

// GetLastInteraction retrieves the most recent message involving the
// customer
func GetLastInteraction(customerID string) (*models.Message, error) {
	db, err := GetDB()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	row := db.QueryRow(
		`SELECT `+messageColumns+` FROM messages
		WHERE sender_id = ? OR conversation_id IN (SELECT id FROM conversations WHERE customer_id = ?)
		ORDER BY sent_at DESC LIMIT 1`,
		customerID, customerID,
	)

	msg, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no message found for customer %s", customerID)
		}
		return nil, fmt.Errorf("error reading data: %v", err)
	}

	return &msg, nil
}

// SendMessage sends a message into a conversation through the bridge API
func SendMessage(conversationID, body string) (bool, string) {
	if conversationID == "" {
		return false, "Conversation id must be provided"
	}

	// The bridge sends into the joined conversation, so join it first
	openURL := fmt.Sprintf("%s/conversations/%s/open", BridgeAPIBaseURL, conversationID)
	resp, err := http.Post(openURL, "application/json", nil)
	if err != nil {
		return false, fmt.Sprintf("Request error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("Error: HTTP %d joining conversation", resp.StatusCode)
	}

	payload := map[string]string{
		"body":         body,
		"content_type": "text",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Sprintf("JSON serialization error: %v", err)
	}

	resp, err = http.Post(fmt.Sprintf("%s/send", BridgeAPIBaseURL), "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return false, fmt.Sprintf("Request error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var result map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return false, fmt.Sprintf("Response decoding error: %v", err)
		}

		success, ok := result["success"].(bool)
		if !ok {
			return false, "Unexpected response format"
		}

		message, _ := result["message"].(string)
		if message == "" {
			message = "Message sent"
		}
		return success, message
	}

	respBody, _ := io.ReadAll(resp.Body)
	return false, fmt.Sprintf("Error: HTTP %d - %s", resp.StatusCode, string(respBody))
}
