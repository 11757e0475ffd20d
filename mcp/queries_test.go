package mcp

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/glowbook/chat-bridge/db"
	"github.com/glowbook/chat-bridge/models"
)

// seedMirror writes conversations into a throwaway inbox mirror and points
// the queries at it
func seedMirror(t *testing.T, conversations ...models.Conversation) {
	t.Helper()

	dir := t.TempDir()
	store, err := db.NewDB(context.Background(), dir)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	for _, conv := range conversations {
		if err := store.StoreConversation(context.Background(), conv); err != nil {
			t.Fatalf("StoreConversation: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	prev := InboxDBPath
	InboxDBPath = filepath.Join(dir, "inbox.db")
	t.Cleanup(func() { InboxDBPath = prev })
}

func TestListConversationsSearchesByCustomerName(t *testing.T) {
	now := time.Now()
	seedMirror(t,
		models.Conversation{ID: "conv-1", SalonID: "salon-1", CustomerID: "cust-1", CustomerName: "Alice Martin", Status: "open", LastMessageAt: now},
		models.Conversation{ID: "conv-2", SalonID: "salon-1", CustomerID: "cust-2", CustomerName: "Bob Stone", Status: "open", LastMessageAt: now.Add(time.Minute)},
	)

	matches, err := ListConversations("Alice", false, 20, 0)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "conv-1" {
		t.Fatalf("expected only Alice's conversation, got %+v", matches)
	}
}

func TestSearchConversationsHandler(t *testing.T) {
	now := time.Now()
	seedMirror(t,
		models.Conversation{ID: "conv-1", SalonID: "salon-1", CustomerID: "cust-1", CustomerName: "Alice Martin", Status: "open", LastMessageAt: now},
	)

	request := mcp.CallToolRequest{}
	request.Params.Arguments = map[string]interface{}{"query": "Alice"}

	result, err := searchConversationsHandler(context.Background(), request)
	if err != nil {
		t.Fatalf("searchConversationsHandler: %v", err)
	}
	if result == nil {
		t.Fatal("expected a tool result")
	}
}

func TestSearchConversationsRequiresQuery(t *testing.T) {
	request := mcp.CallToolRequest{}
	request.Params.Arguments = map[string]interface{}{}

	if _, err := searchConversationsHandler(context.Background(), request); err == nil {
		t.Fatal("expected an error without a query")
	}
}
