package db

import (
	"context"
	"testing"
	"time"

	"github.com/glowbook/chat-bridge/models"
)

func newTestDB(t *testing.T) DB {
	t.Helper()

	store, err := NewDB(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func TestStoreAndGetConversation(t *testing.T) {
	store := newTestDB(t)
	ctx := context.Background()

	conv := models.Conversation{
		ID:            "conv-1",
		SalonID:       "salon-1",
		CustomerID:    "cust-1",
		CustomerName:  "Amira",
		Status:        "open",
		LastMessageAt: time.Now().UTC().Truncate(time.Second),
		LastMessage:   "see you at 3",
		StaffUnread:   2,
	}

	if err := store.StoreConversation(ctx, conv); err != nil {
		t.Fatalf("StoreConversation: %v", err)
	}

	got, err := store.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got == nil {
		t.Fatal("expected conversation, got nil")
	}
	if got.CustomerName != "Amira" || got.StaffUnread != 2 {
		t.Fatalf("unexpected conversation: %+v", got)
	}

	// Upsert replaces, not duplicates
	conv.StaffUnread = 0
	if err := store.StoreConversation(ctx, conv); err != nil {
		t.Fatalf("StoreConversation: %v", err)
	}

	all, err := store.GetConversations(ctx)
	if err != nil {
		t.Fatalf("GetConversations: %v", err)
	}
	if len(all) != 1 || all[0].StaffUnread != 0 {
		t.Fatalf("expected 1 upserted conversation, got %+v", all)
	}
}

func TestGetConversationMissing(t *testing.T) {
	store := newTestDB(t)

	got, err := store.GetConversation(context.Background(), "conv-missing")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for a missing conversation, got %+v", got)
	}
}

func TestConfirmedMessageReplacesPendingRow(t *testing.T) {
	store := newTestDB(t)
	ctx := context.Background()

	if err := store.StoreConversation(ctx, models.Conversation{ID: "conv-1", LastMessageAt: time.Now()}); err != nil {
		t.Fatalf("StoreConversation: %v", err)
	}

	pending := models.Message{
		CorrelationID:  "corr-1",
		ConversationID: "conv-1",
		SenderID:       "staff-1",
		SenderRole:     models.RoleStaff,
		ContentType:    models.ContentText,
		Body:           "Hi",
		SentAt:         time.Now().UTC().Truncate(time.Second),
		Status:         models.StatusPending,
	}
	if err := store.StoreMessage(ctx, pending); err != nil {
		t.Fatalf("StoreMessage pending: %v", err)
	}

	confirmed := pending
	confirmed.ID = "srv-42"
	confirmed.Status = models.StatusConfirmed
	if err := store.StoreMessage(ctx, confirmed); err != nil {
		t.Fatalf("StoreMessage confirmed: %v", err)
	}

	messages, err := store.GetMessages(ctx, "conv-1", 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected the pending row replaced, got %d rows", len(messages))
	}
	if messages[0].ID != "srv-42" || messages[0].Status != models.StatusConfirmed {
		t.Fatalf("unexpected message: %+v", messages[0])
	}
}

func TestGetMessagesOrderAndLimit(t *testing.T) {
	store := newTestDB(t)
	ctx := context.Background()

	if err := store.StoreConversation(ctx, models.Conversation{ID: "conv-1", LastMessageAt: time.Now()}); err != nil {
		t.Fatalf("StoreConversation: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"srv-1", "srv-2", "srv-3"} {
		msg := models.Message{
			ID:             id,
			ConversationID: "conv-1",
			SenderID:       "cust-1",
			SenderRole:     models.RoleCustomer,
			ContentType:    models.ContentText,
			Body:           id,
			SentAt:         base.Add(time.Duration(i) * time.Minute),
			Status:         models.StatusConfirmed,
		}
		if err := store.StoreMessage(ctx, msg); err != nil {
			t.Fatalf("StoreMessage %s: %v", id, err)
		}
	}

	messages, err := store.GetMessages(ctx, "conv-1", 2)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected limit applied, got %d", len(messages))
	}
	if messages[0].ID != "srv-3" || messages[1].ID != "srv-2" {
		t.Fatalf("expected newest first, got %s, %s", messages[0].ID, messages[1].ID)
	}
}
