package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glowbook/chat-bridge/channel"
	"github.com/glowbook/chat-bridge/models"
	"github.com/glowbook/chat-bridge/reconcile"
)

type nopEmitter struct{}

func (nopEmitter) Emit(channel.Event) error { return nil }

type stubHistory struct {
	messages []models.Message
}

func (s *stubHistory) ListMessages(context.Context, string) ([]models.Message, error) {
	return s.messages, nil
}

func activeService(t *testing.T, history *stubHistory) *service {
	t.Helper()

	engine := reconcile.NewEngine(nopEmitter{}, history, "staff-1", models.RoleStaff, 15*time.Second)
	if err := engine.SetActive(context.Background(), "conv-1"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	return &service{engine: engine}
}

func TestMessagesHonorsLimitForActiveConversation(t *testing.T) {
	base := time.Now()
	history := &stubHistory{}
	for i := 0; i < 5; i++ {
		history.messages = append(history.messages, models.Message{
			ID:             fmt.Sprintf("srv-%d", i+1),
			ConversationID: "conv-1",
			SenderID:       "cust-1",
			SenderRole:     models.RoleCustomer,
			ContentType:    models.ContentText,
			Body:           fmt.Sprintf("message %d", i+1),
			SentAt:         base.Add(time.Duration(i) * time.Second),
			Status:         models.StatusConfirmed,
		})
	}
	s := activeService(t, history)

	got, err := s.Messages(context.Background(), "conv-1", 2)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].ID != "srv-4" || got[1].ID != "srv-5" {
		t.Fatalf("expected the newest two ascending, got %s, %s", got[0].ID, got[1].ID)
	}
}

func TestMessagesWithoutLimitReturnsFullActiveList(t *testing.T) {
	history := &stubHistory{messages: []models.Message{
		{ID: "srv-1", ConversationID: "conv-1", SentAt: time.Now(), Status: models.StatusConfirmed},
	}}
	s := activeService(t, history)

	got, err := s.Messages(context.Background(), "conv-1", 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(got) != 1 || got[0].ID != "srv-1" {
		t.Fatalf("expected the full active list, got %+v", got)
	}
}
