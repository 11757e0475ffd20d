package inbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glowbook/chat-bridge/models"
)

type stubSummaries struct {
	conversations []models.Conversation
	listErr       error
	markReadErr   error
	listCalls     int
	markedRead    []string
	lastRole      models.Role
	lastSalonID   string
}

func (s *stubSummaries) ListConversations(_ context.Context, role models.Role, salonID string) ([]models.Conversation, error) {
	s.listCalls++
	s.lastRole = role
	s.lastSalonID = salonID
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.conversations, nil
}

func (s *stubSummaries) MarkRead(_ context.Context, conversationID string) error {
	s.markedRead = append(s.markedRead, conversationID)
	return s.markReadErr
}

func buildConversation(id, customerName string, lastMessageAt time.Time, customerUnread, staffUnread int) models.Conversation {
	return models.Conversation{
		ID:             id,
		SalonID:        "salon-1",
		CustomerID:     "cust-" + id,
		CustomerName:   customerName,
		Status:         "open",
		LastMessageAt:  lastMessageAt,
		CustomerUnread: customerUnread,
		StaffUnread:    staffUnread,
	}
}

func TestRefreshReplacesAndSortsByActivity(t *testing.T) {
	base := time.Now()
	api := &stubSummaries{conversations: []models.Conversation{
		buildConversation("conv-1", "Amira", base.Add(-time.Hour), 0, 0),
		buildConversation("conv-2", "Bea", base, 0, 0),
	}}
	s := NewSynchronizer(api, models.RoleStaff, "salon-1")

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	got := s.Conversations(Filter{})
	if len(got) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(got))
	}
	if got[0].ID != "conv-2" || got[1].ID != "conv-1" {
		t.Fatalf("expected newest-first order, got %s, %s", got[0].ID, got[1].ID)
	}
	if api.lastRole != models.RoleStaff || api.lastSalonID != "salon-1" {
		t.Fatalf("expected scoped fetch, got role=%s salon=%s", api.lastRole, api.lastSalonID)
	}

	// A second refresh is a full replace, not an accumulation
	api.conversations = api.conversations[:1]
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := s.Conversations(Filter{}); len(got) != 1 {
		t.Fatalf("expected full replace, got %d conversations", len(got))
	}
}

func TestRefreshErrorKeepsPreviousList(t *testing.T) {
	api := &stubSummaries{conversations: []models.Conversation{
		buildConversation("conv-1", "Amira", time.Now(), 0, 0),
	}}
	s := NewSynchronizer(api, models.RoleStaff, "salon-1")

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	api.listErr = errors.New("network down")
	if err := s.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}

	if got := s.Conversations(Filter{}); len(got) != 1 {
		t.Fatalf("expected previous list retained, got %d", len(got))
	}
}

func TestMarkReadZeroesViewerCounterOptimistically(t *testing.T) {
	api := &stubSummaries{conversations: []models.Conversation{
		buildConversation("conv-1", "Amira", time.Now(), 2, 3),
	}}
	s := NewSynchronizer(api, models.RoleStaff, "salon-1")

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	s.MarkRead(context.Background(), "conv-1")

	conv, ok := s.Conversation("conv-1")
	if !ok {
		t.Fatal("expected conv-1 present")
	}
	if conv.StaffUnread != 0 {
		t.Fatalf("expected staff unread zeroed, got %d", conv.StaffUnread)
	}
	if conv.CustomerUnread != 2 {
		t.Fatalf("expected customer unread untouched, got %d", conv.CustomerUnread)
	}
	if len(api.markedRead) != 1 || api.markedRead[0] != "conv-1" {
		t.Fatalf("expected mark-read call for conv-1, got %v", api.markedRead)
	}
}

func TestMarkReadDoesNotRollBackOnFailure(t *testing.T) {
	api := &stubSummaries{
		conversations: []models.Conversation{
			buildConversation("conv-1", "Amira", time.Now(), 0, 3),
		},
		markReadErr: errors.New("server error"),
	}
	s := NewSynchronizer(api, models.RoleStaff, "salon-1")

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	s.MarkRead(context.Background(), "conv-1")

	conv, _ := s.Conversation("conv-1")
	if conv.StaffUnread != 0 {
		t.Fatalf("expected unread kept at 0 despite failure, got %d", conv.StaffUnread)
	}
}

func TestFilterByCustomerName(t *testing.T) {
	api := &stubSummaries{conversations: []models.Conversation{
		buildConversation("conv-1", "Amira Haddad", time.Now(), 0, 0),
		buildConversation("conv-2", "Bea Torres", time.Now(), 0, 0),
	}}
	s := NewSynchronizer(api, models.RoleStaff, "salon-1")

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	got := s.Conversations(Filter{Query: "amira"})
	if len(got) != 1 || got[0].ID != "conv-1" {
		t.Fatalf("expected case-insensitive match on conv-1, got %v", got)
	}
}

func TestFilterUnreadOnlyUsesViewerCounter(t *testing.T) {
	api := &stubSummaries{conversations: []models.Conversation{
		buildConversation("conv-1", "Amira", time.Now(), 5, 0),
		buildConversation("conv-2", "Bea", time.Now(), 0, 1),
	}}

	staff := NewSynchronizer(api, models.RoleStaff, "salon-1")
	if err := staff.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	got := staff.Conversations(Filter{UnreadOnly: true})
	if len(got) != 1 || got[0].ID != "conv-2" {
		t.Fatalf("expected staff view to keep conv-2, got %v", got)
	}

	customer := NewSynchronizer(api, models.RoleCustomer, "salon-1")
	if err := customer.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	got = customer.Conversations(Filter{UnreadOnly: true})
	if len(got) != 1 || got[0].ID != "conv-1" {
		t.Fatalf("expected customer view to keep conv-1, got %v", got)
	}
}

func TestTotalUnread(t *testing.T) {
	api := &stubSummaries{conversations: []models.Conversation{
		buildConversation("conv-1", "Amira", time.Now(), 5, 2),
		buildConversation("conv-2", "Bea", time.Now(), 0, 1),
	}}
	s := NewSynchronizer(api, models.RoleStaff, "salon-1")

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if got := s.TotalUnread(); got != 3 {
		t.Fatalf("expected 3 unread for staff, got %d", got)
	}
}
