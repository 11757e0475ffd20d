package inbox

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/glowbook/chat-bridge/models"
)

// SummarySource is the slice of the REST collaborator the synchronizer
// depends on
type SummarySource interface {
	ListConversations(ctx context.Context, role models.Role, salonID string) ([]models.Conversation, error)
	MarkRead(ctx context.Context, conversationID string) error
}

// Filter narrows the conversation list client-side
type Filter struct {
	// Query is matched case-insensitively against the customer display name
	Query string
	// UnreadOnly keeps conversations with unread messages for the viewer
	UnreadOnly bool
}

// Synchronizer maintains the conversation summaries for the inbox view.
// Refresh is a full replace of the fetched list; volumes are small enough
// that incremental patching isn't worth the bookkeeping.
type Synchronizer struct {
	mu sync.RWMutex

	api     SummarySource
	viewer  models.Role
	salonID string

	conversations []models.Conversation
}

// NewSynchronizer creates an inbox synchronizer scoped to a viewer role
// and salon
func NewSynchronizer(api SummarySource, viewer models.Role, salonID string) *Synchronizer {
	return &Synchronizer{
		api:     api,
		viewer:  viewer,
		salonID: salonID,
	}
}

// Refresh re-fetches all summaries and replaces the local list, newest
// activity first
func (s *Synchronizer) Refresh(ctx context.Context) error {
	conversations, err := s.api.ListConversations(ctx, s.viewer, s.salonID)
	if err != nil {
		return fmt.Errorf("inbox: refresh: %w", err)
	}

	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].LastMessageAt.After(conversations[j].LastMessageAt)
	})

	s.mu.Lock()
	s.conversations = conversations
	s.mu.Unlock()

	return nil
}

// Conversations returns the summaries matching the filter
func (s *Synchronizer) Conversations(filter Filter) []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(filter.Query))

	out := make([]models.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		if filter.UnreadOnly && conv.UnreadFor(s.viewer) == 0 {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(conv.CustomerName), query) {
			continue
		}
		out = append(out, conv)
	}

	return out
}

// Conversation looks up a single summary by id
func (s *Synchronizer) Conversation(conversationID string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, conv := range s.conversations {
		if conv.ID == conversationID {
			return conv, true
		}
	}
	return models.Conversation{}, false
}

// TotalUnread sums the viewer's unread counters across the inbox
func (s *Synchronizer) TotalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, conv := range s.conversations {
		total += conv.UnreadFor(s.viewer)
	}
	return total
}

// MarkRead zeroes the viewer's unread counter immediately and tells the
// server. The local state is not rolled back if the call fails; the next
// refresh reconciles it.
func (s *Synchronizer) MarkRead(ctx context.Context, conversationID string) {
	s.mu.Lock()
	for i := range s.conversations {
		if s.conversations[i].ID != conversationID {
			continue
		}
		if s.viewer == models.RoleCustomer {
			s.conversations[i].CustomerUnread = 0
		} else {
			s.conversations[i].StaffUnread = 0
		}
		break
	}
	s.mu.Unlock()

	if err := s.api.MarkRead(ctx, conversationID); err != nil {
		log.Printf("inbox: mark read %s: %v", conversationID, err)
	}
}
