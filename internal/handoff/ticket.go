package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/citydoctorae/leadchat/internal/kvstore"
)

// Ticket records that a session reached the confirmation page via a
// successful chatbot flow, with the summary needed to build the deep link.
type Ticket struct {
	Summary   []string  `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// TicketStore persists handoff tickets keyed by session, consumed on first
// read so a directly reloaded confirmation page only gets the link once.
type TicketStore struct {
	store kvstore.Store
}

// NewTicketStore creates a ticket store over a durable backend.
func NewTicketStore(store kvstore.Store) *TicketStore {
	return &TicketStore{store: store}
}

// Put writes a ticket for the session.
func (s *TicketStore) Put(ctx context.Context, sessionID string, summary []string, now time.Time) error {
	data, err := json.Marshal(Ticket{Summary: summary, CreatedAt: now})
	if err != nil {
		return fmt.Errorf("handoff: marshal ticket: %w", err)
	}
	if err := s.store.Set(ctx, s.key(sessionID), string(data)); err != nil {
		return fmt.Errorf("handoff: store ticket: %w", err)
	}
	return nil
}

// Consume reads and clears the session's ticket. The second return value
// reports whether a ticket existed.
func (s *TicketStore) Consume(ctx context.Context, sessionID string) (*Ticket, bool, error) {
	raw, ok, err := s.store.Get(ctx, s.key(sessionID))
	if err != nil {
		return nil, false, fmt.Errorf("handoff: read ticket: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	if err := s.store.Remove(ctx, s.key(sessionID)); err != nil {
		return nil, false, fmt.Errorf("handoff: clear ticket: %w", err)
	}
	var ticket Ticket
	if err := json.Unmarshal([]byte(raw), &ticket); err != nil {
		return nil, false, fmt.Errorf("handoff: decode ticket: %w", err)
	}
	return &ticket, true, nil
}

func (s *TicketStore) key(sessionID string) string {
	return "handoff:" + sessionID
}
