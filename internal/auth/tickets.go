package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TicketTTL is how long a WebSocket ticket stays redeemable.
const TicketTTL = 60 * time.Second

type ticket struct {
	userID    string
	expiresAt time.Time
}

// TicketStore issues single-use WebSocket tickets bound to a user.
type TicketStore struct {
	mu      sync.Mutex
	tickets map[string]ticket
	ttl     time.Duration
	now     func() time.Time
}

// NewTicketStore creates an empty store with the default TTL.
func NewTicketStore() *TicketStore {
	return &TicketStore{
		tickets: make(map[string]ticket),
		ttl:     TicketTTL,
		now:     time.Now,
	}
}

// Issue creates a ticket for userID.
func (s *TicketStore) Issue(userID string) (string, time.Time) {
	id := uuid.NewString()
	expires := s.now().Add(s.ttl)

	s.mu.Lock()
	s.tickets[id] = ticket{userID: userID, expiresAt: expires}
	s.mu.Unlock()
	return id, expires
}

// Redeem consumes a ticket and returns its user. A ticket works once.
func (s *TicketStore) Redeem(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return "", ErrTicketInvalid
	}
	delete(s.tickets, id)
	if s.now().After(t.expiresAt) {
		return "", ErrTicketInvalid
	}
	return t.userID, nil
}

// Len returns the number of outstanding tickets.
func (s *TicketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}

// Cleanup drops expired tickets every interval until ctx is cancelled.
func (s *TicketStore) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purge()
		}
	}
}

func (s *TicketStore) purge() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tickets {
		if now.After(t.expiresAt) {
			delete(s.tickets, id)
		}
	}
}
