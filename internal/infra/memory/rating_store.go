package memory

import (
	"context"
	"sync"

	"samarpan/internal/app"
	"samarpan/internal/domain"
)

// RatingStore is an append-only in-memory rating ledger.
type RatingStore struct {
	mu      sync.RWMutex
	entries []domain.RatingHistory
}

func NewRatingStore() *RatingStore {
	return &RatingStore{}
}

func (s *RatingStore) AppendRatings(_ context.Context, entries []domain.RatingHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if s.settled(e.SessionID, e.UserID) {
			continue
		}
		s.entries = append(s.entries, e)
	}
	return nil
}

func (s *RatingStore) settled(sessionID, userID string) bool {
	for _, e := range s.entries {
		if e.SessionID == sessionID && e.UserID == userID {
			return true
		}
	}
	return false
}

func (s *RatingStore) ListRatings(_ context.Context, userID string) ([]domain.RatingHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RatingHistory, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].UserID == userID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

var _ app.RatingRepository = (*RatingStore)(nil)
