package memory

import (
	"context"
	"sync"
	"time"

	"samarpan/internal/auth"
	"samarpan/internal/domain"
)

// ExchangeStore keeps one-time login codes in process memory.
type ExchangeStore struct {
	mu    sync.Mutex
	clock func() time.Time
	codes map[string]exchangeEntry
}

type exchangeEntry struct {
	userID    string
	expiresAt time.Time
}

func NewExchangeStore() *ExchangeStore {
	return &ExchangeStore{clock: time.Now, codes: make(map[string]exchangeEntry)}
}

func (s *ExchangeStore) Put(_ context.Context, code, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	for c, e := range s.codes {
		if !e.expiresAt.After(now) {
			delete(s.codes, c)
		}
	}
	s.codes[code] = exchangeEntry{userID: userID, expiresAt: now.Add(ttl)}
	return nil
}

func (s *ExchangeStore) Take(_ context.Context, code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.codes[code]
	if !ok {
		return "", domain.ErrExchangeCodeInvalid
	}
	delete(s.codes, code)
	if !entry.expiresAt.After(s.clock()) {
		return "", domain.ErrExchangeCodeInvalid
	}
	return entry.userID, nil
}

var _ auth.CodeStore = (*ExchangeStore)(nil)
