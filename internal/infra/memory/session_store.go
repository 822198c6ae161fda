package memory

import (
	"context"
	"sync"
	"time"

	"samarpan/internal/app"
	"samarpan/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// livePins plays the role of a unique index over the pins of unfinished sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.GameSession
	livePins map[string]string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.GameSession),
		livePins: make(map[string]string),
	}
}

func (s *SessionStore) InsertSession(_ context.Context, session domain.GameSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.Status.Live() {
		if _, taken := s.livePins[session.Pin]; taken {
			return domain.ErrJoinCodeTaken
		}
		s.livePins[session.Pin] = session.ID
	}
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

func (s *SessionStore) GetSession(_ context.Context, id string) (domain.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (s *SessionStore) GetSessionByPin(_ context.Context, pin string) (domain.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.livePins[pin]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	return cloneSession(s.sessions[id]), nil
}

func (s *SessionStore) AdvanceSession(_ context.Context, id string, from, to domain.Status, at time.Time) (domain.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if session.Status != from || !from.CanAdvanceTo(to) {
		return domain.GameSession{}, domain.ErrInvalidTransition
	}
	session.Status = to
	session.UpdatedAt = at
	switch to {
	case domain.StatusRunning:
		started := at
		session.StartedAt = &started
	case domain.StatusFinished:
		ended := at
		session.EndedAt = &ended
		delete(s.livePins, session.Pin)
	}
	s.sessions[id] = session
	return cloneSession(session), nil
}

func cloneSession(session domain.GameSession) domain.GameSession {
	session.Participants = append([]domain.Participant{}, session.Participants...)
	return session
}

var _ app.SessionRepository = (*SessionStore)(nil)
