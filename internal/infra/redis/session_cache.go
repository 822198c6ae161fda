package redis

import (
	"context"
	"time"

	"samarpan/internal/app"
	"samarpan/internal/domain"

	"github.com/redis/go-redis/v9"
)

// SessionCache fronts a SessionRepository with a pin -> session id index in Redis, so join code
// lookups from players skip the pin query. The backing store still owns pin uniqueness; this index
// is only a hint and is verified against the stored session on every hit.
type SessionCache struct {
	app.SessionRepository
	client *redis.Client
	ttl    time.Duration
}

func NewSessionCache(client *redis.Client, backing app.SessionRepository, ttl time.Duration) *SessionCache {
	return &SessionCache{SessionRepository: backing, client: client, ttl: ttl}
}

func (s *SessionCache) InsertSession(ctx context.Context, session domain.GameSession) error {
	if err := s.SessionRepository.InsertSession(ctx, session); err != nil {
		return err
	}
	if session.Status.Live() {
		// best-effort index
		_ = s.client.Set(ctx, s.key(session.Pin), session.ID, s.ttl).Err()
	}
	return nil
}

func (s *SessionCache) GetSessionByPin(ctx context.Context, pin string) (domain.GameSession, error) {
	id, err := s.client.Get(ctx, s.key(pin)).Result()
	if err == nil {
		session, err := s.SessionRepository.GetSession(ctx, id)
		if err == nil && session.Pin == pin && session.Status.Live() {
			return session, nil
		}
		_ = s.client.Del(ctx, s.key(pin)).Err()
	}
	session, err := s.SessionRepository.GetSessionByPin(ctx, pin)
	if err != nil {
		return domain.GameSession{}, err
	}
	_ = s.client.Set(ctx, s.key(pin), session.ID, s.ttl).Err()
	return session, nil
}

func (s *SessionCache) AdvanceSession(ctx context.Context, id string, from, to domain.Status, at time.Time) (domain.GameSession, error) {
	session, err := s.SessionRepository.AdvanceSession(ctx, id, from, to, at)
	if err != nil {
		return domain.GameSession{}, err
	}
	if !session.Status.Live() {
		_ = s.client.Del(ctx, s.key(session.Pin)).Err()
	}
	return session, nil
}

func (s *SessionCache) key(pin string) string {
	return "session:pin:" + pin
}

var _ app.SessionRepository = (*SessionCache)(nil)
