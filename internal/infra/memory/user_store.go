package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"samarpan/internal/app"
	"samarpan/internal/domain"
)

// UserStore is an in-memory implementation of app.UserRepository.
type UserStore struct {
	mu      sync.RWMutex
	users   map[string]domain.User
	byEmail map[string]string
}

func NewUserStore() *UserStore {
	return &UserStore{
		users:   make(map[string]domain.User),
		byEmail: make(map[string]string),
	}
}

func (s *UserStore) InsertUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := domain.NormalizeEmail(user.Email)
	if _, ok := s.byEmail[email]; ok {
		return domain.ErrEmailTaken
	}
	user.Email = email
	s.users[user.ID] = cloneUser(user)
	s.byEmail[email] = user.ID
	return nil
}

func (s *UserStore) GetUser(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (s *UserStore) FindUserByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (s *UserStore) FillIdentity(_ context.Context, id string, patch domain.IdentityPatch, at time.Time) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	user = patch.Apply(user)
	user.UpdatedAt = at
	s.users[id] = user
	return cloneUser(user), nil
}

func (s *UserStore) TopUsers(_ context.Context, mode domain.Mode, limit int) ([]domain.User, error) {
	s.mu.RLock()
	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, cloneUser(u))
	}
	s.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		ri, rj := users[i].Rating(mode), users[j].Rating(mode)
		if ri != rj {
			return ri > rj
		}
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].Name < users[j].Name
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func cloneUser(u domain.User) domain.User {
	u.PasswordHash = append([]byte(nil), u.PasswordHash...)
	ratings := make(map[domain.Mode]int, len(u.Ratings))
	for m, r := range u.Ratings {
		ratings[m] = r
	}
	u.Ratings = ratings
	return u
}

var _ app.UserRepository = (*UserStore)(nil)
