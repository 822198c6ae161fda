package redis

import (
	"context"
	"errors"
	"time"

	"samarpan/internal/auth"
	"samarpan/internal/domain"

	"github.com/redis/go-redis/v9"
)

// ExchangeStore keeps one-time login codes in Redis so any instance can redeem them.
// Keys: auth:exchange:{code} -> user id, expiring after the code TTL.
type ExchangeStore struct {
	client *redis.Client
}

func NewExchangeStore(client *redis.Client) *ExchangeStore {
	return &ExchangeStore{client: client}
}

func (s *ExchangeStore) Put(ctx context.Context, code, userID string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, exchangeKey(code), userID, ttl).Result()
	if err != nil {
		return domain.WrapError(domain.KindStorageUnavailable, "login code store unavailable", err)
	}
	if !ok {
		return errors.New("login code collision")
	}
	return nil
}

// Take uses GETDEL so two concurrent redemptions of one code cannot both succeed.
func (s *ExchangeStore) Take(ctx context.Context, code string) (string, error) {
	userID, err := s.client.GetDel(ctx, exchangeKey(code)).Result()
	if isMiss(err) {
		return "", domain.ErrExchangeCodeInvalid
	}
	if err != nil {
		return "", domain.WrapError(domain.KindStorageUnavailable, "login code store unavailable", err)
	}
	return userID, nil
}

func exchangeKey(code string) string {
	return "auth:exchange:" + code
}

var _ auth.CodeStore = (*ExchangeStore)(nil)
