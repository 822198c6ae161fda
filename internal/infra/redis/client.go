package redis

import (
	"context"
	"errors"
	"fmt"

	"samarpan/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Connect opens a client and pings it once so a bad address fails at boot.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, domain.WrapError(domain.KindStorageUnavailable, "redis unavailable", fmt.Errorf("ping %s: %w", addr, err))
	}
	return client, nil
}

// isMiss reports whether err is Redis telling us the key does not exist.
func isMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}
