package redis

import (
	"context"
	"strconv"
	"time"

	"samarpan/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter shared by every instance behind one Redis.
// Keys: ratelimit:{scope}:{subject}:{window start}.
type RateLimiter struct {
	client *redis.Client
	scope  string
	limit  int64
	window time.Duration
	clock  func() time.Time
}

func NewRateLimiter(client *redis.Client, scope string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		scope:  scope,
		limit:  int64(limit),
		window: window,
		clock:  time.Now,
	}
}

// Allow counts one request for subject and returns domain.ErrRateLimited once the window's budget
// is spent. A Redis outage lets requests through.
func (l *RateLimiter) Allow(ctx context.Context, subject string) error {
	if l.limit <= 0 || l.window <= 0 {
		return nil
	}
	start := l.clock().Truncate(l.window).Unix()
	key := "ratelimit:" + l.scope + ":" + subject + ":" + strconv.FormatInt(start, 10)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return nil
	}
	if incr.Val() > l.limit {
		return domain.ErrRateLimited
	}
	return nil
}
