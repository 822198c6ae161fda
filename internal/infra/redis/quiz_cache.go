package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"samarpan/internal/app"
	"samarpan/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuizCache caches whole quizzes in Redis as JSON under quiz:{id} and falls back to a backing
// repository on a miss. Redis errors degrade to the backing store; they never fail a read.
type QuizCache struct {
	client  *redis.Client
	backing app.QuizRepository
	ttl     time.Duration
	sf      singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuizCache(client *redis.Client, backing app.QuizRepository, ttl time.Duration) *QuizCache {
	return &QuizCache{
		client:  client,
		backing: backing,
		ttl:     ttl,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizCache) InsertQuiz(ctx context.Context, quiz domain.Quiz) error {
	if err := r.backing.InsertQuiz(ctx, quiz); err != nil {
		return err
	}
	r.store(ctx, quiz)
	return nil
}

func (r *QuizCache) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.lookup(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.lookup(ctx, quizID); ok {
			return quiz, nil
		}
		quiz, err := r.backing.GetQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		r.store(ctx, quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizCache) ListQuizzes(ctx context.Context, limit int) ([]domain.Quiz, error) {
	return r.backing.ListQuizzes(ctx, limit)
}

func (r *QuizCache) lookup(ctx context.Context, quizID string) (domain.Quiz, bool) {
	raw, err := r.client.Get(ctx, quizKey(quizID)).Bytes()
	if err != nil {
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (r *QuizCache) store(ctx context.Context, quiz domain.Quiz) {
	if r.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(quiz)
	if err != nil {
		return
	}
	_ = r.client.Set(ctx, quizKey(quiz.ID), raw, r.ttlWithJitter()).Err()
}

func (r *QuizCache) ttlWithJitter() time.Duration {
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func quizKey(quizID string) string {
	return "quiz:" + quizID
}

var _ app.QuizRepository = (*QuizCache)(nil)
