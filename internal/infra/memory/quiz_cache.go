package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"samarpan/internal/app"
	"samarpan/internal/domain"

	"golang.org/x/sync/singleflight"
)

// QuizCache caches quizzes with TTL in front of a backing repository to avoid repeated DB hits.
// Quizzes are immutable once stored, so entries never need invalidation.
type QuizCache struct {
	backing app.QuizRepository
	ttl     time.Duration
	clock   func() time.Time
	sf      singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizCache(backing app.QuizRepository, ttl time.Duration) *QuizCache {
	return &QuizCache{
		backing: backing,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:   make(map[string]cachedQuiz),
	}
}

func (r *QuizCache) InsertQuiz(ctx context.Context, quiz domain.Quiz) error {
	if err := r.backing.InsertQuiz(ctx, quiz); err != nil {
		return err
	}
	r.store(quiz, r.clock())
	return nil
}

func (r *QuizCache) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.lookup(quizID, r.clock()); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		now := r.clock()
		if quiz, ok := r.lookup(quizID, now); ok {
			return quiz, nil
		}
		quiz, err := r.backing.GetQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		r.store(quiz, now)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return cloneQuiz(result.(domain.Quiz)), nil
}

// ListQuizzes is not cached; the public list changes with every new quiz.
func (r *QuizCache) ListQuizzes(ctx context.Context, limit int) ([]domain.Quiz, error) {
	return r.backing.ListQuizzes(ctx, limit)
}

func (r *QuizCache) lookup(quizID string, now time.Time) (domain.Quiz, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[quizID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.Quiz{}, false
	}
	return cloneQuiz(entry.quiz), true
}

func (r *QuizCache) store(quiz domain.Quiz, now time.Time) {
	if r.ttl <= 0 {
		return
	}
	r.mu.Lock()
	r.cache[quiz.ID] = cachedQuiz{
		quiz:      cloneQuiz(quiz),
		expiresAt: now.Add(r.ttlWithJitter()),
	}
	r.mu.Unlock()
}

func (r *QuizCache) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

var _ app.QuizRepository = (*QuizCache)(nil)
