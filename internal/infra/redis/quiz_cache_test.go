package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"samarpan/internal/domain"
	"samarpan/internal/infra/memory"
)

func TestQuizCacheCachesInRedis(t *testing.T) {
	mr, client := newMiniredis(t)
	ctx := context.Background()

	backing := &countingQuizzes{QuizStore: memory.NewQuizStore()}
	if err := backing.InsertQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	repo := NewQuizCache(client, backing, time.Minute)

	got, err := repo.GetQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if got.Questions[0].Options[1] != "4" {
		t.Fatalf("unexpected quiz %+v", got)
	}
	if backing.loads() != 1 {
		t.Fatalf("expected loader called once, got %d", backing.loads())
	}
	if !mr.Exists("quiz:quiz-1") {
		t.Fatalf("expected quiz:quiz-1 to be cached")
	}
	if ttl := mr.TTL("quiz:quiz-1"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("expected ttl with at most 10%% jitter, got %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	if _, err := repo.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if backing.loads() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", backing.loads())
	}
}

func TestQuizCachePrimesOnInsertAndSurvivesOutage(t *testing.T) {
	mr, client := newMiniredis(t)
	ctx := context.Background()

	backing := &countingQuizzes{QuizStore: memory.NewQuizStore()}
	repo := NewQuizCache(client, backing, time.Minute)
	if err := repo.InsertQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := repo.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if backing.loads() != 0 {
		t.Fatalf("expected insert to prime the cache, loader calls=%d", backing.loads())
	}

	mr.Close()
	if _, err := repo.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("expected fallback to backing store when redis is down: %v", err)
	}
	if _, err := repo.GetQuiz(ctx, "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type countingQuizzes struct {
	*memory.QuizStore
	mu    sync.Mutex
	calls int
}

func (s *countingQuizzes) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.QuizStore.GetQuiz(ctx, quizID)
}

func (s *countingQuizzes) loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Arithmetic",
		Topic: "math",
		Questions: []domain.Question{
			{
				Question:     "What is 2 + 2?",
				Options:      []string{"3", "4"},
				CorrectIndex: 1,
				Difficulty:   domain.DifficultyEasy,
			},
		},
		Tags:      []string{"math"},
		CreatedAt: time.Unix(1_700_000_000, 0).UTC(),
	}
}
