package memory

import (
	"context"
	"errors"
	"testing"

	"samarpan/internal/domain"
)

func TestQuizStoreRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	store := NewQuizStore()
	original := sampleQuiz()
	if err := store.InsertQuiz(ctx, original); err != nil {
		t.Fatalf("insert: %v", err)
	}

	replacement := sampleQuiz()
	replacement.Title = "Replacement"
	if err := store.InsertQuiz(ctx, replacement); !errors.Is(err, domain.ErrQuizExists) {
		t.Fatalf("expected quiz exists, got %v", err)
	}
	var domErr *domain.Error
	if err := store.InsertQuiz(ctx, replacement); !errors.As(err, &domErr) || domErr.Kind != domain.KindConflict {
		t.Fatalf("expected conflict kind, got %v", err)
	}

	got, err := store.GetQuiz(ctx, original.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != original.Title {
		t.Fatalf("duplicate insert replaced the stored quiz: %+v", got)
	}
	quizzes, _ := store.ListQuizzes(ctx, 10)
	if len(quizzes) != 1 {
		t.Fatalf("expected one listed quiz, got %d", len(quizzes))
	}
}
