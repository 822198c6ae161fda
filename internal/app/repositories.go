package app

import (
	"context"
	"time"

	"samarpan/internal/domain"
)

// UserRepository persists identity records. Implementations must enforce email uniqueness atomically
// and report a losing insert as domain.ErrEmailTaken.
type UserRepository interface {
	InsertUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, id string) (domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (domain.User, error)
	// FillIdentity sets each non-empty patch field only where the stored value is empty.
	FillIdentity(ctx context.Context, id string, patch domain.IdentityPatch, at time.Time) (domain.User, error)
	TopUsers(ctx context.Context, mode domain.Mode, limit int) ([]domain.User, error)
}

// QuizRepository loads and stores quiz content (from cache/backing store).
type QuizRepository interface {
	InsertQuiz(ctx context.Context, quiz domain.Quiz) error
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListQuizzes(ctx context.Context, limit int) ([]domain.Quiz, error)
}

// SessionRepository abstracts how game sessions are stored (in-memory, Postgres, SQLite).
// InsertSession must reject a pin held by another live session with domain.ErrJoinCodeTaken,
// decided atomically at insert time.
type SessionRepository interface {
	InsertSession(ctx context.Context, session domain.GameSession) error
	GetSession(ctx context.Context, id string) (domain.GameSession, error)
	GetSessionByPin(ctx context.Context, pin string) (domain.GameSession, error)
	// AdvanceSession moves a session from one status to the next only if it is still in from.
	AdvanceSession(ctx context.Context, id string, from, to domain.Status, at time.Time) (domain.GameSession, error)
}

// RatingRepository is the append-only rating ledger. A session settles a user at most once:
// AppendRatings skips entries whose (SessionID, UserID) pair is already recorded.
type RatingRepository interface {
	AppendRatings(ctx context.Context, entries []domain.RatingHistory) error
	ListRatings(ctx context.Context, userID string) ([]domain.RatingHistory, error)
}
