package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"samarpan/internal/app"
	"samarpan/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const quizColumns = `id, title, topic, author_id, questions, ai_generated, tags, created_at`

// QuizStore keeps quizzes in Postgres with questions and tags as JSONB.
type QuizStore struct {
	pool *pgxpool.Pool
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{pool: pool}
}

func (s *QuizStore) InsertQuiz(ctx context.Context, quiz domain.Quiz) error {
	questions, err := json.Marshal(quiz.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	tags, err := json.Marshal(nonNilTags(quiz.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO quizzes (`+quizColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		quiz.ID, quiz.Title, quiz.Topic, nullable(quiz.AuthorID), string(questions), quiz.AIGenerated, string(tags), quiz.CreatedAt)
	if isUniqueViolation(err, "quizzes_pkey") {
		return domain.ErrQuizExists
	}
	if err != nil {
		return unavailable("insert quiz", err)
	}
	return nil
}

func (s *QuizStore) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := scanQuiz(s.pool.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id = $1`, quizID))
	if isNoRows(err) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, unavailable("load quiz", err)
	}
	return quiz, nil
}

func (s *QuizStore) ListQuizzes(ctx context.Context, limit int) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+quizColumns+` FROM quizzes ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, unavailable("list quizzes", err)
	}
	defer rows.Close()

	quizzes := make([]domain.Quiz, 0, limit)
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, unavailable("scan quiz", err)
		}
		quizzes = append(quizzes, quiz)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list quizzes", err)
	}
	return quizzes, nil
}

func scanQuiz(row pgx.Row) (domain.Quiz, error) {
	var (
		quiz      domain.Quiz
		author    *string
		questions []byte
		tags      []byte
	)
	if err := row.Scan(&quiz.ID, &quiz.Title, &quiz.Topic, &author, &questions, &quiz.AIGenerated, &tags, &quiz.CreatedAt); err != nil {
		return domain.Quiz{}, err
	}
	if author != nil {
		quiz.AuthorID = *author
	}
	if err := json.Unmarshal(questions, &quiz.Questions); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal questions: %w", err)
	}
	if err := json.Unmarshal(tags, &quiz.Tags); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal tags: %w", err)
	}
	return quiz, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

var _ app.QuizRepository = (*QuizStore)(nil)
