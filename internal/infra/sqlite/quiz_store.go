package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"samarpan/internal/app"
	"samarpan/internal/domain"
)

const quizColumns = `id, title, topic, author_id, questions, ai_generated, tags, created_at`

// QuizStore keeps questions and tags as JSON text.
type QuizStore struct {
	db *sql.DB
}

func NewQuizStore(db *sql.DB) *QuizStore {
	return &QuizStore{db: db}
}

func (s *QuizStore) InsertQuiz(ctx context.Context, quiz domain.Quiz) error {
	questions, err := json.Marshal(quiz.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	tags := quiz.Tags
	if tags == nil {
		tags = []string{}
	}
	rawTags, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO quizzes (`+quizColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		quiz.ID, quiz.Title, quiz.Topic, nullable(quiz.AuthorID), string(questions), quiz.AIGenerated,
		string(rawTags), quiz.CreatedAt.UTC())
	if isUniqueViolation(err, "quizzes.id") {
		return domain.ErrQuizExists
	}
	if err != nil {
		return unavailable("insert quiz", err)
	}
	return nil
}

func (s *QuizStore) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := scanQuiz(s.db.QueryRowContext(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id = ?`, quizID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, unavailable("load quiz", err)
	}
	return quiz, nil
}

func (s *QuizStore) ListQuizzes(ctx context.Context, limit int) ([]domain.Quiz, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+quizColumns+` FROM quizzes ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, unavailable("list quizzes", err)
	}
	defer rows.Close()

	quizzes := make([]domain.Quiz, 0)
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

func scanQuiz(row scanner) (domain.Quiz, error) {
	var (
		quiz            domain.Quiz
		author          sql.NullString
		questions, tags string
	)
	if err := row.Scan(&quiz.ID, &quiz.Title, &quiz.Topic, &author, &questions, &quiz.AIGenerated, &tags, &quiz.CreatedAt); err != nil {
		return domain.Quiz{}, err
	}
	quiz.AuthorID = author.String
	if err := json.Unmarshal([]byte(questions), &quiz.Questions); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal questions: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &quiz.Tags); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal tags: %w", err)
	}
	return quiz, nil
}

var _ app.QuizRepository = (*QuizStore)(nil)
