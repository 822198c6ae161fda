package sqlite

import (
	"context"
	"database/sql"

	"samarpan/internal/app"
	"samarpan/internal/domain"
)

type RatingStore struct {
	db *sql.DB
}

func NewRatingStore(db *sql.DB) *RatingStore {
	return &RatingStore{db: db}
}

func (s *RatingStore) AppendRatings(ctx context.Context, entries []domain.RatingHistory) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin ratings", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO rating_history
		(id, user_id, session_id, mode, before_rating, after_rating, delta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, user_id) DO NOTHING`)
	if err != nil {
		return unavailable("prepare ratings", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ID, e.UserID, e.SessionID, string(e.Mode), e.Before, e.After, e.Delta, e.CreatedAt.UTC()); err != nil {
			return unavailable("append rating", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit ratings", err)
	}
	return nil
}

func (s *RatingStore) ListRatings(ctx context.Context, userID string) ([]domain.RatingHistory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, session_id, mode, before_rating, after_rating, delta, created_at
		FROM rating_history WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, unavailable("list ratings", err)
	}
	defer rows.Close()

	entries := make([]domain.RatingHistory, 0)
	for rows.Next() {
		var (
			e    domain.RatingHistory
			mode string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.SessionID, &mode, &e.Before, &e.After, &e.Delta, &e.CreatedAt); err != nil {
			return nil, unavailable("scan rating", err)
		}
		e.Mode = domain.Mode(mode)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list ratings", err)
	}
	return entries, nil
}

var _ app.RatingRepository = (*RatingStore)(nil)
