package postgres

import (
	"context"

	"samarpan/internal/app"
	"samarpan/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// RatingStore is the append-only rating ledger.
type RatingStore struct {
	pool *pgxpool.Pool
}

func NewRatingStore(pool *pgxpool.Pool) *RatingStore {
	return &RatingStore{pool: pool}
}

// AppendRatings writes all entries of one settlement in a single transaction; users already settled
// for the session are skipped.
func (s *RatingStore) AppendRatings(ctx context.Context, entries []domain.RatingHistory) error {
	if len(entries) == 0 {
		return nil
	}
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(`INSERT INTO rating_history
				(id, user_id, session_id, mode, before_rating, after_rating, delta, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (session_id, user_id) DO NOTHING`,
				e.ID, e.UserID, e.SessionID, string(e.Mode), e.Before, e.After, e.Delta, e.CreatedAt)
		}
		br := tx.SendBatch(ctx, batch)
		for range entries {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return err
			}
		}
		return br.Close()
	})
	if err != nil {
		return unavailable("append ratings", err)
	}
	return nil
}

func (s *RatingStore) ListRatings(ctx context.Context, userID string) ([]domain.RatingHistory, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, user_id, session_id, mode, before_rating, after_rating, delta, created_at
		FROM rating_history WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
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
