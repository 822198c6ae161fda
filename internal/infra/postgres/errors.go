package postgres

import (
	"context"
	"errors"
	"fmt"

	"samarpan/internal/domain"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const uniqueViolation = "23505"

// Connect opens a pool and pings it once so a bad URL fails at boot.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, domain.WrapError(domain.KindStorageUnavailable, "database unavailable", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, domain.WrapError(domain.KindStorageUnavailable, "database unavailable", err)
	}
	return pool, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// unavailable hides driver errors behind a storage_unavailable kind; the cause stays wrapped for logs.
func unavailable(op string, err error) error {
	return domain.WrapError(domain.KindStorageUnavailable, "storage unavailable", fmt.Errorf("%s: %w", op, err))
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
