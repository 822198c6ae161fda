package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 20251201000001_create_schema.sql
var createSchemaSQL string

// Migrations is the ordered set of Postgres schema changes applied by `samarpan migrate`.
var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createSchemaSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
DROP TABLE IF EXISTS rating_history;
DROP TABLE IF EXISTS game_sessions;
DROP TABLE IF EXISTS quizzes;
DROP TABLE IF EXISTS users;`)
			return err
		},
	)
}
