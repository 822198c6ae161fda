package cli

import (
	"context"
	"database/sql"
	"fmt"

	"samarpan/internal/config"
	pgmigrations "samarpan/internal/infra/postgres/migrations"
	"samarpan/internal/infra/sqlite"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return runMigrationsWithConfig(cmd.Context(), cfg, log)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "rollback",
		Short: "Roll back the last applied migration group (postgres)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return rollbackMigrations(cmd.Context(), cfg, log)
		},
	})
	return cmd
}

func loadConfig(path string) (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, newLogger(cfg), nil
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, log logrus.FieldLogger) error {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return err
		}
		log.WithField("path", cfg.SQLite.Path).Info("sqlite schema applied")
		return db.Close()
	case config.DriverPostgres:
	default:
		return fmt.Errorf("storage driver %q has no migrations", cfg.Storage.Driver)
	}

	db, migrator, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrator.Init(ctx); err != nil {
		return err
	}
	if err := migrator.Lock(ctx); err != nil {
		return err
	}
	defer func() { _ = migrator.Unlock(ctx) }()

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Info("no new migrations")
		return nil
	}
	log.WithFields(logrus.Fields{"group": group.ID, "migrations": len(group.Migrations)}).Info("migrations applied")
	return nil
}

func rollbackMigrations(ctx context.Context, cfg config.Config, log logrus.FieldLogger) error {
	if cfg.Storage.Driver != config.DriverPostgres {
		return fmt.Errorf("rollback is only supported for postgres, not %q", cfg.Storage.Driver)
	}
	db, migrator, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrator.Init(ctx); err != nil {
		return err
	}
	group, err := migrator.Rollback(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Info("nothing to roll back")
		return nil
	}
	log.WithField("group", group.ID).Info("migrations rolled back")
	return nil
}

func newMigrator(cfg config.Config) (*bun.DB, *migrate.Migrator, error) {
	if cfg.Postgres.URL == "" {
		return nil, nil, fmt.Errorf("postgres url not configured")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return db, migrate.NewMigrator(db, pgmigrations.Migrations), nil
}
