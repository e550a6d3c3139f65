package auth

import (
	"context"
	"io/fs"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrate applies every pending migration and returns the applied group
func Migrate(ctx context.Context, db *bun.DB, logger Logger) (*migrate.MigrationGroup, error) {
	logger = normalizeLogger(logger)

	sub, err := fs.Sub(migrationsFS, "data/sql/migrations")
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open migrations")
	}

	migrations := migrate.NewMigrations()
	if err := migrations.Discover(sub); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to discover migrations")
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to init migration tables")
	}

	if err := migrator.Lock(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to lock migrations")
	}
	defer func() {
		if err := migrator.Unlock(ctx); err != nil {
			logger.Warn("failed to unlock migrations", "error", err)
		}
	}()

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to run migrations")
	}

	if group.IsZero() {
		logger.Info("no new migrations to run")
	} else {
		logger.Info("migrated", "group", group.String())
	}

	return group, nil
}
