package app

import (
	"context"
	"database/sql"

	auth "github.com/goliatone/go-auth-starter"
	"github.com/goliatone/go-auth-starter/config"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// OpenDB opens the sqlite database described by cfg
func OpenDB(cfg config.Database) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// sqlite allows one writer. Each connection to a plain :memory: dsn
	// opens its own empty database.
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = config.DefaultMaxOpenConns
	}
	sqldb.SetMaxOpenConns(maxOpen)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}
	return db, nil
}

// WithPersistence opens the database, unless one was set, and builds the
// repositories.
func WithPersistence(_ context.Context, app *App) error {
	if app.DB() == nil {
		db, err := OpenDB(app.Config().Database)
		if err != nil {
			return err
		}
		app.SetDB(db)
	}

	repo := auth.NewRepositoryManager(app.DB())
	if err := repo.Validate(); err != nil {
		return err
	}
	app.SetRepository(repo)

	return nil
}

// Migrate applies pending migrations
func (a *App) Migrate(ctx context.Context) error {
	_, err := auth.Migrate(ctx, a.DB(), a.GetLogger("migrate"))
	return err
}
