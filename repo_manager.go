package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories. RunInTx rolls back on any
// error from f and reports a failed commit as ErrTransientStore.
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	DB() bun.IDB
	Users() Users
	Invitations() Invitations
}

type mngr struct {
	db          *bun.DB
	users       Users
	invitations Invitations
}

// NewRepositoryManager builds the stores over db
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:          db,
		users:       NewUsersRepository(db),
		invitations: NewInvitationsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return goerrors.New("database should be initialized", goerrors.CategoryInternal)
	}

	if m.users == nil {
		return goerrors.New("repository users should be initialized", goerrors.CategoryInternal)
	}

	if m.invitations == nil {
		return goerrors.New("repository invitations should be initialized", goerrors.CategoryInternal)
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	tx, err := m.db.BeginTx(ctx, opts)
	if err != nil {
		return withCause(ErrTransientStore, err)
	}

	var done bool
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()

	if err := f(ctx, tx); err != nil {
		return err
	}

	done = true
	if err := tx.Commit(); err != nil {
		return withCause(ErrTransientStore, err)
	}

	return nil
}

func (m mngr) DB() bun.IDB {
	return m.db
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Invitations() Invitations {
	return m.invitations
}

// IsRecordNotFound reports whether err means no row matched. Raw bun scans
// return sql.ErrNoRows, the generic repository its own not found error.
func IsRecordNotFound(err error) bool {
	return repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows)
}

func recordNotFound(key string, value any) error {
	return repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			key: value,
		})
}

func requireAffected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
