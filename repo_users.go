package auth

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Users is the credential store
type Users interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	// GetActiveByLogin matches identity against username or email
	GetActiveByLogin(ctx context.Context, identity string) (*User, error)
	GetActiveByLoginTx(ctx context.Context, tx bun.IDB, identity string) (*User, error)
	GetByResetToken(ctx context.Context, token string) (*User, error)
	GetByResetTokenTx(ctx context.Context, tx bun.IDB, token string) (*User, error)
	ResetTokenExistsTx(ctx context.Context, tx bun.IDB, token string) (bool, error)

	Create(ctx context.Context, record *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)

	SetPasswordResetTx(ctx context.Context, tx bun.IDB, id int64, token string, expiration time.Time) error
	// UpdatePasswordTx stores hash and serial and clears any reset token
	UpdatePasswordTx(ctx context.Context, tx bun.IDB, id int64, hash, serial string) error
	// DecrementInvitationsTx takes one invitation if any are left
	DecrementInvitationsTx(ctx context.Context, tx bun.IDB, id int64) error
	// SetActiveTx flips is_active and reports false when it already had that value
	SetActiveTx(ctx context.Context, tx bun.IDB, id int64, active bool) (bool, error)
}

type users struct {
	db *bun.DB
}

var _ Users = (*users)(nil)

// NewUsersRepository returns the bun backed credential store
func NewUsersRepository(db *bun.DB) Users {
	return &users{db: db}
}

func (a *users) GetByID(ctx context.Context, id int64) (*User, error) {
	return a.GetByIDTx(ctx, a.db, id)
}

func (a *users) GetByIDTx(ctx context.Context, tx bun.IDB, id int64) (*User, error) {
	return a.getOne(ctx, tx, "?TableAlias.id = ?", id)
}

func (a *users) GetByUsername(ctx context.Context, username string) (*User, error) {
	return a.GetByUsernameTx(ctx, a.db, username)
}

func (a *users) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error) {
	return a.getOne(ctx, tx, "?TableAlias.username = ?", strings.TrimSpace(username))
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.getOne(ctx, tx, "?TableAlias.email = ?", strings.TrimSpace(email))
}

func (a *users) GetActiveByLogin(ctx context.Context, identity string) (*User, error) {
	return a.GetActiveByLoginTx(ctx, a.db, identity)
}

func (a *users) GetActiveByLoginTx(ctx context.Context, tx bun.IDB, identity string) (*User, error) {
	identity = strings.TrimSpace(identity)
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.username = ?", identity).
				WhereOr("?TableAlias.email = ?", identity)
		}).
		Where("?TableAlias.is_active = ?", true).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (a *users) GetByResetToken(ctx context.Context, token string) (*User, error) {
	return a.GetByResetTokenTx(ctx, a.db, token)
}

func (a *users) GetByResetTokenTx(ctx context.Context, tx bun.IDB, token string) (*User, error) {
	if token == "" {
		return nil, recordNotFound("password_reset_token", token)
	}
	return a.getOne(ctx, tx, "?TableAlias.password_reset_token = ?", token)
}

func (a *users) ResetTokenExistsTx(ctx context.Context, tx bun.IDB, token string) (bool, error) {
	return tx.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.password_reset_token = ?", token).
		Exists(ctx)
}

func (a *users) Create(ctx context.Context, record *User) (*User, error) {
	return a.CreateTx(ctx, a.db, record)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	if err := record.EnsureDefaults(DefaultClock()); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to prepare user defaults")
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		if IsUniqueViolation(err) {
			return nil, withCause(ErrDuplicateUser, err)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to insert user")
	}
	return record, nil
}

func (a *users) SetPasswordResetTx(ctx context.Context, tx bun.IDB, id int64, token string, expiration time.Time) error {
	ok, err := requireAffected(tx.NewUpdate().
		Model((*User)(nil)).
		Set("password_reset_token = ?", token).
		Set("password_reset_expiration = ?", expiration).
		Where("id = ?", id).
		Exec(ctx))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store password reset token")
	}
	if !ok {
		return recordNotFound("id", id)
	}
	return nil
}

func (a *users) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id int64, hash, serial string) error {
	ok, err := requireAffected(tx.NewUpdate().
		Model((*User)(nil)).
		Set("password = ?", hash).
		Set("serial = ?", serial).
		Set("password_reset_token = NULL").
		Set("password_reset_expiration = NULL").
		Where("id = ?", id).
		Exec(ctx))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
	}
	if !ok {
		return recordNotFound("id", id)
	}
	return nil
}

func (a *users) DecrementInvitationsTx(ctx context.Context, tx bun.IDB, id int64) error {
	ok, err := requireAffected(tx.NewUpdate().
		Model((*User)(nil)).
		Set("invitations = invitations - 1").
		Where("id = ?", id).
		Where("invitations > 0").
		Exec(ctx))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decrement invitations")
	}
	if !ok {
		return ErrNoInvitationsLeft
	}
	return nil
}

func (a *users) SetActiveTx(ctx context.Context, tx bun.IDB, id int64, active bool) (bool, error) {
	ok, err := requireAffected(tx.NewUpdate().
		Model((*User)(nil)).
		Set("is_active = ?", active).
		Where("id = ?", id).
		Where("is_active = ?", !active).
		Exec(ctx))
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user status")
	}
	return ok, nil
}

func (a *users) getOne(ctx context.Context, tx bun.IDB, where string, args ...any) (*User, error) {
	record := &User{}
	if err := tx.NewSelect().Model(record).Where(where, args...).Limit(1).Scan(ctx); err != nil {
		return nil, err
	}
	return record, nil
}
