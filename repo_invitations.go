package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Invitations is the invitation ledger. Records are keyed by uuid and
// looked up by token through the generic repository.
type Invitations interface {
	repository.Repository[*Invitation]

	GetByToken(ctx context.Context, token string) (*Invitation, error)
	GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*Invitation, error)
	TokenExistsTx(ctx context.Context, tx bun.IDB, token string) (bool, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*Invitation, error)
	// RedeemTx links userID to the invitation. It fails with ErrInvalidToken
	// when the invitation was already redeemed.
	RedeemTx(ctx context.Context, tx bun.IDB, id uuid.UUID, userID int64) error
}

type invitations struct {
	repository.Repository[*Invitation]
	db *bun.DB
}

var (
	_ Invitations                        = (*invitations)(nil)
	_ repository.Repository[*Invitation] = (*invitations)(nil)
)

// NewInvitationsRepository returns the bun backed ledger
func NewInvitationsRepository(db *bun.DB) Invitations {
	repo := repository.NewRepository[*Invitation](db, repository.ModelHandlers[*Invitation]{
		NewRecord: func() *Invitation { return &Invitation{} },
		GetID: func(record *Invitation) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *Invitation, id uuid.UUID) {
			if record != nil {
				record.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	return &invitations{
		Repository: repo,
		db:         db,
	}
}

func (r *invitations) GetByToken(ctx context.Context, token string) (*Invitation, error) {
	return r.GetByTokenTx(ctx, r.db, token)
}

func (r *invitations) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*Invitation, error) {
	if token == "" {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"token": token,
			})
	}
	return r.Repository.GetByIdentifierTx(ctx, tx, token)
}

func (r *invitations) TokenExistsTx(ctx context.Context, tx bun.IDB, token string) (bool, error) {
	return tx.NewSelect().
		Model((*Invitation)(nil)).
		Where("?TableAlias.token = ?", token).
		Exists(ctx)
}

func (r *invitations) ListByOwner(ctx context.Context, ownerID int64) ([]*Invitation, error) {
	var records []*Invitation
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.owner_id = ?", ownerID).
		Order("expiration ASC").
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list invitations")
	}
	return records, nil
}

func (r *invitations) Create(ctx context.Context, record *Invitation, criteria ...repository.InsertCriteria) (*Invitation, error) {
	return r.CreateTx(ctx, r.db, record, criteria...)
}

func (r *invitations) CreateTx(ctx context.Context, tx bun.IDB, record *Invitation, criteria ...repository.InsertCriteria) (*Invitation, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	created, err := r.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to insert invitation")
	}
	return created, nil
}

func (r *invitations) RedeemTx(ctx context.Context, tx bun.IDB, id uuid.UUID, userID int64) error {
	ok, err := requireAffected(tx.NewUpdate().
		Model((*Invitation)(nil)).
		Set("user_id = ?", userID).
		Where("id = ?", id).
		Where("user_id IS NULL").
		Exec(ctx))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to redeem invitation")
	}
	if !ok {
		return ErrInvalidToken
	}
	return nil
}
