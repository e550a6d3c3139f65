package auth

import (
	"context"
	"strconv"
	"strings"

	"github.com/uptrace/bun"
)

const identitySeparator = "_"

// EncodeIdentity returns the session identity of a user: "{id}_{serial}"
func EncodeIdentity(user *User) string {
	return strconv.FormatInt(user.ID, 10) + identitySeparator + user.Serial
}

// DecodeIdentity splits an identity on the first separator
func DecodeIdentity(token string) (int64, string, error) {
	raw, serial, found := strings.Cut(token, identitySeparator)
	if !found {
		return 0, "", ErrMalformedIdentity
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, "", withCause(ErrMalformedIdentity, err)
	}

	return id, serial, nil
}

// IdentityVerifier resolves session identities to active users
type IdentityVerifier struct {
	repo   RepositoryManager
	logger Logger
}

// NewIdentityVerifier returns a verifier reading from repo
func NewIdentityVerifier(repo RepositoryManager, logger Logger) *IdentityVerifier {
	return &IdentityVerifier{
		repo:   repo,
		logger: normalizeLogger(logger),
	}
}

// Verify returns the user behind token. Unknown users, serial mismatches
// and inactive users all come back as ErrNoSession.
func (v *IdentityVerifier) Verify(ctx context.Context, token string) (*User, error) {
	return v.VerifyTx(ctx, v.repo.DB(), token)
}

func (v *IdentityVerifier) VerifyTx(ctx context.Context, tx bun.IDB, token string) (*User, error) {
	id, serial, err := DecodeIdentity(token)
	if err != nil {
		return nil, err
	}

	user, err := v.repo.Users().GetByIDTx(ctx, tx, id)
	if err != nil {
		if IsRecordNotFound(err) {
			return nil, ErrNoSession
		}
		v.logger.Error("identity lookup failed", "user_id", id, "error", err)
		return nil, withCause(ErrNoSession, err)
	}

	if user.Serial != serial || !user.IsActive {
		return nil, ErrNoSession
	}

	return user, nil
}
