package auth

import (
	"context"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type CreateUserMessage struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (m CreateUserMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Username, validation.Required, validation.Length(1, 50)),
		validation.Field(&m.Email, validation.Required, validation.Length(4, 255), is.Email),
		validation.Field(&m.Password, validation.Required, validation.Length(1, 255)),
	)
}

// UserInfo is the administrative view of a user
type UserInfo struct {
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	IsActive    bool      `json:"is_active"`
	JoinedAt    time.Time `json:"joined_at"`
	Locale      string    `json:"locale"`
	Timezone    string    `json:"timezone"`
	Invitations int       `json:"invitations"`
	Hashid      string    `json:"hashid"`
}

// UserAdmin implements the administrative user operations
type UserAdmin struct {
	repo      RepositoryManager
	hasher    PasswordHasher
	codec     IDCodec
	lifecycle *UserLifecycle
	clock     Clock
	activity  ActivitySink
	logger    Logger
}

// NewUserAdmin creates an admin with sane defaults.
func NewUserAdmin(repo RepositoryManager, hasher PasswordHasher, codec IDCodec) *UserAdmin {
	return &UserAdmin{
		repo:      repo,
		hasher:    hasher,
		codec:     codec,
		lifecycle: NewUserLifecycle(repo),
		clock:     DefaultClock,
		activity:  noopActivitySink{},
		logger:    defLogger{},
	}
}

// WithActivitySink sets the sink used by every admin operation.
func (a *UserAdmin) WithActivitySink(sink ActivitySink) *UserAdmin {
	a.activity = normalizeActivitySink(sink)
	a.lifecycle = NewUserLifecycle(a.repo,
		WithLifecycleActivitySink(a.activity),
		WithLifecycleLogger(a.logger),
		WithLifecycleClock(a.clock),
	)
	return a
}

// WithLogger overrides the logger used by the admin.
func (a *UserAdmin) WithLogger(logger Logger) *UserAdmin {
	a.logger = normalizeLogger(logger)
	a.lifecycle.logger = a.logger
	return a
}

// CreateUser stores a new active user
func (a *UserAdmin) CreateUser(ctx context.Context, msg CreateUserMessage) (*User, error) {
	msg.Username = strings.TrimSpace(msg.Username)
	msg.Email = strings.TrimSpace(msg.Email)

	if err := msg.Validate(); err != nil {
		return nil, NewValidationError(err)
	}

	hash, err := a.hasher.Hash(msg.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	user := &User{
		Username:    msg.Username,
		Email:       msg.Email,
		Password:    hash,
		IsActive:    true,
		Invitations: DefaultInvitations,
		JoinedAt:    a.clock(),
	}

	err = a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = a.repo.Users().CreateTx(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, a.activity, a.logger, ActivityEvent{
		EventType:  ActivityEventUserCreated,
		Actor:      SystemActor,
		UserID:     strconv.FormatInt(user.ID, 10),
		OccurredAt: a.clock(),
	})

	return user, nil
}

// UserInfo looks a user up by username, or by email when no username is given
func (a *UserAdmin) UserInfo(ctx context.Context, username, email string) (*UserInfo, error) {
	var user *User
	var err error

	switch {
	case strings.TrimSpace(username) != "":
		user, err = a.repo.Users().GetByUsername(ctx, username)
	case strings.TrimSpace(email) != "":
		user, err = a.repo.Users().GetByEmail(ctx, email)
	default:
		return nil, goerrors.New("username or email required", goerrors.CategoryBadInput)
	}

	if err != nil {
		if IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user")
	}

	hid, err := a.codec.Encode(user.ID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode user id")
	}

	return &UserInfo{
		Username:    user.Username,
		Email:       user.Email,
		IsActive:    user.IsActive,
		JoinedAt:    user.JoinedAt.UTC(),
		Locale:      user.Locale,
		Timezone:    user.Timezone,
		Invitations: user.Invitations,
		Hashid:      hid,
	}, nil
}

// Activate marks username as active
func (a *UserAdmin) Activate(ctx context.Context, username string) (*User, error) {
	return a.lifecycle.Activate(ctx, SystemActor, username, adminTransition("activate")...)
}

// Deactivate marks username as inactive
func (a *UserAdmin) Deactivate(ctx context.Context, username string) (*User, error) {
	return a.lifecycle.Deactivate(ctx, SystemActor, username, adminTransition("deactivate")...)
}

func adminTransition(command string) []TransitionOption {
	return []TransitionOption{
		WithTransitionReason("cli"),
		WithTransitionMetadata(map[string]any{"command": command}),
	}
}

// ChangePassword rehashes the password of username and rotates the serial,
// ending every existing session of that user.
func (a *UserAdmin) ChangePassword(ctx context.Context, username, password string) error {
	if password == "" {
		return ErrNoEmptyString
	}

	hash, err := a.hasher.Hash(password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	var user *User
	err = a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = a.repo.Users().GetByUsernameTx(ctx, tx, username)
		if err != nil {
			if IsRecordNotFound(err) {
				return ErrUserNotFound
			}
			return err
		}

		serial, err := GenerateSerial(a.clock())
		if err != nil {
			return err
		}

		return a.repo.Users().UpdatePasswordTx(ctx, tx, user.ID, hash, serial)
	})
	if err != nil {
		return err
	}

	recordActivity(ctx, a.activity, a.logger, ActivityEvent{
		EventType:  ActivityEventPasswordChanged,
		Actor:      SystemActor,
		UserID:     strconv.FormatInt(user.ID, 10),
		OccurredAt: a.clock(),
	})

	return nil
}
