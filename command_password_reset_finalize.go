package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Token          string `json:"token"`
	Password       string `json:"password" form:"password"`
	RetypePassword string `json:"retype_password" form:"retype_password"`
}

// Validate will run validation rules
func (p FinalizePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Password, validation.Required, validation.Length(1, 255)),
		validation.Field(&p.RetypePassword,
			validation.Required,
			validation.By(ValidateStringEquals(p.Password)),
		),
	)
}

type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	hasher   PasswordHasher
	notifier Notifier
	emails   *EmailComposer
	clock    Clock
	activity ActivitySink
	logger   Logger
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager, hasher PasswordHasher, notifier Notifier, emails *EmailComposer) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:     repo,
		hasher:   hasher,
		notifier: notifier,
		emails:   emails,
		clock:    DefaultClock,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithClock overrides the time source
func (h *FinalizePasswordResetHandler) WithClock(clock Clock) *FinalizePasswordResetHandler {
	h.clock = normalizeClock(clock)
	return h
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	h.logger = normalizeLogger(logger)
	return h
}

// VerifyResetToken returns the active user owning token when it has not
// expired. The expiration instant itself is still valid.
func (h *FinalizePasswordResetHandler) VerifyResetToken(ctx context.Context, token string) (*User, error) {
	return h.verifyResetTokenTx(ctx, h.repo.DB(), token)
}

func (h *FinalizePasswordResetHandler) verifyResetTokenTx(ctx context.Context, tx bun.IDB, token string) (*User, error) {
	user, err := h.repo.Users().GetByResetTokenTx(ctx, tx, token)
	if err != nil {
		if IsRecordNotFound(err) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve password reset token")
	}

	if !user.IsActive || user.PasswordResetExpiration == nil {
		return nil, ErrInvalidOrExpiredToken
	}

	if IsExpiredAt(*user.PasswordResetExpiration, h.clock()) {
		return nil, ErrInvalidOrExpiredToken
	}

	return user, nil
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password reset finalization")
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	if err := event.Validate(); err != nil {
		return NewValidationError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var user *User

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if user, err = h.verifyResetTokenTx(ctx, tx, event.Token); err != nil {
			return err
		}

		hash, err := h.hasher.Hash(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		serial, err := GenerateSerial(h.clock())
		if err != nil {
			return err
		}

		if err := h.repo.Users().UpdatePasswordTx(ctx, tx, user.ID, hash, serial); err != nil {
			return err
		}

		user.Password = hash
		user.Serial = serial
		user.ClearPasswordReset()
		return nil
	})

	if err != nil {
		return err
	}

	h.sendNotification(ctx, user)

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventPasswordResetSuccess,
		Actor:      userActor(user),
		UserID:     strconv.FormatInt(user.ID, 10),
		OccurredAt: h.clock(),
	})

	return nil
}

// sendNotification runs after commit, so failures are only logged
func (h *FinalizePasswordResetHandler) sendNotification(ctx context.Context, user *User) {
	body, err := h.emails.Compose("password_changed", map[string]any{
		"user": user,
	})
	if err != nil {
		h.logger.Error("failed to render password changed email", "user_id", user.ID, "error", err)
		return
	}

	if err := h.notifier.Send(ctx, "Password reset notification", []string{user.Email}, body); err != nil {
		h.logger.Error("failed to send password changed email", "user_id", user.ID, "error", err)
	}
}

// ValidateStringEquals checks that a value matches str
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}
