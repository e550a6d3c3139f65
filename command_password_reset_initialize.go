package auth

import (
	"context"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// PasswordResetRequestedMessage is the generic reply to every forgot
// password submission
const PasswordResetRequestedMessage = "A password reset token has been sent"

type InitializePasswordResetMessage struct {
	Email string `json:"email" form:"email"`
}

// Validate will run validation rules
func (p InitializePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, validation.Length(4, 255), is.Email),
	)
}

type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	notifier Notifier
	emails   *EmailComposer
	clock    Clock
	activity ActivitySink
	logger   Logger
}

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(repo RepositoryManager, notifier Notifier, emails *EmailComposer) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		notifier: notifier,
		emails:   emails,
		clock:    DefaultClock,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithClock overrides the time source
func (h *InitializePasswordResetHandler) WithClock(clock Clock) *InitializePasswordResetHandler {
	h.clock = normalizeClock(clock)
	return h
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	h.logger = normalizeLogger(logger)
	return h
}

// Execute issues a reset token when email belongs to an active user. It
// only fails on invalid input or a cancelled context. Every other outcome
// looks the same to the caller.
func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password reset initialization")
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	if err := event.Validate(); err != nil {
		return NewValidationError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var user *User

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			return err
		}

		if !user.IsActive {
			return recordNotFound("email", event.Email)
		}

		token, err := uniqueToken(ctx, tx, h.repo.Users().ResetTokenExistsTx)
		if err != nil {
			return err
		}

		expiration := h.clock().Add(PasswordResetTTL)
		if err := h.repo.Users().SetPasswordResetTx(ctx, tx, user.ID, token, expiration); err != nil {
			return err
		}

		body, err := h.emails.Compose("forgot_password", map[string]any{
			"user":       user,
			"reset_link": h.emails.URL("/reset-password/" + token),
			"expiration": expiration,
		})
		if err != nil {
			return err
		}

		return h.notifier.Send(ctx, "Password reset", []string{user.Email}, body)
	})

	if err != nil {
		if IsRecordNotFound(err) {
			h.logger.Debug("password reset requested for unknown email")
			return nil
		}
		h.logger.Error("failed to issue password reset token", "email", event.Email, "error", err)
		return nil
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventPasswordResetRequest,
		Actor:      userActor(user),
		UserID:     strconv.FormatInt(user.ID, 10),
		OccurredAt: h.clock(),
	})

	return nil
}

type tokenExistsFunc func(ctx context.Context, tx bun.IDB, token string) (bool, error)

// uniqueToken generates tokens until exists reports one as unused
func uniqueToken(ctx context.Context, tx bun.IDB, exists tokenExistsFunc) (string, error) {
	for {
		token, err := GenerateToken(TokenLength)
		if err != nil {
			return "", err
		}

		taken, err := exists(ctx, tx, token)
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check token uniqueness")
		}
		if !taken {
			return token, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
	}
}
