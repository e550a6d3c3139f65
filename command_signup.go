package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type SignupMessage struct {
	Token           string `json:"token"`
	Username        string `json:"username" form:"username"`
	Email           string `json:"email" form:"email"`
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirm_password" form:"confirm_password"`
	Locale          string `json:"locale" form:"locale"`
	Timezone        string `json:"timezone" form:"timezone"`
	OnResponse      func(user *User)
}

// Validate checks the form against the supported locales
func (m SignupMessage) Validate(locales ...string) error {
	allowed := make([]any, 0, len(locales))
	for _, l := range locales {
		allowed = append(allowed, l)
	}
	if len(allowed) == 0 {
		allowed = append(allowed, DefaultLocale)
	}

	return validation.ValidateStruct(&m,
		validation.Field(&m.Username, validation.Required, validation.Length(4, 50)),
		validation.Field(&m.Email, validation.Required, validation.Length(4, 255), is.Email),
		validation.Field(&m.Password, validation.Required, validation.Length(8, 255)),
		validation.Field(&m.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(m.Password)),
		),
		validation.Field(&m.Locale, validation.Required, validation.In(allowed...)),
		validation.Field(&m.Timezone, validation.Required, validation.By(ValidateTimezone)),
	)
}

type SignupHandler struct {
	repo     RepositoryManager
	hasher   PasswordHasher
	locales  []string
	clock    Clock
	activity ActivitySink
	logger   Logger
}

// NewSignupHandler creates a handler with sane defaults.
func NewSignupHandler(repo RepositoryManager, hasher PasswordHasher, locales []string) *SignupHandler {
	return &SignupHandler{
		repo:     repo,
		hasher:   hasher,
		locales:  locales,
		clock:    DefaultClock,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithClock overrides the time source
func (h *SignupHandler) WithClock(clock Clock) *SignupHandler {
	h.clock = normalizeClock(clock)
	return h
}

// WithActivitySink sets the sink used to emit signup events.
func (h *SignupHandler) WithActivitySink(sink ActivitySink) *SignupHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *SignupHandler) WithLogger(logger Logger) *SignupHandler {
	h.logger = normalizeLogger(logger)
	return h
}

// VerifyInvitation returns the invitation behind token when it can still
// be redeemed. The expiration instant itself is no longer valid.
func (h *SignupHandler) VerifyInvitation(ctx context.Context, token string) (*Invitation, error) {
	return h.verifyInvitationTx(ctx, h.repo.DB(), token)
}

func (h *SignupHandler) verifyInvitationTx(ctx context.Context, tx bun.IDB, token string) (*Invitation, error) {
	invitation, err := h.repo.Invitations().GetByTokenTx(ctx, tx, token)
	if err != nil {
		if IsRecordNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve invitation")
	}

	if !invitation.IsRedeemableAt(h.clock()) {
		return nil, ErrInvalidToken
	}

	return invitation, nil
}

func (h *SignupHandler) Execute(ctx context.Context, event SignupMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during signup")
	default:
		return h.execute(ctx, event)
	}
}

func (h *SignupHandler) execute(ctx context.Context, event SignupMessage) error {
	event.Username = strings.TrimSpace(event.Username)
	event.Email = strings.TrimSpace(event.Email)

	if err := event.Validate(h.locales...); err != nil {
		return NewValidationError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user := &User{}
	var invitation *Invitation

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if invitation, err = h.verifyInvitationTx(ctx, tx, event.Token); err != nil {
			return err
		}

		hash, err := h.hasher.Hash(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.Username = event.Username
		user.Email = event.Email
		user.Password = hash
		user.IsActive = true
		user.Locale = event.Locale
		user.Timezone = event.Timezone
		user.Invitations = DefaultInvitations
		user.JoinedAt = h.clock()

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return err
		}

		return h.repo.Invitations().RedeemTx(ctx, tx, invitation.ID, user.ID)
	})

	if err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			h.logger.Info("signup rejected, duplicate user", "username", event.Username)
		} else if !errors.Is(err, ErrInvalidToken) {
			h.logger.Error("failed to create user", "error", err)
		}
		return err
	}

	uid := user.ID
	invitation.UserID = &uid

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventInvitationRedeemed,
		Actor:     userActor(user),
		UserID:    strconv.FormatInt(user.ID, 10),
		Metadata: map[string]any{
			"invitation_id": invitation.ID.String(),
			"owner_id":      invitation.OwnerID,
		},
		OccurredAt: h.clock(),
	})

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

// ValidateTimezone accepts names the time package can load
func ValidateTimezone(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := time.LoadLocation(s); err != nil {
		return errors.New("must be a valid timezone")
	}
	return nil
}
