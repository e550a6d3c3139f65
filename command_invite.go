package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type IssueInvitationMessage struct {
	Owner      *User  `json:"-"`
	Email      string `json:"email" form:"email"`
	OnResponse func(invitation *Invitation)
}

// Validate will run validation rules
func (m IssueInvitationMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, validation.Length(4, 255), is.Email),
	)
}

type IssueInvitationHandler struct {
	repo     RepositoryManager
	notifier Notifier
	emails   *EmailComposer
	clock    Clock
	activity ActivitySink
	logger   Logger
}

// NewIssueInvitationHandler creates a handler with sane defaults.
func NewIssueInvitationHandler(repo RepositoryManager, notifier Notifier, emails *EmailComposer) *IssueInvitationHandler {
	return &IssueInvitationHandler{
		repo:     repo,
		notifier: notifier,
		emails:   emails,
		clock:    DefaultClock,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithClock overrides the time source
func (h *IssueInvitationHandler) WithClock(clock Clock) *IssueInvitationHandler {
	h.clock = normalizeClock(clock)
	return h
}

// WithActivitySink sets the sink used to emit invitation events.
func (h *IssueInvitationHandler) WithActivitySink(sink ActivitySink) *IssueInvitationHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *IssueInvitationHandler) WithLogger(logger Logger) *IssueInvitationHandler {
	h.logger = normalizeLogger(logger)
	return h
}

// Execute spends one invitation of the owner and mails the signup link.
// The counter, the ledger row and the delivery succeed or fail together.
func (h *IssueInvitationHandler) Execute(ctx context.Context, event IssueInvitationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during invitation issuance")
	default:
		return h.execute(ctx, event)
	}
}

func (h *IssueInvitationHandler) execute(ctx context.Context, event IssueInvitationMessage) error {
	if event.Owner == nil || !event.Owner.IsActive {
		return ErrInactiveUser
	}

	if err := event.Validate(); err != nil {
		return NewValidationError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	invitation := &Invitation{OwnerID: event.Owner.ID}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := h.repo.Users().DecrementInvitationsTx(ctx, tx, event.Owner.ID); err != nil {
			return err
		}

		token, err := uniqueToken(ctx, tx, h.repo.Invitations().TokenExistsTx)
		if err != nil {
			return err
		}

		invitation.Token = token
		invitation.Expiration = h.clock().Add(InvitationTTL)

		if _, err := h.repo.Invitations().CreateTx(ctx, tx, invitation); err != nil {
			return err
		}

		body, err := h.emails.Compose("invite", map[string]any{
			"user":        event.Owner,
			"invitation":  invitation,
			"signup_link": h.emails.URL("/signup/" + invitation.Token),
		})
		if err != nil {
			return err
		}

		h.logger.Debug("generated invitation email", "body", body)

		subject := h.emails.SiteName() + " invitation"
		if err := h.notifier.Send(ctx, subject, []string{event.Email}, body); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to send invitation")
		}

		return nil
	})

	if err != nil {
		if !errors.Is(err, ErrNoInvitationsLeft) {
			h.logger.Error("failed to create or send invitation", "owner_id", event.Owner.ID, "error", err)
		}
		return err
	}

	event.Owner.Invitations--
	h.logger.Info("invitation sent", "owner", event.Owner.Username, "email", event.Email)

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventInvitationIssued,
		Actor:     userActor(event.Owner),
		UserID:    strconv.FormatInt(event.Owner.ID, 10),
		Metadata: map[string]any{
			"invitation_id": invitation.ID.String(),
			"email":         event.Email,
		},
		OccurredAt: h.clock(),
	})

	if event.OnResponse != nil {
		event.OnResponse(invitation)
	}

	return nil
}
