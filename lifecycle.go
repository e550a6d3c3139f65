package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/uptrace/bun"
)

// UserStatus is the lifecycle state of a user, derived from is_active
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// StatusOf returns the lifecycle state of user
func StatusOf(user *User) UserStatus {
	if user == nil || !user.IsActive {
		return UserStatusInactive
	}
	return UserStatusActive
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor ActorRef
	User  *User
	From  UserStatus
	To    UserStatus
	Meta  TransitionMetadata
}

// TransitionHook runs inside the transition transaction, after the status
// update. Returning an error rolls the update back.
type TransitionHook func(ctx context.Context, tx bun.IDB, tc TransitionContext) error

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithTransitionHook adds a hook executed after the status update.
func WithTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.hooks = append(opts.hooks, h)
		}
	}
}

type transitionOptions struct {
	metadata TransitionMetadata
	hooks    []TransitionHook
}

// UserLifecycle activates and deactivates users
type UserLifecycle struct {
	repo     RepositoryManager
	now      func() time.Time
	activity ActivitySink
	logger   Logger
}

// LifecycleOption customizes UserLifecycle construction.
type LifecycleOption func(*UserLifecycle)

// WithLifecycleClock injects a custom clock (useful for tests).
func WithLifecycleClock(clock func() time.Time) LifecycleOption {
	return func(l *UserLifecycle) {
		if clock != nil {
			l.now = clock
		}
	}
}

// WithLifecycleActivitySink sets the ActivitySink used to publish lifecycle events.
func WithLifecycleActivitySink(sink ActivitySink) LifecycleOption {
	return func(l *UserLifecycle) {
		l.activity = normalizeActivitySink(sink)
	}
}

// WithLifecycleLogger overrides the logger used for sink failures.
func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(l *UserLifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewUserLifecycle returns a lifecycle backed by repo
func NewUserLifecycle(repo RepositoryManager, opts ...LifecycleOption) *UserLifecycle {
	l := &UserLifecycle{
		repo:     repo,
		now:      DefaultClock,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Activate moves username to the active state
func (l *UserLifecycle) Activate(ctx context.Context, actor ActorRef, username string, opts ...TransitionOption) (*User, error) {
	return l.Transition(ctx, actor, username, UserStatusActive, opts...)
}

// Deactivate moves username to the inactive state
func (l *UserLifecycle) Deactivate(ctx context.Context, actor ActorRef, username string, opts ...TransitionOption) (*User, error) {
	return l.Transition(ctx, actor, username, UserStatusInactive, opts...)
}

// Transition moves username to target. Moving to the current state fails
// with ErrAlreadyActive or ErrNotActive.
func (l *UserLifecycle) Transition(ctx context.Context, actor ActorRef, username string, target UserStatus, opts ...TransitionOption) (*User, error) {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	var user *User
	var from UserStatus

	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = l.repo.Users().GetByUsernameTx(ctx, tx, username)
		if err != nil {
			if IsRecordNotFound(err) {
				return ErrUserNotFound
			}
			return err
		}

		from = StatusOf(user)
		active := target == UserStatusActive

		changed, err := l.repo.Users().SetActiveTx(ctx, tx, user.ID, active)
		if err != nil {
			return err
		}
		if !changed {
			if active {
				return ErrAlreadyActive
			}
			return ErrNotActive
		}
		user.IsActive = active

		tc := TransitionContext{
			Actor: actor,
			User:  user,
			From:  from,
			To:    target,
			Meta:  options.metadata,
		}
		for _, hook := range options.hooks {
			if err := hook(ctx, tx, tc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, l.activity, l.logger, ActivityEvent{
		EventType:  ActivityEventUserStatusChanged,
		Actor:      actor,
		UserID:     strconv.FormatInt(user.ID, 10),
		FromStatus: from,
		ToStatus:   target,
		Metadata:   transitionMetadata(options.metadata),
		OccurredAt: l.now(),
	})

	return user, nil
}

func transitionMetadata(meta TransitionMetadata) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 {
		return nil
	}

	result := map[string]any{}
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	return result
}
