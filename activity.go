package auth

import (
	"context"
	"strconv"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess         ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure         ActivityEventType = "auth.login.failure"
	ActivityEventReauthSuccess        ActivityEventType = "auth.reauthenticate.success"
	ActivityEventReauthFailure        ActivityEventType = "auth.reauthenticate.failure"
	ActivityEventLogout               ActivityEventType = "auth.logout"
	ActivityEventPasswordResetRequest ActivityEventType = "auth.password.reset_requested"
	ActivityEventPasswordResetSuccess ActivityEventType = "auth.password.reset"
	ActivityEventPasswordChanged      ActivityEventType = "auth.password.changed"
	ActivityEventInvitationIssued     ActivityEventType = "invitation.issued"
	ActivityEventInvitationRedeemed   ActivityEventType = "invitation.redeemed"
	ActivityEventUserCreated          ActivityEventType = "user.created"
	ActivityEventUserStatusChanged    ActivityEventType = "user.status.changed"
)

// ActorRef identifies who triggered an event
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	FromStatus UserStatus
	ToStatus   UserStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// LoggerActivitySink writes events to a Logger
type LoggerActivitySink struct {
	Logger Logger
}

// Record implements ActivitySink.
func (s LoggerActivitySink) Record(_ context.Context, event ActivityEvent) error {
	args := []any{
		"event", event.EventType,
		"actor", event.Actor.Type + ":" + event.Actor.ID,
		"user_id", event.UserID,
	}
	if event.FromStatus != "" || event.ToStatus != "" {
		args = append(args, "from", event.FromStatus, "to", event.ToStatus)
	}
	for k, v := range event.Metadata {
		args = append(args, k, v)
	}
	normalizeLogger(s.Logger).Info("activity", args...)
	return nil
}

func userActor(user *User) ActorRef {
	if user == nil {
		return ActorRef{Type: "anonymous"}
	}
	return ActorRef{ID: strconv.FormatInt(user.ID, 10), Type: "user"}
}

// SystemActor is used for CLI initiated changes
var SystemActor = ActorRef{ID: "cli", Type: "system"}

func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = DefaultClock()
	}
	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		normalizeLogger(logger).Warn("failed to record activity", "event", event.EventType, "error", err)
	}
}
