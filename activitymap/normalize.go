package activitymap

import (
	"maps"
	"strings"
	"time"

	auth "github.com/goliatone/go-auth-starter"
)

const (
	// MetadataKeyActorType stores auth.ActorRef.Type
	MetadataKeyActorType = "actor_type"
	// MetadataKeyFromStatus stores the source status of a lifecycle transition
	MetadataKeyFromStatus = "from_status"
	// MetadataKeyToStatus stores the target status of a lifecycle transition
	MetadataKeyToStatus = "to_status"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "user"
	defaultActorID    = "anonymous"
)

// Record is the flat shape stored in the activity feed
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization
type Option func(*options)

type options struct {
	channel       string
	objectType    string
	actorFallback string
	clock         auth.Clock
}

// WithChannel sets the channel of every record
func WithChannel(channel string) Option {
	return func(o *options) {
		o.channel = strings.TrimSpace(channel)
	}
}

// WithObjectType sets the object type of every record
func WithObjectType(objectType string) Option {
	return func(o *options) {
		o.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback is used when neither the actor nor the user id is set
func WithActorFallback(actorID string) Option {
	return func(o *options) {
		o.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock stamps events that carry no OccurredAt
func WithClock(clock auth.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		clock:         auth.DefaultClock,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Normalize flattens an activity event. The actor falls back to the user
// id, and lifecycle statuses move into the metadata.
func Normalize(event auth.ActivityEvent, opts ...Option) Record {
	return normalize(event, newOptions(opts))
}

func normalize(event auth.ActivityEvent, o options) Record {
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = o.clock()
	}

	return Record{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.Actor.ID), strings.TrimSpace(event.UserID), o.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: o.objectType,
		ObjectID:   strings.TrimSpace(event.UserID),
		Channel:    o.channel,
		Metadata:   metadata(event),
		OccurredAt: occurredAt.UTC(),
	}
}

func metadata(event auth.ActivityEvent) map[string]any {
	out := map[string]any{}
	maps.Copy(out, event.Metadata)

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, exists := out[MetadataKeyActorType]; !exists {
			out[MetadataKeyActorType] = actorType
		}
	}
	if event.FromStatus != "" {
		out[MetadataKeyFromStatus] = string(event.FromStatus)
	}
	if event.ToStatus != "" {
		out[MetadataKeyToStatus] = string(event.ToStatus)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
