package activitymap_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	auth "github.com/goliatone/go-auth-starter"
	"github.com/goliatone/go-auth-starter/activitymap"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func TestNormalizeLifecycleEvent(t *testing.T) {
	out := activitymap.Normalize(auth.ActivityEvent{
		EventType:  auth.ActivityEventUserStatusChanged,
		Actor:      auth.SystemActor,
		UserID:     "42",
		FromStatus: auth.UserStatusActive,
		ToStatus:   auth.UserStatusInactive,
		Metadata:   map[string]any{"reason": "cli"},
		OccurredAt: ts,
	})

	assert.Equal(t, "cli", out.ActorID)
	assert.Equal(t, string(auth.ActivityEventUserStatusChanged), out.Verb)
	assert.Equal(t, "user", out.ObjectType)
	assert.Equal(t, "42", out.ObjectID)
	assert.Equal(t, "auth", out.Channel)
	assert.Equal(t, ts, out.OccurredAt)
	assert.Equal(t, map[string]any{
		"reason":                          "cli",
		activitymap.MetadataKeyActorType:  "system",
		activitymap.MetadataKeyFromStatus: "active",
		activitymap.MetadataKeyToStatus:   "inactive",
	}, out.Metadata)
}

func TestNormalizeFallbacks(t *testing.T) {
	t.Run("user id as actor", func(t *testing.T) {
		out := activitymap.Normalize(auth.ActivityEvent{EventType: auth.ActivityEventLogout, UserID: "7", OccurredAt: ts})
		assert.Equal(t, "7", out.ActorID)
		assert.Nil(t, out.Metadata)
	})

	t.Run("anonymous", func(t *testing.T) {
		out := activitymap.Normalize(auth.ActivityEvent{EventType: auth.ActivityEventLoginFailure, OccurredAt: ts})
		assert.Equal(t, "anonymous", out.ActorID)
		assert.Empty(t, out.ObjectID)
	})

	t.Run("options", func(t *testing.T) {
		out := activitymap.Normalize(auth.ActivityEvent{EventType: auth.ActivityEventLoginFailure},
			activitymap.WithChannel("web"),
			activitymap.WithObjectType("account"),
			activitymap.WithActorFallback("guest"),
			activitymap.WithClock(func() time.Time { return ts }),
		)
		assert.Equal(t, "web", out.Channel)
		assert.Equal(t, "account", out.ObjectType)
		assert.Equal(t, "guest", out.ActorID)
		assert.Equal(t, ts, out.OccurredAt)
	})

	t.Run("explicit actor type wins", func(t *testing.T) {
		out := activitymap.Normalize(auth.ActivityEvent{
			Actor:      auth.ActorRef{ID: "1", Type: "user"},
			Metadata:   map[string]any{activitymap.MetadataKeyActorType: "impersonated"},
			OccurredAt: ts,
		})
		assert.Equal(t, "impersonated", out.Metadata[activitymap.MetadataKeyActorType])
	})
}

func TestNormalizeDoesNotMutateEvent(t *testing.T) {
	meta := map[string]any{"remember": true}
	activitymap.Normalize(auth.ActivityEvent{
		Actor:      auth.ActorRef{ID: "1", Type: "user"},
		Metadata:   meta,
		OccurredAt: ts,
	})
	assert.Equal(t, map[string]any{"remember": true}, meta)
}

func newFeed(t *testing.T, size int64) *activitymap.Feed {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return activitymap.NewFeed(client, "", size)
}

func TestFeedKeepsLatest(t *testing.T) {
	ctx := context.Background()
	feed := newFeed(t, 2)

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, feed.Record(ctx, auth.ActivityEvent{
			EventType:  auth.ActivityEventLoginSuccess,
			Actor:      auth.ActorRef{ID: id, Type: "user"},
			UserID:     id,
			OccurredAt: ts,
		}))
	}

	records, err := feed.Latest(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "3", records[0].ActorID)
	assert.Equal(t, "2", records[1].ActorID)
	assert.Equal(t, ts, records[0].OccurredAt)

	none, err := feed.Latest(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTee(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	var seen []auth.ActivityEventType
	record := auth.ActivitySinkFunc(func(_ context.Context, e auth.ActivityEvent) error {
		seen = append(seen, e.EventType)
		return nil
	})
	fail := auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error { return boom })

	tee := activitymap.Tee{fail, nil, record}
	err := tee.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventLogout})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventLogout}, seen)
}
