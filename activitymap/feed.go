package activitymap

import (
	"context"
	"encoding/json"

	auth "github.com/goliatone/go-auth-starter"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultFeedKey is the Redis list holding the activity feed
	DefaultFeedKey = "activity:auth"
	// DefaultFeedSize is how many records the feed keeps
	DefaultFeedSize = 1000
)

// Feed is an auth.ActivitySink that keeps the latest normalized records in
// a capped Redis list, newest first.
type Feed struct {
	client redis.UniversalClient
	key    string
	size   int64
	opts   options
}

var _ auth.ActivitySink = (*Feed)(nil)

// NewFeed stores records under key, keeping at most size of them
func NewFeed(client redis.UniversalClient, key string, size int64, opts ...Option) *Feed {
	if key == "" {
		key = DefaultFeedKey
	}
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{client: client, key: key, size: size, opts: newOptions(opts)}
}

// Record implements auth.ActivitySink
func (f *Feed) Record(ctx context.Context, event auth.ActivityEvent) error {
	raw, err := json.Marshal(normalize(event, f.opts))
	if err != nil {
		return errors.Wrap(err, "failed to encode activity record")
	}

	_, err = f.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, f.key, raw)
		pipe.LTrim(ctx, f.key, 0, f.size-1)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to append activity record")
	}
	return nil
}

// Latest returns up to n records, newest first
func (f *Feed) Latest(ctx context.Context, n int64) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}

	items, err := f.client.LRange(ctx, f.key, 0, n-1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read activity feed")
	}

	records := make([]Record, 0, len(items))
	for _, item := range items {
		var r Record
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, errors.Wrap(err, "failed to decode activity record")
		}
		records = append(records, r)
	}
	return records, nil
}

// Tee fans an event out to every sink, returning the first failure
type Tee []auth.ActivitySink

// Record implements auth.ActivitySink
func (t Tee) Record(ctx context.Context, event auth.ActivityEvent) error {
	var first error
	for _, sink := range t {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
