package notification

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultQueue is the Redis list holding pending messages
const DefaultQueue = "mail"

// ErrQueueEmpty is returned by Pop when no message arrived in time
var ErrQueueEmpty = errors.New("queue is empty")

// RedisQueue is a FIFO of messages on a Redis list
type RedisQueue struct {
	client redis.UniversalClient
	key    string
}

// NewRedisQueue stores messages under "queue:{name}"
func NewRedisQueue(client redis.UniversalClient, name string) *RedisQueue {
	if name == "" {
		name = DefaultQueue
	}
	return &RedisQueue{client: client, key: "queue:" + name}
}

// Key is the Redis key of the list
func (q *RedisQueue) Key() string {
	return q.key
}

// Push appends msg to the queue
func (q *RedisQueue) Push(ctx context.Context, msg Message) error {
	raw, err := msg.Encode()
	if err != nil {
		return errors.Wrap(err, "failed to encode message")
	}
	if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
		return errors.Wrap(err, "failed to enqueue message")
	}
	return nil
}

// Pop blocks up to timeout for the oldest message
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (Message, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return Message{}, ErrQueueEmpty
	}
	if err != nil {
		return Message{}, err
	}

	// BRPOP replies with [key, value]
	if len(res) != 2 {
		return Message{}, errors.Errorf("unexpected reply length %d", len(res))
	}

	msg, err := DecodeMessage([]byte(res[1]))
	if err != nil {
		return Message{}, errors.Wrap(err, "failed to decode message")
	}
	return msg, nil
}

// Len returns the number of pending messages
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
