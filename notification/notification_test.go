package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (r *recordingMailer) Deliver(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingMailer) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.sent...)
}

func newQueue(t *testing.T) *RedisQueue {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisQueue(client, "test")
}

func TestGatewaySyncDelivers(t *testing.T) {
	mailer := &recordingMailer{}
	gw := NewGateway(mailer)

	err := gw.Send(context.Background(), "Password reset", []string{"alice@x.com"}, "hello")
	require.NoError(t, err)

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Password reset", sent[0].Subject)
	assert.Equal(t, []string{"alice@x.com"}, sent[0].Recipients)
	assert.Equal(t, "hello", sent[0].Body)
	assert.NotEmpty(t, sent[0].ID)
	assert.False(t, gw.Async())
}

func TestGatewaySyncReturnsDeliveryError(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("smtp down")}
	gw := NewGateway(mailer)

	err := gw.Send(context.Background(), "subject", []string{"alice@x.com"}, "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
}

func TestGatewayRequiresRecipients(t *testing.T) {
	gw := NewGateway(&recordingMailer{})
	assert.Error(t, gw.Send(context.Background(), "subject", nil, "body"))
}

func TestGatewayAsyncEnqueues(t *testing.T) {
	queue := newQueue(t)
	mailer := &recordingMailer{err: errors.New("never called")}
	gw := NewGateway(mailer).WithQueue(queue)

	ctx := context.Background()
	require.NoError(t, gw.Send(ctx, "Invite", []string{"bob@x.com"}, "join us"))
	assert.True(t, gw.Async())

	n, err := queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, mailer.Sent())
}

func TestQueueIsFIFO(t *testing.T) {
	queue := newQueue(t)
	ctx := context.Background()

	require.NoError(t, queue.Push(ctx, Message{ID: "1", Subject: "first"}))
	require.NoError(t, queue.Push(ctx, Message{ID: "2", Subject: "second"}))

	first, err := queue.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "first", first.Subject)

	second, err := queue.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "second", second.Subject)
}

type emptyQueue struct{}

func (emptyQueue) Pop(context.Context, time.Duration) (Message, error) {
	return Message{}, ErrQueueEmpty
}

func TestWorkerEmptyQueue(t *testing.T) {
	mailer := &recordingMailer{}
	took, err := NewWorker(emptyQueue{}, mailer).ProcessOne(context.Background())
	require.NoError(t, err)
	assert.False(t, took)
	assert.Empty(t, mailer.Sent())
}

func TestWorkerDeliversQueuedMessage(t *testing.T) {
	queue := newQueue(t)
	mailer := &recordingMailer{}
	ctx := context.Background()

	gw := NewGateway(mailer).WithQueue(queue)
	require.NoError(t, gw.Send(ctx, "Invite", []string{"bob@x.com"}, "join us"))

	worker := NewWorker(queue, mailer)
	took, err := worker.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, took)

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "join us", sent[0].Body)
}

func TestWorkerDropsFailedDelivery(t *testing.T) {
	queue := newQueue(t)
	ctx := context.Background()
	require.NoError(t, queue.Push(ctx, Message{ID: "1", Subject: "x", Recipients: []string{"a@x.com"}}))

	worker := NewWorker(queue, &recordingMailer{err: errors.New("boom")})
	took, err := worker.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, took)

	n, err := queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	queue := newQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	worker := NewWorker(queue, &recordingMailer{}).WithPollTimeout(10 * time.Millisecond)
	assert.NoError(t, worker.Run(ctx))
}

func TestSMTPMailerBuild(t *testing.T) {
	mailer := NewSMTPMailer(SMTPConfig{Host: "localhost", From: "no-reply@x.com"})

	msg, err := mailer.Build(Message{
		Subject:    "Password reset",
		Recipients: []string{"alice@x.com"},
		Body:       "reset link",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Password reset"}, msg.GetGenHeader(mail.HeaderSubject))
}

func TestSMTPMailerRejectsBadSender(t *testing.T) {
	mailer := NewSMTPMailer(SMTPConfig{Host: "localhost", From: "not an address"})
	_, err := mailer.Build(Message{Recipients: []string{"alice@x.com"}})
	assert.Error(t, err)
}

func TestLogMailer(t *testing.T) {
	assert.NoError(t, NewLogMailer(nil).Deliver(context.Background(), Message{Subject: "x"}))
}
