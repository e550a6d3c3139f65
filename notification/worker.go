package notification

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// DefaultPollTimeout bounds each blocking pop so the worker notices a
// cancelled context.
const DefaultPollTimeout = 2 * time.Second

// Dequeuer is the consuming side of the queue
type Dequeuer interface {
	Pop(ctx context.Context, timeout time.Duration) (Message, error)
}

// Worker drains the queue and delivers each message once
type Worker struct {
	queue   Dequeuer
	mailer  Mailer
	timeout time.Duration
	logger  Logger
}

func NewWorker(queue Dequeuer, mailer Mailer) *Worker {
	return &Worker{
		queue:   queue,
		mailer:  mailer,
		timeout: DefaultPollTimeout,
		logger:  nopLogger{},
	}
}

func (w *Worker) WithLogger(logger Logger) *Worker {
	w.logger = normalizeLogger(logger)
	return w
}

func (w *Worker) WithPollTimeout(timeout time.Duration) *Worker {
	if timeout > 0 {
		w.timeout = timeout
	}
	return w
}

// Run processes messages until ctx is done
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("mail worker started")
	defer w.logger.Info("mail worker stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		if _, err := w.ProcessOne(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("failed to read queue", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// ProcessOne waits for a single message and delivers it. It reports
// whether a message was taken from the queue. Delivery failures are
// logged and dropped.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	msg, err := w.queue.Pop(ctx, w.timeout)
	if errors.Is(err, ErrQueueEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := w.mailer.Deliver(ctx, msg); err != nil {
		w.logger.Error("failed to deliver email", "id", msg.ID, "subject", msg.Subject, "error", err)
		return true, nil
	}

	w.logger.Info("email delivered", "id", msg.ID, "subject", msg.Subject)
	return true, nil
}
