package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Enqueuer stores a message for later delivery
type Enqueuer interface {
	Push(ctx context.Context, msg Message) error
}

// Gateway sends emails directly through a Mailer or, when a queue is
// set, hands them off to the worker.
type Gateway struct {
	mailer Mailer
	queue  Enqueuer
	now    func() time.Time
	logger Logger
}

// NewGateway delivers synchronously through mailer
func NewGateway(mailer Mailer) *Gateway {
	return &Gateway{
		mailer: mailer,
		now:    time.Now,
		logger: nopLogger{},
	}
}

// WithQueue turns on the asynchronous path
func (g *Gateway) WithQueue(queue Enqueuer) *Gateway {
	g.queue = queue
	return g
}

func (g *Gateway) WithLogger(logger Logger) *Gateway {
	g.logger = normalizeLogger(logger)
	return g
}

// Async reports whether messages are queued
func (g *Gateway) Async() bool {
	return g.queue != nil
}

// Send delivers the email. Delivery errors are only returned on the
// synchronous path; queued messages fail in the worker.
func (g *Gateway) Send(ctx context.Context, subject string, recipients []string, body string) error {
	if len(recipients) == 0 {
		return errors.New("no recipients")
	}

	msg := Message{
		ID:         uuid.NewString(),
		Subject:    subject,
		Recipients: recipients,
		Body:       body,
		CreatedAt:  g.now().UTC(),
	}

	if g.queue != nil {
		if err := g.queue.Push(ctx, msg); err != nil {
			return err
		}
		g.logger.Debug("email queued", "id", msg.ID, "subject", subject)
		return nil
	}

	if err := g.mailer.Deliver(ctx, msg); err != nil {
		return errors.Wrapf(err, "failed to deliver email %s", msg.ID)
	}
	g.logger.Debug("email delivered", "id", msg.ID, "subject", subject)
	return nil
}
