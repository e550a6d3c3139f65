package notification

import (
	"context"
	"encoding/json"
	"time"
)

// Message is a single email waiting to be delivered
type Message struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Recipients []string  `json:"recipients"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// Encode serializes the message for the queue
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses a queued message
func DecodeMessage(raw []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(raw, &m)
	return m, err
}

// Mailer delivers a message to its recipients
type Mailer interface {
	Deliver(ctx context.Context, msg Message) error
}

// MailerFunc adapts a function to Mailer
type MailerFunc func(ctx context.Context, msg Message) error

func (f MailerFunc) Deliver(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Logger is the key/value logger used by this package
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
