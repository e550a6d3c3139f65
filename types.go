package auth

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Logger is the logging contract used across the package. Arguments after
// the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) error
	// VerifyDummy burns the same time as a real comparison. It is used when
	// the identity is unknown so lookups can't be timed.
	VerifyDummy(password string)
}

// IDCodec obfuscates numeric ids for external display
type IDCodec interface {
	Encode(id int64) (string, error)
	Decode(hash string) (int64, error)
}

// Notifier delivers email notifications
type Notifier interface {
	Send(ctx context.Context, subject string, recipients []string, body string) error
}

// ViewRenderer renders a named template. fiber.Views satisfies it.
type ViewRenderer interface {
	Render(out io.Writer, name string, binding any, layout ...string) error
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] AUTH " + line(msg, args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] AUTH " + line(msg, args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] AUTH " + line(msg, args))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] AUTH " + line(msg, args))
}

func line(msg string, args []any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		b.WriteString(" ")
		if i+1 < len(args) {
			fmt.Fprintf(&b, "%v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, "%v", args[i])
		}
	}
	b.WriteString("\n")
	return b.String()
}

// NopLogger discards everything
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
