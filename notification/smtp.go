package notification

import (
	"context"

	"github.com/pkg/errors"
	"github.com/wneessen/go-mail"
)

// SMTPConfig holds the SMTP server settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      bool
}

// SMTPMailer sends plain text messages through an SMTP server
type SMTPMailer struct {
	config SMTPConfig
}

// NewSMTPMailer returns a mailer for config
func NewSMTPMailer(config SMTPConfig) *SMTPMailer {
	if config.Port == 0 {
		config.Port = 587
	}
	return &SMTPMailer{config: config}
}

func (s *SMTPMailer) client() (*mail.Client, error) {
	opts := []mail.Option{mail.WithPort(s.config.Port)}

	if s.config.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.config.Username),
			mail.WithPassword(s.config.Password),
		)
	}

	return mail.NewClient(s.config.Host, opts...)
}

// Build turns msg into a go-mail message
func (s *SMTPMailer) Build(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.config.From); err != nil {
		return nil, errors.Wrapf(err, "invalid sender %q", s.config.From)
	}
	if err := m.To(msg.Recipients...); err != nil {
		return nil, errors.Wrap(err, "invalid recipients")
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

// Deliver dials the server and sends msg
func (s *SMTPMailer) Deliver(ctx context.Context, msg Message) error {
	m, err := s.Build(msg)
	if err != nil {
		return err
	}

	c, err := s.client()
	if err != nil {
		return errors.Wrap(err, "failed to create smtp client")
	}

	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return errors.Wrap(err, "failed to send email")
	}
	return nil
}

// LogMailer writes messages to the logger instead of sending them
type LogMailer struct {
	logger Logger
}

// NewLogMailer is used when no SMTP host is configured
func NewLogMailer(logger Logger) *LogMailer {
	return &LogMailer{logger: normalizeLogger(logger)}
}

func (l *LogMailer) Deliver(_ context.Context, msg Message) error {
	l.logger.Info("email",
		"id", msg.ID,
		"subject", msg.Subject,
		"recipients", msg.Recipients,
		"body", msg.Body,
	)
	return nil
}
