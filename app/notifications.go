package app

import (
	"context"

	"github.com/goliatone/go-auth-starter/notification"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// WithRedis connects to Redis when an address is configured
func WithRedis(ctx context.Context, app *App) error {
	cfg := app.Config()
	if app.Redis() != nil || !cfg.RedisEnabled() {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return errors.Wrapf(err, "failed to connect to redis at %s", cfg.Redis.Addr)
	}

	app.SetRedis(client)
	return nil
}

// WithNotifications picks the mailer and, with tasks enabled, binds the
// queue so the gateway sends through the worker.
func WithNotifications(_ context.Context, app *App) error {
	cfg := app.Config()

	if app.Mailer() == nil {
		if cfg.Mail.Host == "" {
			app.SetMailer(notification.NewLogMailer(app.GetLogger("mail")))
		} else {
			app.SetMailer(notification.NewSMTPMailer(notification.SMTPConfig{
				Host:     cfg.Mail.Host,
				Port:     cfg.Mail.Port,
				Username: cfg.Mail.Username,
				Password: cfg.Mail.Password,
				From:     cfg.Mail.From,
				TLS:      cfg.Mail.TLS,
			}))
		}
	}

	app.gateway = notification.NewGateway(app.Mailer()).WithLogger(app.GetLogger("notifications"))

	if !cfg.Tasks.Enabled {
		return nil
	}

	if app.Redis() == nil {
		return errors.New("background tasks require redis.addr")
	}

	queue := notification.NewRedisQueue(app.Redis(), cfg.Tasks.Queue)
	if err := app.queue.Bind(queue); err != nil {
		return err
	}
	app.gateway.WithQueue(queue)

	return nil
}

// Worker consumes the mail queue. Tasks must be enabled.
func (a *App) Worker() *notification.Worker {
	return notification.NewWorker(a.queue.Get(), a.Mailer()).
		WithLogger(a.GetLogger("worker"))
}
