package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	auth "github.com/goliatone/go-auth-starter"
	"github.com/goliatone/go-auth-starter/app"
	"github.com/goliatone/go-auth-starter/config"
	"github.com/goliatone/go-auth-starter/logging"
	"github.com/goliatone/go-print"
	flag "github.com/spf13/pflag"

	_ "time/tzdata"
)

const usage = `usage: app <command> [flags]

commands:
  serve                                  run the HTTP server
  worker                                 run the mail worker
  migrate                                apply database migrations
  user create   --username --email --password
  user info     [--username | --email] [--json]
  user activate <username>
  user deactivate <username>
  user change-password <username> --password
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	lgr, err := logging.New(logging.Config{
		Level: cfg.Log.Level,
		Dev:   cfg.Log.Dev,
		File:  cfg.Log.File,
	})
	if err != nil {
		return err
	}

	if cfg.App.Debug {
		fmt.Println(print.MaybeHighlightJSON(cfg))
	}

	a := app.New(cfg, lgr)
	defer a.Close()

	switch command {
	case "serve":
		if err := app.Bootstrap(ctx, a); err != nil {
			return err
		}
		if err := a.Migrate(ctx); err != nil {
			return err
		}
		return a.Serve(ctx)
	case "worker":
		if !cfg.Tasks.Enabled {
			return fmt.Errorf("background tasks are disabled, set APP_TASKS__ENABLED=true")
		}
		if err := app.Bootstrap(ctx, a); err != nil {
			return err
		}
		return a.Worker().Run(ctx)
	case "migrate":
		if err := app.WithPersistence(ctx, a); err != nil {
			return err
		}
		return a.Migrate(ctx)
	case "user":
		if len(args) == 0 {
			return fmt.Errorf("missing user subcommand\n%s", usage)
		}
		if err := app.BootstrapAdmin(ctx, a); err != nil {
			return err
		}
		return userCommand(ctx, a, args[0], args[1:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

func userCommand(ctx context.Context, a *app.App, sub string, args []string) error {
	fs := flag.NewFlagSet("user "+sub, flag.ContinueOnError)
	username := fs.String("username", "", "username")
	email := fs.String("email", "", "email")
	password := fs.String("password", "", "password")
	asJSON := fs.Bool("json", false, "print as JSON")

	if err := fs.Parse(args); err != nil {
		return err
	}

	// positional username for activate, deactivate and change-password
	if *username == "" && fs.NArg() > 0 {
		*username = fs.Arg(0)
	}

	admin := a.Admin()

	switch sub {
	case "create":
		user, err := admin.CreateUser(ctx, auth.CreateUserMessage{
			Username: *username,
			Email:    *email,
			Password: *password,
		})
		if err != nil {
			return err
		}
		fmt.Printf("User %s created\n", user.Username)
	case "info":
		info, err := admin.UserInfo(ctx, *username, *email)
		if err != nil {
			return err
		}
		if *asJSON {
			fmt.Println(print.MaybePrettyJSON(info))
			return nil
		}
		fmt.Printf("Username:    %s\n", info.Username)
		fmt.Printf("Email:       %s\n", info.Email)
		fmt.Printf("Active:      %t\n", info.IsActive)
		fmt.Printf("Joined:      %s UTC\n", info.JoinedAt.UTC().Format("2006-01-02 15:04:05"))
		fmt.Printf("Locale:      %s\n", info.Locale)
		fmt.Printf("Timezone:    %s\n", info.Timezone)
		fmt.Printf("Invitations: %d\n", info.Invitations)
		fmt.Printf("Hashid:      %s\n", info.Hashid)
	case "activate":
		user, err := admin.Activate(ctx, *username)
		if err != nil {
			return err
		}
		fmt.Printf("User %s activated\n", user.Username)
	case "deactivate":
		user, err := admin.Deactivate(ctx, *username)
		if err != nil {
			return err
		}
		fmt.Printf("User %s deactivated\n", user.Username)
	case "change-password":
		if err := admin.ChangePassword(ctx, *username, *password); err != nil {
			return err
		}
		fmt.Printf("Password of %s changed\n", *username)
	default:
		return fmt.Errorf("unknown user subcommand %q\n%s", sub, usage)
	}
	return nil
}
