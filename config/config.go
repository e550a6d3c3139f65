package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	// EnvPrefix is stripped from environment overrides
	EnvPrefix = "APP_"
	// EnvConfigFile names the config file to load
	EnvConfigFile = "APP_CONFIG"
	// EnvNestingSeparator separates nested keys in env names
	EnvNestingSeparator = "__"

	// DefaultSecretKey is public. Deployments must override app.secret_key.
	DefaultSecretKey = "change-me-please-change-me-please"
	// DefaultMaxOpenConns keeps a single sqlite connection so in-memory
	// databases and writers share one handle.
	DefaultMaxOpenConns = 1
)

// ErrDefaultSecretKey is returned when app.secret_key was never overridden
var ErrDefaultSecretKey = errors.New("app.secret_key is the public default, set APP_APP__SECRET_KEY")

type App struct {
	Name            string   `koanf:"name"`
	BaseURL         string   `koanf:"base_url"`
	Languages       []string `koanf:"languages"`
	DefaultLocale   string   `koanf:"default_locale"`
	DefaultTimezone string   `koanf:"default_timezone"`
	Debug           bool     `koanf:"debug"`
	SecretKey       string   `koanf:"secret_key"`
}

type Server struct {
	Addr        string        `koanf:"addr"`
	ReadTimeout time.Duration `koanf:"read_timeout"`
}

type Database struct {
	DSN          string `koanf:"dsn"`
	Debug        bool   `koanf:"debug"`
	MaxOpenConns int    `koanf:"max_open_conns"`
}

type Hashid struct {
	Salt      string `koanf:"salt"`
	MinLength int    `koanf:"min_length"`
}

type Crypto struct {
	BcryptCost int `koanf:"bcrypt_cost"`
}

type Session struct {
	Expiration       time.Duration `koanf:"expiration"`
	RememberDuration time.Duration `koanf:"remember_duration"`
	CookieSecure     bool          `koanf:"cookie_secure"`
}

type Mail struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
	TLS      bool   `koanf:"tls"`
}

type Tasks struct {
	Enabled bool   `koanf:"enabled"`
	Queue   string `koanf:"queue"`
}

type Redis struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type Log struct {
	Level string `koanf:"level"`
	Dev   bool   `koanf:"dev"`
	File  string `koanf:"file"`
}

// Config is the typed runtime configuration
type Config struct {
	App      App      `koanf:"app"`
	Server   Server   `koanf:"server"`
	Database Database `koanf:"database"`
	Hashid   Hashid   `koanf:"hashid"`
	Crypto   Crypto   `koanf:"crypto"`
	Session  Session  `koanf:"session"`
	Mail     Mail     `koanf:"mail"`
	Tasks    Tasks    `koanf:"tasks"`
	Redis    Redis    `koanf:"redis"`
	Log      Log      `koanf:"log"`
}

// RedisEnabled reports whether a Redis server is configured
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}

// UsesDefaultSecret reports whether app.secret_key is the shipped value
func (c *Config) UsesDefaultSecret() bool {
	return c.App.SecretKey == "" || c.App.SecretKey == DefaultSecretKey
}

// CheckSecrets fails outside debug mode when the secret key is the default
func (c *Config) CheckSecrets() error {
	if c.UsesDefaultSecret() && !c.App.Debug {
		return ErrDefaultSecretKey
	}
	return nil
}

// Defaults holds every key with its default value
func Defaults() map[string]any {
	return map[string]any{
		"app.name":                  "Boilerplate",
		"app.base_url":              "http://localhost:8080",
		"app.languages":             []string{"en", "es"},
		"app.default_locale":        "en",
		"app.default_timezone":      "UTC",
		"app.debug":                 false,
		"app.secret_key":            DefaultSecretKey,
		"server.addr":               ":8080",
		"server.read_timeout":       "10s",
		"database.dsn":              "file:app.db?cache=shared",
		"database.debug":            false,
		"database.max_open_conns":   DefaultMaxOpenConns,
		"hashid.salt":               "change-me",
		"hashid.min_length":         10,
		"crypto.bcrypt_cost":        14,
		"session.expiration":        "24h",
		"session.remember_duration": "720h",
		"session.cookie_secure":     false,
		"mail.host":                 "",
		"mail.port":                 587,
		"mail.username":             "",
		"mail.password":             "",
		"mail.from":                 "no-reply@localhost",
		"mail.tls":                  true,
		"tasks.enabled":             false,
		"tasks.queue":               "mail",
		"redis.addr":                "",
		"redis.password":            "",
		"redis.db":                  0,
		"log.level":                 "info",
		"log.dev":                   false,
		"log.file":                  "",
	}
}

// Options tweak how Load builds the configuration
type Options struct {
	// File overrides APP_CONFIG
	File string
	// DotEnv is the .env file to load, ".env" when empty
	DotEnv string
	// Overrides are applied last
	Overrides map[string]any
}

// Load layers defaults, the config file, APP_ env vars and overrides
func Load(opts ...Options) (*Config, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	dotenv := o.DotEnv
	if dotenv == "" {
		dotenv = ".env"
	}
	if _, err := os.Stat(dotenv); err == nil {
		if err := godotenv.Load(dotenv); err != nil {
			return nil, errors.Wrapf(err, "failed to load %s", dotenv)
		}
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load defaults")
	}

	path := o.File
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", path)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load environment")
	}

	if len(o.Overrides) > 0 {
		if err := k.Load(confmap.Provider(o.Overrides, "."), nil); err != nil {
			return nil, errors.Wrap(err, "failed to load overrides")
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	return cfg, nil
}

// envKey maps APP_TASKS__ENABLED to tasks.enabled
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	if s == "CONFIG" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(s), strings.ToLower(EnvNestingSeparator), ".")
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	default:
		return nil, errors.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
}
