package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level, the encoder and the optional log file
type Config struct {
	Level string
	Dev   bool
	// File enables a daily rotated log file next to stdout when set
	File string
	// MaxAge is how long rotated files are kept
	MaxAge time.Duration
}

// LevelFromString maps level names to zap levels, info by default
func LevelFromString(l string) zapcore.Level {
	switch strings.ToLower(l) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a zap logger writing to stdout and, if configured, to a
// rotating file.
func New(cfg Config) (*zap.Logger, error) {
	return build(cfg, os.Stdout)
}

func build(cfg Config, out io.Writer) (*zap.Logger, error) {
	lvl := LevelFromString(cfg.Level)

	var encoder zapcore.Encoder
	if cfg.Dev {
		encoderCfg := zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	sinks := []zapcore.WriteSyncer{zapcore.AddSync(out)}
	if cfg.File != "" {
		rotator, err := newRotator(cfg)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, zapcore.AddSync(rotator))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), lvl)
	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Dev {
		opts = append(opts, zap.Development())
	}
	return zap.New(core, opts...), nil
}

func newRotator(cfg Config) (*rotatelogs.RotateLogs, error) {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}

	ext := filepath.Ext(cfg.File)
	base := strings.TrimSuffix(cfg.File, ext)

	return rotatelogs.New(
		base+".%Y%m%d"+ext,
		rotatelogs.WithLinkName(cfg.File),
		rotatelogs.WithMaxAge(maxAge),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
}

// ZapLogger adapts a sugared zap logger to the key/value Logger used by
// the auth package.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps logger, skipping one caller frame for the adapter
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// Named returns a child logger
func (l *ZapLogger) Named(name string) *ZapLogger {
	return &ZapLogger{sugar: l.sugar.Named(name)}
}

func (l *ZapLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *ZapLogger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *ZapLogger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *ZapLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

// Sync flushes buffered entries
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}
