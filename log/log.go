package log

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

type LogLevel int

const (
	DEBUG LogLevel = iota + 1
	INFO
	WARN
	ERROR
)

func (l LogLevel) slog() slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// F is a set of structured fields attached to a log line
type F map[string]interface{}

// Logger writes structured, correlation-aware log lines.
type Logger struct {
	l *slog.Logger
}

// New returns a Logger writing zerolog console lines to w
func New(w io.Writer, lvl LogLevel) *Logger {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Stamp, NoColor: true}).
		With().
		Timestamp().
		Logger()
	return FromHandler(zeroslog.NewHandler(zl, &zeroslog.HandlerOptions{Level: lvl.slog()}))
}

// FromHandler wraps any slog handler
func FromHandler(h slog.Handler) *Logger {
	return &Logger{slog.New(h)}
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return New(io.Discard, ERROR)
}

var std atomic.Pointer[Logger]

func init() {
	std.Store(New(os.Stderr, INFO))
}

// Default returns the process default logger
func Default() *Logger {
	return std.Load()
}

// SetDefault replaces the process default logger
func SetDefault(l *Logger) {
	std.Store(l)
}

// Slog exposes the underlying slog logger
func (l *Logger) Slog() *slog.Logger {
	return l.l
}

func (l *Logger) log(ctx context.Context, lvl slog.Level, msg string, fields F) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.l.Enabled(ctx, lvl) {
		return
	}
	l.l.LogAttrs(ctx, lvl, msg, attrs(ctx, fields)...)
}

func attrs(ctx context.Context, fields F) []slog.Attr {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]slog.Attr, 0, len(fields)+1)
	if id := GetID(ctx); id != uuid.Nil {
		out = append(out, slog.String("id", id.String()))
	}
	for _, k := range keys {
		out = append(out, slog.Any(k, fields[k]))
	}
	return out
}

func (l *Logger) Debug(ctx context.Context, msg string, fields F) {
	l.log(ctx, slog.LevelDebug, msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields F) {
	l.log(ctx, slog.LevelInfo, msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields F) {
	l.log(ctx, slog.LevelWarn, msg, fields)
}

// Error logs msg and returns it as an error, so callers can log and return in one go
func (l *Logger) Error(ctx context.Context, msg interface{}, fields F) error {
	err := interfaceToError(msg)
	l.log(ctx, slog.LevelError, err.Error(), fields)
	return err
}

func Debug(ctx context.Context, msg string, fields F) {
	Default().Debug(ctx, msg, fields)
}

func Info(ctx context.Context, msg string, fields F) {
	Default().Info(ctx, msg, fields)
}

func Warn(ctx context.Context, msg string, fields F) {
	Default().Warn(ctx, msg, fields)
}

func Error(ctx context.Context, msg interface{}, fields F) error {
	return Default().Error(ctx, msg, fields)
}

func Fatal(msg string, fields F) {
	Default().log(context.Background(), slog.LevelError, "FATAL: "+msg, fields)
	os.Exit(1)
}

func interfaceToError(msg interface{}) error {
	switch v := msg.(type) {
	case string:
		return errors.New(v)
	case error:
		return v
	default:
		return errors.New(fmt.Sprint(v))
	}
}
