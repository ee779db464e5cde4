// Package logger wraps zerolog with the fields every service log line
// carries: timestamp, level, service and the request ID found in context.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Fields map[string]any

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	SessionIDKey contextKey = "session_id"
)

var base = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init configures the process logger. format is "json" or "console".
func Init(serviceName, level, format string) {
	InitWriter(os.Stdout, serviceName, level, format)
}

func InitWriter(w io.Writer, serviceName, level, format string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	base = zerolog.New(w).Level(lvl).With().Timestamp().Str("service", serviceName).Logger()
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// WithSessionID tags every log line written with ctx with a session ID.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

func event(ctx context.Context, e *zerolog.Event, fields []Fields) *zerolog.Event {
	if id := RequestID(ctx); id != "" {
		e = e.Str("request_id", id)
	}
	if ctx != nil {
		if id, _ := ctx.Value(SessionIDKey).(string); id != "" {
			e = e.Str("session_id", id)
		}
	}
	if len(fields) > 0 && len(fields[0]) > 0 {
		e = e.Fields(map[string]any(fields[0]))
	}
	return e
}

func Debug(ctx context.Context, message string, fields ...Fields) {
	event(ctx, base.Debug(), fields).Msg(message)
}

func Info(ctx context.Context, message string, fields ...Fields) {
	event(ctx, base.Info(), fields).Msg(message)
}

func Warn(ctx context.Context, message string, fields ...Fields) {
	event(ctx, base.Warn(), fields).Msg(message)
}

func Error(ctx context.Context, message string, err error, fields ...Fields) {
	event(ctx, base.Error().Err(err), fields).Msg(message)
}
