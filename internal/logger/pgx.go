package logger

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

// NewPgxTracer logs statements through zerolog at the given level. Query
// arguments are dropped since they carry account numbers and amounts.
// Statements slower than slow are promoted to warnings; zero disables that.
func NewPgxTracer(level zerolog.Level, slow time.Duration) *tracelog.TraceLog {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: timeFormat}).
		Level(level).
		With().
		Timestamp().
		Str("component", "database").
		Logger()

	return &tracelog.TraceLog{
		Logger:   pgxLogFunc(log, slow),
		LogLevel: GetPgxTraceLogLevel(level),
	}
}

func pgxLogFunc(log zerolog.Logger, slow time.Duration) tracelog.LoggerFunc {
	return func(ctx context.Context, lvl tracelog.LogLevel, msg string, data map[string]any) {
		fields := make(map[string]any, len(data))
		for k, v := range data {
			if k == "args" {
				continue
			}
			fields[k] = v
		}

		level := zerologLevel(lvl)
		if took, ok := data["time"].(time.Duration); ok && slow > 0 && took >= slow && level < zerolog.WarnLevel {
			level = zerolog.WarnLevel
			msg = "slow query: " + msg
		}
		log.WithLevel(level).Fields(fields).Msg(msg)
	}
}

// GetPgxTraceLogLevel converts a zerolog level to the pgx tracelog level.
func GetPgxTraceLogLevel(level zerolog.Level) tracelog.LogLevel {
	switch level {
	case zerolog.TraceLevel:
		return tracelog.LogLevelTrace
	case zerolog.DebugLevel:
		return tracelog.LogLevelDebug
	case zerolog.InfoLevel:
		return tracelog.LogLevelInfo
	case zerolog.WarnLevel:
		return tracelog.LogLevelWarn
	case zerolog.ErrorLevel:
		return tracelog.LogLevelError
	default:
		return tracelog.LogLevelNone
	}
}

func zerologLevel(lvl tracelog.LogLevel) zerolog.Level {
	switch lvl {
	case tracelog.LogLevelTrace:
		return zerolog.TraceLevel
	case tracelog.LogLevelDebug:
		return zerolog.DebugLevel
	case tracelog.LogLevelInfo:
		return zerolog.InfoLevel
	case tracelog.LogLevelWarn:
		return zerolog.WarnLevel
	case tracelog.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.NoLevel
	}
}
