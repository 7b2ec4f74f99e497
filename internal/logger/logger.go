// Package logger wraps zerolog the way maumercado-task-queue-go/internal/logger
// does: a package-level global logger configured once at startup via Init,
// with With*-style helpers for attaching request-scoped fields. Adapter also
// exposes a Logger type satisfying internal/rebuild.Logger so the rebuild
// core can log through the same sink without importing zerolog directly.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

// Init configures the global logger. level is any zerolog level name
// ("debug", "info", "warn", "error"); an unparsable level falls back to info.
// pretty switches to a human-readable console writer for local/dev use.
func Init(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var output io.Writer = os.Stdout
	if pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	log = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Get returns the global zerolog.Logger for callers that want direct access
// to the fluent zerolog API.
func Get() *zerolog.Logger {
	return &log
}

// WithComponent scopes the global logger to a named subsystem, e.g.
// "poolsvc" or "driver".
func WithComponent(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithPool scopes the global logger to a pool UUID, mirroring the teacher's
// WithTask.
func WithPool(poolID string) zerolog.Logger {
	return log.With().Str("pool_id", poolID).Logger()
}

// WithRank scopes the global logger to a rank, mirroring the teacher's
// WithWorker.
func WithRank(rank uint32) zerolog.Logger {
	return log.With().Uint32("rank", rank).Logger()
}

func Debug() *zerolog.Event { return log.Debug() }
func Info() *zerolog.Event  { return log.Info() }
func Warn() *zerolog.Event  { return log.Warn() }
func Error() *zerolog.Event { return log.Error() }
func Fatal() *zerolog.Event { return log.Fatal() }

// Logger adapts a zerolog.Logger to internal/rebuild.Logger's narrow
// Info/Warn/Error(msg, kv...) port, so the rebuild core and poolsvc's Raft
// can log through zerolog without depending on it directly.
type Logger struct {
	zl zerolog.Logger
}

// New wraps zl as a Logger.
func New(zl zerolog.Logger) Logger {
	return Logger{zl: zl}
}

func (l Logger) Info(msg string, kv ...any)  { logEvent(l.zl.Info(), msg, kv) }
func (l Logger) Warn(msg string, kv ...any)  { logEvent(l.zl.Warn(), msg, kv) }
func (l Logger) Error(msg string, kv ...any) { logEvent(l.zl.Error(), msg, kv) }

// logEvent applies kv as alternating key/value pairs to ev before firing it.
// A trailing odd key with no value is logged as-is under "extra".
func logEvent(ev *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	if len(kv)%2 == 1 {
		ev = ev.Interface("extra", kv[len(kv)-1])
	}
	ev.Msg(msg)
}
