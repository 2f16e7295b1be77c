package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
)

// Log is the process-wide logger. It is usable before Init and discards output
// until then.
var Log = slog.New(slog.NewTextHandler(io.Discard, nil))

var sentryEnabled bool

// Options controls how Init builds the handler chain.
type Options struct {
	// Output defaults to os.Stderr.
	Output io.Writer
	Level  slog.Level
	// JSON selects the JSON handler; the text handler is used otherwise.
	JSON bool
	// SentryDSN, when set, additionally ships error records to Sentry.
	SentryDSN string
}

// Init builds the global logger and installs it as the slog default.
func Init(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	var handlers []slog.Handler
	if opts.JSON {
		handlers = append(handlers, slog.NewJSONHandler(out, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(out, handlerOpts))
	}

	sentryEnabled = false
	if opts.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: opts.SentryDSN}); err != nil {
			slog.New(handlers[0]).Warn("sentry_init_failed", "error", err)
		} else {
			handlers = append(handlers, slogsentry.Option{Level: slog.LevelError}.NewSentryHandler())
			sentryEnabled = true
		}
	}

	var handler slog.Handler
	if len(handlers) > 1 {
		handler = slogmulti.Fanout(handlers...)
	} else {
		handler = handlers[0]
	}

	Log = slog.New(handler)
	slog.SetDefault(Log)
	return Log
}

// Flush waits briefly for buffered Sentry events. It is a no-op when Sentry
// is not configured.
func Flush() {
	if sentryEnabled {
		sentry.Flush(2 * time.Second)
	}
}

// ParseLevel maps a level name to a slog level, falling back to def.
func ParseLevel(s string, def slog.Level) slog.Level {
	switch s {
	case "debug", "d", "verbose", "v":
		return slog.LevelDebug
	case "info", "i":
		return slog.LevelInfo
	case "warn", "warning", "w":
		return slog.LevelWarn
	case "error", "e":
		return slog.LevelError
	default:
		return def
	}
}
