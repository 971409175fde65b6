// Package logsvc implements core.Logger on top of log/slog, forwarding entries to Rollbar.
package logsvc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rollbar/rollbar-go"
	rollbarerrors "github.com/rollbar/rollbar-go/errors"

	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/core/user"
)

type RollbarLogger struct {
	slog    *slog.Logger
	rollbar *rollbar.Client
	exit    func(code int)
}

var _ core.Logger = (*RollbarLogger)(nil)

// NewRollbarLogger writes to out using conf.LogFormat ("text" or "json") and conf.LogLevel.
// Rollbar reporting starts disabled; see Enable.
func NewRollbarLogger(out io.Writer, conf *core.Config) *RollbarLogger {
	opts := &slog.HandlerOptions{Level: parseLevel(conf.LogLevel)}
	var h slog.Handler
	if strings.EqualFold(conf.LogFormat, "json") {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}

	client := rollbar.NewAsync(conf.RollbarToken, conf.Env, conf.Build, conf.Server.Host, "")
	client.SetStackTracer(rollbarerrors.StackTracer)
	client.SetEnabled(false)

	return &RollbarLogger{
		slog:    slog.New(correlationHandler{h}).With("app", conf.AppName),
		rollbar: client,
		exit:    os.Exit,
	}
}

// Enable turns Rollbar reporting on or off.
func (l *RollbarLogger) Enable(enabled bool) {
	l.rollbar.SetEnabled(enabled)
}

// Close flushes pending Rollbar items.
func (l *RollbarLogger) Close() error {
	return l.rollbar.Close()
}

// With returns a logger adding args to every entry. Both loggers report to the same Rollbar client.
func (l *RollbarLogger) With(args ...any) *RollbarLogger {
	return &RollbarLogger{slog: l.slog.With(args...), rollbar: l.rollbar, exit: l.exit}
}

// Slog exposes the underlying logger to components expecting a *slog.Logger.
func (l *RollbarLogger) Slog() *slog.Logger {
	return l.slog
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// entry splits the args of a log call: an error, extra fields, the authenticated user and the context.
type entry struct {
	ctx    context.Context
	err    error
	extras map[string]interface{}
	usr    *user.User
	others []interface{}
}

func parseArgs(args []interface{}) entry {
	e := entry{ctx: context.Background()}
	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
		case context.Context:
			e.ctx = v
		case error:
			if e.err == nil {
				e.err = v
			}
		case map[string]interface{}:
			if e.extras == nil {
				e.extras = make(map[string]interface{}, len(v))
			}
			for k, val := range v {
				e.extras[k] = val
			}
		case user.User:
			if e.usr == nil {
				usr := v
				e.usr = &usr
			}
		case *user.User:
			if e.usr == nil {
				e.usr = v
			}
		default:
			e.others = append(e.others, v)
		}
	}
	return e
}

func (e entry) attrs() []any {
	attrs := make([]any, 0, 2*(len(e.extras)+3))
	if e.err != nil {
		attrs = append(attrs, slog.String("error", e.err.Error()))
	}
	if e.usr != nil {
		attrs = append(attrs, slog.String("user_id", e.usr.ID))
	}
	for k, v := range e.extras {
		attrs = append(attrs, slog.Any(k, v))
	}
	for i, v := range e.others {
		attrs = append(attrs, slog.String(fmt.Sprintf("arg%d", i), fmt.Sprintf("%+v", v)))
	}
	return attrs
}

func (l *RollbarLogger) log(level slog.Level, rbLevel, msg string, args []interface{}) {
	e := parseArgs(args)
	l.slog.Log(e.ctx, level, msg, e.attrs()...)

	ctx := e.ctx
	if e.usr != nil {
		ctx = rollbar.NewPersonContext(ctx, &rollbar.Person{Id: e.usr.ID, Username: e.usr.Username, Email: e.usr.Email})
	}
	extras := e.extras
	if id := core.RequestID(ctx); id != "" {
		if extras == nil {
			extras = make(map[string]interface{}, 1)
		}
		extras["request_id"] = id
	}
	rbArgs := []interface{}{ctx, msg}
	if e.err != nil {
		rbArgs = append(rbArgs, e.err)
	}
	if extras != nil {
		rbArgs = append(rbArgs, extras)
	}
	l.rollbar.Log(rbLevel, rbArgs...)
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	l.log(slog.LevelDebug, rollbar.DEBUG, msg, args)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	l.log(slog.LevelInfo, rollbar.INFO, msg, args)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	l.log(slog.LevelWarn, rollbar.WARN, msg, args)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	l.log(slog.LevelError, rollbar.ERR, msg, args)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(slog.LevelError+4, rollbar.CRIT, msg, args)
	l.rollbar.Wait()
	l.exit(1)
}

// correlationHandler adds the request id found in the context to every record.
type correlationHandler struct {
	slog.Handler
}

func (h correlationHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := core.RequestID(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h correlationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return correlationHandler{h.Handler.WithAttrs(attrs)}
}

func (h correlationHandler) WithGroup(name string) slog.Handler {
	return correlationHandler{h.Handler.WithGroup(name)}
}
