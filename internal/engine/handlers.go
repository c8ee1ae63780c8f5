package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/wsync/internal/templates"
	"github.com/roach88/wsync/internal/translog"
)

// LogHandler applies one decoded log entry.
// A returned error aborts the replay batch without advancing the cursor.
type LogHandler func(ctx context.Context, args translog.Args) error

// LogRegistry maps log-entry kinds to handlers.
type LogRegistry = Registry[translog.Kind, LogHandler]

// NewLogRegistry returns a registry with a handler for every built-in kind,
// backed by the given template manager.
func NewLogRegistry(m templates.Manager) *LogRegistry {
	r := NewRegistry[translog.Kind, LogHandler]()
	r.Register(translog.KindInit, handleInit)
	r.Register(translog.KindEcho, handleEcho)
	r.Register(translog.KindPull, addTemplateHandler(m))
	r.Register(translog.KindDelete, removeTemplateHandler(m))
	r.Register(translog.KindPush, pushTemplateHandler(m))
	return r
}

func handleInit(ctx context.Context, args translog.Args) error {
	return nil
}

func handleEcho(ctx context.Context, args translog.Args) error {
	a, err := argsAs[translog.EchoArgs](args)
	if err != nil {
		return err
	}
	slog.Info("echo", "msg", a.Msg)
	return nil
}

func addTemplateHandler(m templates.Manager) LogHandler {
	return func(ctx context.Context, args translog.Args) error {
		a, err := argsAs[translog.PullArgs](args)
		if err != nil {
			return err
		}
		slog.Debug("add template", "key", a.Key, "driver", a.Driver, "command", a.Command)
		logResult("add template", a, m.AddTemplate(ctx, a.Key, a.Driver, a.Command, a.TemplateText))
		return nil
	}
}

func removeTemplateHandler(m templates.Manager) LogHandler {
	return func(ctx context.Context, args translog.Args) error {
		a, err := argsAs[translog.DeleteArgs](args)
		if err != nil {
			return err
		}
		slog.Debug("remove template", "template", a.Template)
		logResult("delete template", a, m.RemoveTemplate(ctx, a.Template))
		return nil
	}
}

func pushTemplateHandler(m templates.Manager) LogHandler {
	return func(ctx context.Context, args translog.Args) error {
		a, err := argsAs[translog.PushArgs](args)
		if err != nil {
			return err
		}
		slog.Debug("push template", "driver", a.Driver, "command", a.Command)
		logResult("push template", a, m.PushTemplate(ctx, a.Driver, a.Command, a.TemplateText))
		return nil
	}
}

// logResult reports a template operation outcome. An error status is an
// upstream failure, logged with the arguments and not propagated.
func logResult(op string, args any, res templates.Result) {
	if res.Failed() {
		slog.Error("template operation failed",
			"op", op,
			"args", args,
			"error", res.Data,
		)
		return
	}
	slog.Info("template operation done", "op", op, "result", res.Data)
}

func argsAs[T translog.Args](args translog.Args) (T, error) {
	a, ok := args.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("handler for %s got %T", zero.Kind(), args)
	}
	return a, nil
}
