package broadcast

import (
	"context"
	"log/slog"

	"github.com/roach88/wsync/internal/engine"
	"github.com/roach88/wsync/internal/templates"
)

// Handler runs one broadcast message. A returned error is logged by the
// dispatcher; it never stops the listen loop.
type Handler func(ctx context.Context, args map[string]any) error

// Registry maps broadcast kinds to handlers.
type Registry = engine.Registry[Kind, Handler]

// Replayer is the log replay entry point. Implemented by engine.Processor.
type Replayer interface {
	ProcessLog(ctx context.Context) (int, error)
}

// NewRegistry registers the built-in broadcast kinds.
// A nil manager leaves list_templates unregistered.
func NewRegistry(replayer Replayer, m templates.Manager) *Registry {
	r := engine.NewRegistry[Kind, Handler]()
	r.Register(KindPing, handlePing)
	r.Register(KindProcessUpdateLog, processUpdateLogHandler(replayer))
	if m != nil {
		r.Register(KindListTemplates, listTemplatesHandler(m))
	}
	return r
}

func handlePing(ctx context.Context, args map[string]any) error {
	slog.Info("ping", "args", args)
	return nil
}

func processUpdateLogHandler(replayer Replayer) Handler {
	return func(ctx context.Context, args map[string]any) error {
		_, err := replayer.ProcessLog(ctx)
		return err
	}
}

func listTemplatesHandler(m templates.Manager) Handler {
	return func(ctx context.Context, args map[string]any) error {
		res := m.ListTemplates(ctx)
		if res.Failed() {
			slog.Error("list templates failed", "error", res.Data)
			return nil
		}
		drivers, total := 0, 0
		if byDriver, ok := res.Data.(map[string][]string); ok {
			drivers = len(byDriver)
			for _, names := range byDriver {
				total += len(names)
			}
		}
		slog.Info("installed templates", "drivers", drivers, "templates", total)
		return nil
	}
}
