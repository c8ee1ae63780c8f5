package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/wsync/internal/broadcast"
	"github.com/roach88/wsync/internal/broadcast/zmqbus"
	"github.com/roach88/wsync/internal/engine"
	"github.com/roach88/wsync/internal/lock"
	"github.com/roach88/wsync/internal/store"
	"github.com/roach88/wsync/internal/templates"
)

// publishSettle gives a one-shot PUB socket time to finish its handshake
// with the broker before the first send.
const publishSettle = 200 * time.Millisecond

func openStore(path string) (*store.Store, error) {
	slog.Debug("opening database", "path", path)
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// signalContext derives a context from cmd that is cancelled on SIGINT or
// SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// newProcessor wires a processor over st with the filesystem template
// store and the SQLite replay lease.
func (o *RootOptions) newProcessor(st *store.Store) (*engine.Processor, templates.Manager, error) {
	cfg := o.Config
	manager, err := templates.NewDir(cfg.TemplateDir, cfg.TemplateLibrary)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open template directory", err)
	}
	mode, err := cfg.ReplayLockMode()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid lock mode", err)
	}

	replayLock := lock.New(st,
		lock.WithTTL(cfg.LeaseTTL),
		lock.WithPollInterval(cfg.LeasePoll),
	)
	p := engine.NewProcessor(st, replayLock, engine.NewLogRegistry(manager), engine.WithLockMode(mode))
	return p, manager, nil
}

type closer interface{ Close() error }

// publisher returns override when set, else a zmq publisher on the
// configured endpoint. The returned closer may be nil.
func (o *RootOptions) publisher(override broadcast.Publisher) (broadcast.Publisher, closer, error) {
	if override != nil {
		return override, nil, nil
	}
	tOpts, err := o.Config.TransportOptions()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid transport settings", err)
	}
	pub, err := zmqbus.NewPublisher(o.Config.PublishEndpoint, tOpts, publishSettle)
	if err != nil {
		return nil, nil, WrapExitError(ExitFailure, "failed to connect publisher", err)
	}
	return pub, pub, nil
}

func replayErrorCode(err error) string {
	var re *engine.ReplayError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	return "REPLAY_ERROR"
}
