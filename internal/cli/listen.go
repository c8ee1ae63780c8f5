package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/wsync/internal/broadcast"
	"github.com/roach88/wsync/internal/broadcast/zmqbus"
	"github.com/roach88/wsync/internal/worker"
)

// ListenOptions holds flags for the listen command.
type ListenOptions struct {
	*RootOptions
	Database string
	Channel  string

	// Subscriber overrides the zmq subscriber (for testing).
	Subscriber broadcast.Subscriber
}

// NewListenCommand creates the listen command.
func NewListenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Run a worker: catch up on the log, then follow broadcasts",
		Long: `Run the worker loop. The log is replayed once, then the worker
subscribes to the broadcast channel and dispatches every message until
interrupted.

Exit codes:
  0 - Stopped by signal or the subscription closed
  1 - Subscribe or transport failure
  2 - Command error (database error, bad configuration)

Examples:
  wsync listen
  WSYNC_BROADCAST_ENDPOINT=tcp://broker:5560 wsync listen --channel broadcast_queue`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $WSYNC_DB)")
	cmd.Flags().StringVar(&opts.Channel, "channel", "", "broadcast channel (default $WSYNC_BROADCAST_CHANNEL)")
	return cmd
}

func runListen(opts *ListenOptions, cmd *cobra.Command) error {
	cfg := opts.Config
	codec, err := cfg.BroadcastCodec()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid codec", err)
	}

	sub := opts.Subscriber
	if sub == nil {
		tOpts, err := cfg.TransportOptions()
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid transport settings", err)
		}
		sub = zmqbus.NewSubscriber(cfg.BroadcastEndpoint, tOpts)
	}

	st, err := openStore(opts.dbPath(opts.Database))
	if err != nil {
		return err
	}
	defer closeStore(st)

	p, manager, err := opts.newProcessor(st)
	if err != nil {
		return err
	}
	d := broadcast.NewDispatcher(
		broadcast.NewRegistry(p, manager),
		p,
		broadcast.WithCodec(codec),
		broadcast.WithHandlerTimeout(cfg.HandlerTimeout),
	)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	channel := opts.channel(opts.Channel)
	slog.Info("worker starting", "channel", channel, "codec", codec.Name(), "endpoint", cfg.BroadcastEndpoint)

	h := worker.Start(ctx, d, sub, channel)
	select {
	case <-ctx.Done():
	case <-h.Done():
	}
	if err := h.Stop(); err != nil {
		return WrapExitError(ExitFailure, "worker stopped", err)
	}

	slog.Info("worker stopped", "cursor", p.LastSeq())
	return nil
}
