package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/wsync/internal/broadcast/zmqbus"
)

// BrokerOptions holds flags for the broker command.
type BrokerOptions struct {
	*RootOptions
	Frontend string
	Backend  string
}

// NewBrokerCommand creates the broker command.
func NewBrokerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BrokerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "broker",
		Short: "Run the broadcast broker",
		Long: `Forward messages from publishers (frontend) to every subscribed
worker (backend). PLAIN authentication is enabled when WSYNC_USERNAME is
set; CURVE encryption when WSYNC_BROKER_SECRET_KEY_FILE is set.

Exit codes:
  0 - Stopped by signal
  1 - Bind or proxy failure
  2 - Command error (bad configuration)

Examples:
  wsync broker
  wsync broker --frontend tcp://*:5559 --backend tcp://*:5560`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBroker(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Frontend, "frontend", "", "publisher-facing endpoint (default $WSYNC_BROKER_FRONTEND)")
	cmd.Flags().StringVar(&opts.Backend, "backend", "", "worker-facing endpoint (default $WSYNC_BROKER_BACKEND)")
	return cmd
}

func runBroker(opts *BrokerOptions, cmd *cobra.Command) error {
	bOpts, err := opts.Config.BrokerOptions()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid broker settings", err)
	}
	frontend := opts.Frontend
	if frontend == "" {
		frontend = opts.Config.BrokerFrontend
	}
	backend := opts.Backend
	if backend == "" {
		backend = opts.Config.BrokerBackend
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	slog.Info("broker starting", "frontend", frontend, "backend", backend,
		"plain", len(bOpts.Users) > 0, "curve", bOpts.SecretKey != "")
	if err := zmqbus.RunBroker(ctx, frontend, backend, bOpts); err != nil {
		return WrapExitError(ExitFailure, "broker failed", err)
	}
	return nil
}
