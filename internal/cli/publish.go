package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/wsync/internal/broadcast"
	"github.com/roach88/wsync/internal/translog"
)

// PublishOptions holds flags for the publish command.
type PublishOptions struct {
	*RootOptions
	Args    string
	Channel string

	// Publisher overrides the zmq publisher (for testing).
	Publisher broadcast.Publisher
}

// PublishResult is the JSON output of publish.
type PublishResult struct {
	Channel string         `json:"channel"`
	Kind    string         `json:"kind"`
	Args    map[string]any `json:"arguments"`
	Codec   string         `json:"codec"`
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PublishOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish <kind>",
		Short: "Publish a broadcast message",
		Long: `Publish one message on the broadcast channel. Workers understand
ping, process_update_log and list_templates; other kinds are logged and
dropped by the workers.

Examples:
  wsync publish ping --args '{"from":"ops"}'
  wsync publish process_update_log
  wsync publish list_templates --channel broadcast_queue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "{}", "message arguments as a JSON object")
	cmd.Flags().StringVar(&opts.Channel, "channel", "", "broadcast channel (default $WSYNC_BROADCAST_CHANNEL)")
	return cmd
}

func runPublish(opts *PublishOptions, kind string, cmd *cobra.Command) error {
	args, err := translog.UnmarshalPayload([]byte(opts.Args))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	}
	codec, err := opts.Config.BroadcastCodec()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid codec", err)
	}
	raw, err := broadcast.Encode(codec, broadcast.Kind(kind), args)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode message", err)
	}

	pub, c, err := opts.publisher(opts.Publisher)
	if err != nil {
		return err
	}
	if c != nil {
		defer c.Close()
	}

	channel := opts.channel(opts.Channel)
	if err := pub.Publish(context.Background(), channel, raw); err != nil {
		return WrapExitError(ExitFailure, "publish failed", err)
	}

	return opts.formatter(cmd).Success(
		fmt.Sprintf("Published %s on %s", kind, channel),
		PublishResult{Channel: channel, Kind: kind, Args: args, Codec: codec.Name()},
	)
}
