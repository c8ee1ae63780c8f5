package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/wsync/internal/broadcast"
	"github.com/roach88/wsync/internal/engine"
	"github.com/roach88/wsync/internal/translog"
)

// AppendOptions holds flags for the append command.
type AppendOptions struct {
	*RootOptions
	Database    string
	Payload     string
	Channel     string
	NoBroadcast bool

	// Publisher overrides the zmq publisher (for testing).
	Publisher broadcast.Publisher
}

// NewAppendCommand creates the append command.
func NewAppendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AppendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "append <kind>",
		Short: "Append an entry to the shared log and wake the workers",
		Long: `Append an entry to the shared transaction log, then broadcast
process_update_log so every worker replays it.

Kinds: init, echo, pull, delete, push. The payload is checked against the
kind's schema before it is written; a payload workers would reject is never
appended.

Exit codes:
  0 - Entry appended (and broadcast)
  1 - Broadcast failed after the entry was appended
  2 - Command error (unknown kind, invalid payload, database error)

Examples:
  wsync append echo --payload '{"msg":"hello"}'
  wsync append pull --payload '{"key":"cisco_ios_show_version","driver":"cisco_ios","command":"show version"}'
  wsync append delete --payload '{"template":"cisco_ios_show_version.textfsm"}' --no-broadcast`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppend(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $WSYNC_DB)")
	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "entry payload as a JSON object")
	cmd.Flags().StringVar(&opts.Channel, "channel", "", "broadcast channel (default $WSYNC_BROADCAST_CHANNEL)")
	cmd.Flags().BoolVar(&opts.NoBroadcast, "no-broadcast", false, "append without broadcasting process_update_log")
	return cmd
}

func runAppend(opts *AppendOptions, kindArg string, cmd *cobra.Command) error {
	ctx := context.Background()

	kind, err := translog.ParseKind(kindArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid kind", err)
	}
	payload, err := translog.UnmarshalPayload([]byte(opts.Payload))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid payload", err)
	}
	if err := checkPayload(kind, payload); err != nil {
		return WrapExitError(ExitCommandError, "invalid payload", err)
	}

	st, err := openStore(opts.dbPath(opts.Database))
	if err != nil {
		return err
	}
	defer closeStore(st)

	entry, err := st.Append(ctx, kind, payload)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to append entry", err)
	}
	slog.Info("entry appended", "seq", entry.Seq, "kind", entry.Kind)

	if !opts.NoBroadcast {
		if err := broadcastUpdate(ctx, opts, cmd); err != nil {
			return err
		}
	}

	return opts.formatter(cmd).Success(fmt.Sprintf("Appended %s", entry), entry)
}

// checkPayload applies the same checks workers apply during replay.
func checkPayload(kind translog.Kind, payload translog.Payload) error {
	if kind == translog.KindDelete {
		payload = translog.NormalizeDeletePayload(payload)
	}
	if err := engine.MustValidator().Validate(kind, payload); err != nil {
		return err
	}
	_, err := translog.Decode(translog.LogEntry{Kind: kind, Payload: payload})
	return err
}

func broadcastUpdate(ctx context.Context, opts *AppendOptions, cmd *cobra.Command) error {
	codec, err := opts.Config.BroadcastCodec()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid codec", err)
	}
	raw, err := broadcast.Encode(codec, broadcast.KindProcessUpdateLog, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode broadcast", err)
	}

	pub, c, err := opts.publisher(opts.Publisher)
	if err != nil {
		return err
	}
	if c != nil {
		defer c.Close()
	}

	channel := opts.channel(opts.Channel)
	if err := pub.Publish(ctx, channel, raw); err != nil {
		return WrapExitError(ExitFailure, "entry appended but broadcast failed", err)
	}
	opts.formatter(cmd).VerboseLog("broadcast %s on %s", broadcast.KindProcessUpdateLog, channel)
	return nil
}
