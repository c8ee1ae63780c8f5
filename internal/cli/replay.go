package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayResult is the JSON output of replay.
type ReplayResult struct {
	Applied int   `json:"applied"`
	Cursor  int64 `json:"cursor"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Apply the whole log to the local template store once",
		Long: `Replay the shared log from the beginning into the local template
store, then exit. This is the catch-up a worker runs at startup, without
subscribing to broadcasts.

Exit codes:
  0 - Log replayed
  1 - Replay stopped on a log entry (gap, unhandled kind, invalid payload)
  2 - Command error (database error, bad configuration)

Examples:
  wsync replay --db ./wsync.db
  wsync replay --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $WSYNC_DB)")
	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	st, err := openStore(opts.dbPath(opts.Database))
	if err != nil {
		return err
	}
	defer closeStore(st)

	p, _, err := opts.newProcessor(st)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	n, err := p.ProcessLog(ctx)
	result := ReplayResult{Applied: n, Cursor: p.LastSeq()}
	out := opts.formatter(cmd)
	if err != nil {
		if opts.Format == "json" {
			if ferr := out.Error(replayErrorCode(err), err.Error(), result); ferr != nil {
				return ferr
			}
		}
		return WrapExitError(ExitFailure, fmt.Sprintf("replay stopped after %d entries", n), err)
	}

	return out.Success(fmt.Sprintf("Applied %d entries (cursor %d)", n, result.Cursor), result)
}
