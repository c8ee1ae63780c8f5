package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/wsync/internal/translog"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the most recent log entries",
		Long: `List entries of the shared log, newest last.

Examples:
  wsync log
  wsync log --limit 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $WSYNC_DB)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of entries (0 for all)")
	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--limit must not be negative, got %d", opts.Limit))
	}

	st, err := openStore(opts.dbPath(opts.Database))
	if err != nil {
		return err
	}
	defer closeStore(st)

	entries, err := st.ListEntries(context.Background(), opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read log", err)
	}

	var b strings.Builder
	if len(entries) == 0 {
		b.WriteString("Log is empty")
	}
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		payload, err := translog.MarshalCanonical(e.Payload)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode payload", err)
		}
		fmt.Fprintf(&b, "%d\t%s\t%s", e.Seq, e.Kind, payload)
	}
	return opts.formatter(cmd).Success(b.String(), entries)
}
