package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Database string
}

// InitResult is the JSON output of init.
type InitResult struct {
	Database string `json:"database"`
	Created  bool   `json:"created"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the shared log and write its init entry",
		Long: `Create the SQLite database holding the shared transaction log and
append the init entry (seq 0) if the log is empty. Safe to run twice.

Examples:
  wsync init --db ./wsync.db
  WSYNC_DB=/var/lib/wsync/log.db wsync init`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $WSYNC_DB)")
	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	path := opts.dbPath(opts.Database)
	st, err := openStore(path)
	if err != nil {
		return err
	}
	defer closeStore(st)

	created, err := st.EnsureInitialized(context.Background())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize log", err)
	}

	text := fmt.Sprintf("Log already initialized: %s", path)
	if created {
		text = fmt.Sprintf("Initialized log: %s", path)
	}
	return opts.formatter(cmd).Success(text, InitResult{Database: path, Created: created})
}
