// Command wsync keeps worker processes in step through a shared
// transaction log and a broadcast channel.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/wsync/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
