// Command goalclock is the command-line host for the goalclock engine.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/goalclock/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}
	// Rejected operations and failed checks are already reported on stdout.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != cli.ExitFailure {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
