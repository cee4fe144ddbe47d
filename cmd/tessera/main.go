package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matzehuels/tessera/internal/cli"
)

// Exit statuses.
const (
	exitOK       = 0
	exitFailure  = 1
	exitCanceled = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the tessera command line and returns the process status.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	c := cli.New(stderr, cli.LogInfo)
	root := c.RootCommand()
	root.SetArgs(args)

	var verbose bool
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every stage and cache lookup")

	attach := root.PersistentPreRunE
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if verbose {
			c.SetLogLevel(cli.LogDebug)
		}
		return attach(cmd, args)
	}

	err := root.ExecuteContext(ctx)
	code := exitCode(err)
	if code == exitFailure {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return code
}

// exitCode maps a command error to a process status. Interrupts are not
// failures of the mosaic itself and get the shell's SIGINT status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitCanceled
	default:
		return exitFailure
	}
}
